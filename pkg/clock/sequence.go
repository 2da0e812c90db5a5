// Package clock allocates the sequence numbers that order writes.
package clock

import "sync/atomic"

// Sequence hands out strictly increasing sequence numbers. The zero value
// starts at 1.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence continues after last, the newest number already in use.
func NewSequence(last uint64) *Sequence {
	s := &Sequence{}
	s.last.Store(last)
	return s
}

// Last is the newest number handed out.
func (s *Sequence) Last() uint64 { return s.last.Load() }

// Next reserves the following number.
func (s *Sequence) Next() uint64 { return s.last.Add(1) }

// AdvanceTo makes sure later numbers are greater than seq. It never moves
// the sequence backwards.
func (s *Sequence) AdvanceTo(seq uint64) {
	for {
		cur := s.last.Load()
		if cur >= seq || s.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}
