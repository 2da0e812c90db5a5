package block

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"spatiallsm/pkg/dberrors"
)

// Iter walks the entries of one encoded block.
type Iter struct {
	data    []byte
	offsets []byte
	n       int
	compare func(a, b []byte) int

	idx   int
	key   []byte
	value []byte
	err   error
}

// NewIter validates the block footer and returns an iterator positioned
// before the first entry. compare orders keys for Seek; nil means bytewise.
func NewIter(data []byte, compare func(a, b []byte) int) (*Iter, error) {
	if len(data) < offsetSize {
		return nil, fmt.Errorf("%w: block of %d bytes has no entry count", dberrors.ErrCorruption, len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[len(data)-offsetSize:]))
	end := len(data) - offsetSize - n*offsetSize
	if n < 0 || end < 0 {
		return nil, fmt.Errorf("%w: block entry count %d exceeds block size %d", dberrors.ErrCorruption, n, len(data))
	}
	if compare == nil {
		compare = bytes.Compare
	}
	return &Iter{
		data:    data[:end],
		offsets: data[end : len(data)-offsetSize],
		n:       n,
		compare: compare,
		idx:     -1,
	}, nil
}

// Len is the number of entries in the block.
func (it *Iter) Len() int { return it.n }

func (it *Iter) First() { it.load(0) }

func (it *Iter) Last() { it.load(it.n - 1) }

func (it *Iter) Next() {
	if it.Valid() {
		it.load(it.idx + 1)
	}
}

func (it *Iter) Prev() {
	if it.Valid() {
		it.load(it.idx - 1)
	}
}

// Seek positions the iterator at the first key >= target.
func (it *Iter) Seek(target []byte) {
	var err error
	i := sort.Search(it.n, func(i int) bool {
		k, _, e := it.entry(i)
		if e != nil {
			err = e
			return true
		}
		return it.compare(k, target) >= 0
	})
	if err != nil {
		it.fail(err)
		return
	}
	it.load(i)
}

func (it *Iter) Valid() bool { return it.err == nil && it.idx >= 0 && it.idx < it.n }

func (it *Iter) Key() []byte { return it.key }

func (it *Iter) Value() []byte { return it.value }

func (it *Iter) Err() error { return it.err }

func (it *Iter) Close() error {
	it.data, it.offsets = nil, nil
	it.key, it.value = nil, nil
	it.idx = it.n
	return nil
}

func (it *Iter) load(i int) {
	it.key, it.value = nil, nil
	if it.err != nil {
		return
	}
	it.idx = i
	if i < 0 || i >= it.n {
		return
	}
	k, v, err := it.entry(i)
	if err != nil {
		it.fail(err)
		return
	}
	it.key, it.value = k, v
}

func (it *Iter) entry(i int) ([]byte, []byte, error) {
	off := int(binary.LittleEndian.Uint32(it.offsets[i*offsetSize:]))
	if off >= len(it.data) {
		return nil, nil, fmt.Errorf("%w: entry %d offset %d out of range", dberrors.ErrCorruption, i, off)
	}
	k, rest, err := readField(it.data[off:])
	if err != nil {
		return nil, nil, err
	}
	v, _, err := readField(rest)
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

func (it *Iter) fail(err error) {
	it.err = err
	it.key, it.value = nil, nil
}

func readField(src []byte) ([]byte, []byte, error) {
	l, n := binary.Uvarint(src)
	if n <= 0 || uint64(len(src)-n) < l {
		return nil, nil, fmt.Errorf("%w: truncated block entry", dberrors.ErrCorruption)
	}
	end := n + int(l)
	return src[n:end:end], src[end:], nil
}
