package rtree

import (
	"fmt"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/geometry"
)

// KeyOrderedBuilder streams data block boundaries into leaf nodes in table
// key order. Every data key must be a 40-byte key box.
type KeyOrderedBuilder struct {
	p   *packer
	sub geometry.Box
}

var _ Builder = (*KeyOrderedBuilder)(nil)

// NewKeyOrderedBuilder creates a builder whose node sizes are governed by
// policy.
func NewKeyOrderedBuilder(policy block.PolicyFactory) *KeyOrderedBuilder {
	return &KeyOrderedBuilder{p: newPacker(KeyOrdered, policy)}
}

// OnKeyAdded folds the box of a key written to the current data block.
func (b *KeyOrderedBuilder) OnKeyAdded(key, _ []byte) error {
	if err := b.p.checkBuilding(); err != nil {
		return err
	}
	box, err := geometry.DecodeKey(key)
	if err != nil {
		return fmt.Errorf("index key: %w", err)
	}
	b.sub.Expand(box)
	return nil
}

// AddIndexEntry records a finished data block. firstKeyInNext is nil for
// the last block of the table: it joins the open leaf without asking the
// flush policy and then closes it.
func (b *KeyOrderedBuilder) AddIndexEntry(_, firstKeyInNext []byte, h block.Handle) error {
	if err := b.p.checkBuilding(); err != nil {
		return err
	}
	if firstKeyInNext == nil {
		b.p.addLast(b.sub, h.Encode())
		b.p.closeNode()
	} else {
		b.p.add(b.sub, h.Encode())
	}
	b.sub.Clear()
	return nil
}

// RequestCut closes the open leaf before the next data block is added.
func (b *KeyOrderedBuilder) RequestCut() { b.p.cutRequested = true }

func (b *KeyOrderedBuilder) Finish(w NodeWriter) (bool, error) { return b.p.finish(w) }

func (b *KeyOrderedBuilder) Format() Format { return KeyOrdered }

// RootHandle is valid once Finish reported done.
func (b *KeyOrderedBuilder) RootHandle() block.Handle { return b.p.root }

func (b *KeyOrderedBuilder) Height() int { return b.p.height }

// NumNodes counts the nodes written so far, root included.
func (b *KeyOrderedBuilder) NumNodes() int { return b.p.nodes }
