package memtable

import (
	"encoding/binary"
	"fmt"

	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
)

const seqNSize = 8

// Item is one stored spatial object. Its table row is
//
//	key   = 40-byte key box (ID, X, Y)
//	value = 32-byte value box, uint64 SeqN, payload
//
// so that either index box source can read the box.
type Item struct {
	ID    uint64
	Box   geometry.Box
	Value []byte
	SeqN  uint64
}

// Key is the table key of the item.
func (it *Item) Key() []byte {
	b := it.Box
	b.SetID(it.ID, it.ID)
	return geometry.EncodeKey(b)
}

// EncodedValue is the table value of the item.
func (it *Item) EncodedValue() []byte {
	out := make([]byte, 0, geometry.ValueSize+seqNSize+len(it.Value))
	out = geometry.AppendValue(out, it.Box)
	out = binary.LittleEndian.AppendUint64(out, it.SeqN)
	return append(out, it.Value...)
}

// Size is the number of bytes the item accounts for in the memtable.
func (it *Item) Size() uint64 {
	return uint64(geometry.KeySize + geometry.ValueSize + seqNSize + len(it.Value))
}

// DecodeItem rebuilds an item from a table row. The payload aliases value.
func DecodeItem(key, value []byte) (Item, error) {
	box, err := geometry.DecodeKey(key)
	if err != nil {
		return Item{}, err
	}
	if len(value) < geometry.ValueSize+seqNSize {
		return Item{}, fmt.Errorf("%w: row value of %d bytes", dberrors.ErrCorruption, len(value))
	}
	return Item{
		ID:    box.ID.Min,
		Box:   box,
		SeqN:  binary.LittleEndian.Uint64(value[geometry.ValueSize:]),
		Value: value[geometry.ValueSize+seqNSize:],
	}, nil
}
