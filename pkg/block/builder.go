// Package block implements the generic key/value block shared by data blocks,
// index nodes and meta blocks.
//
// A block is a run of entries followed by a restart array and its length:
//
//	entry*     uvarint(len(key)) key uvarint(len(value)) value
//	offsets    uint32 offset of every entry
//	count      uint32
//
// Every entry has its own offset so that iteration runs in both directions.
package block

import "encoding/binary"

const offsetSize = 4

// Builder accumulates entries into a single block.
type Builder struct {
	buf     []byte
	offsets []uint32
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends an entry. The caller is responsible for key order when the
// block is searched with Seek.
func (b *Builder) Add(key, value []byte) {
	b.offsets = append(b.offsets, uint32(len(b.buf)))
	b.buf = binary.AppendUvarint(b.buf, uint64(len(key)))
	b.buf = append(b.buf, key...)
	b.buf = binary.AppendUvarint(b.buf, uint64(len(value)))
	b.buf = append(b.buf, value...)
}

// CurrentSize is the encoded size of the block if it were finished now.
func (b *Builder) CurrentSize() int {
	return len(b.buf) + offsetSize*len(b.offsets) + offsetSize
}

// EstimatedSizeAfter is the encoded size after adding one more entry.
func (b *Builder) EstimatedSizeAfter(key, value []byte) int {
	return b.CurrentSize() + entrySize(key, value) + offsetSize
}

func (b *Builder) Count() int { return len(b.offsets) }

func (b *Builder) Empty() bool { return len(b.offsets) == 0 }

// Finish returns the encoded block and resets the builder. The returned
// slice is owned by the caller.
func (b *Builder) Finish() []byte {
	out := make([]byte, 0, b.CurrentSize())
	out = append(out, b.buf...)
	for _, off := range b.offsets {
		out = binary.LittleEndian.AppendUint32(out, off)
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.offsets)))
	b.Reset()
	return out
}

func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.offsets = b.offsets[:0]
}

func entrySize(key, value []byte) int {
	return uvarintLen(uint64(len(key))) + len(key) + uvarintLen(uint64(len(value))) + len(value)
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
