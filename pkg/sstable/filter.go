package sstable

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"

	"spatiallsm/pkg/dberrors"
)

// FilterBlock names the meta block holding the identifier bloom filter.
const FilterBlock = "spatiallsm.filter.id"

const filterFalsePositiveRate = 0.01

// idFilter is a bloom filter over the row identifiers of a table. It lets
// point lookups skip tables without reading their index.
type idFilter struct {
	bits []byte
	k    int
}

func newIDFilter(expected int) *idFilter {
	m, k := filterShape(max(expected, 1), filterFalsePositiveRate)
	return &idFilter{bits: make([]byte, (m+7)/8), k: k}
}

// filterShape returns the bit count m = -n ln p / ln2^2 and the hash count
// k = m/n ln2.
func filterShape(n int, p float64) (int, int) {
	m := int(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	m = max(m, 64)
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	return m, min(max(k, 1), 16)
}

// filterHashes derives the two hashes of double hashing from one 128-bit
// murmur3 sum of the little-endian id.
func filterHashes(id uint64) (uint64, uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], id)
	h1, h2 := murmur3.Sum128(buf[:])
	return h1, h2 | 1
}

func (f *idFilter) add(id uint64) {
	h1, h2 := filterHashes(id)
	m := uint64(len(f.bits) * 8)
	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % m
		f.bits[bit/8] |= 1 << (bit % 8)
	}
}

func (f *idFilter) mayContain(id uint64) bool {
	h1, h2 := filterHashes(id)
	m := uint64(len(f.bits) * 8)
	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % m
		if f.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

func (f *idFilter) encode() []byte {
	out := make([]byte, 0, 1+len(f.bits))
	out = append(out, byte(f.k))
	return append(out, f.bits...)
}

func decodeIDFilter(data []byte) (*idFilter, error) {
	if len(data) < 2 || data[0] == 0 {
		return nil, fmt.Errorf("%w: identifier filter of %d bytes", dberrors.ErrCorruption, len(data))
	}
	return &idFilter{k: int(data[0]), bits: data[1:]}, nil
}
