package geometry

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"

	"spatiallsm/pkg/dberrors"
)

// Fixed widths of the three binary box forms.
const (
	KeySize   = 40 // iid, x0, x1, y0, y1
	QuerySize = 48 // iid0, iid1, x0, x1, y0, y1
	ValueSize = 32 // x0, x1, y0, y1
)

var order = binary.LittleEndian

// AppendKey appends the 40-byte data key form of b. Only ID.Min is stored.
func AppendKey(dst []byte, b Box) []byte {
	dst = order.AppendUint64(dst, b.ID.Min)
	return appendSpatial(dst, b)
}

// EncodeKey is AppendKey into a fresh slice.
func EncodeKey(b Box) []byte {
	return AppendKey(make([]byte, 0, KeySize), b)
}

// DecodeKey reads a 40-byte key form. Trailing bytes are ignored.
func DecodeKey(data []byte) (Box, error) {
	if len(data) < KeySize {
		return Box{}, shortBuffer("key", KeySize, len(data))
	}
	id := order.Uint64(data)
	b := Box{ID: IDInterval{Min: id, Max: id}, set: true}
	readSpatial(&b, data[8:])
	return b, nil
}

// AppendQuery appends the 48-byte query/node-entry form of b.
func AppendQuery(dst []byte, b Box) []byte {
	dst = order.AppendUint64(dst, b.ID.Min)
	dst = order.AppendUint64(dst, b.ID.Max)
	return appendSpatial(dst, b)
}

func EncodeQuery(b Box) []byte {
	return AppendQuery(make([]byte, 0, QuerySize), b)
}

// DecodeQuery reads a 48-byte query/node-entry form.
func DecodeQuery(data []byte) (Box, error) {
	if len(data) < QuerySize {
		return Box{}, shortBuffer("query", QuerySize, len(data))
	}
	b := Box{
		ID:  IDInterval{Min: order.Uint64(data), Max: order.Uint64(data[8:])},
		set: true,
	}
	readSpatial(&b, data[16:])
	return b, nil
}

// AppendValue appends the 32-byte identifier-free form of b.
func AppendValue(dst []byte, b Box) []byte {
	return appendSpatial(dst, b)
}

func EncodeValue(b Box) []byte {
	return AppendValue(make([]byte, 0, ValueSize), b)
}

// DecodeValue reads a 32-byte value form; the identifier interval stays zero.
func DecodeValue(data []byte) (Box, error) {
	if len(data) < ValueSize {
		return Box{}, shortBuffer("value", ValueSize, len(data))
	}
	b := Box{set: true}
	readSpatial(&b, data)
	return b, nil
}

// CompareKeys orders data keys by identifier first and by the raw spatial
// bytes second, so that one identifier with several boxes keeps a stable order.
func CompareKeys(a, b []byte) int {
	if len(a) < 8 || len(b) < 8 {
		return cmp.Compare(len(a), len(b))
	}
	if c := cmp.Compare(order.Uint64(a), order.Uint64(b)); c != 0 {
		return c
	}
	for i := 8; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return cmp.Compare(a[i], b[i])
		}
	}
	return cmp.Compare(len(a), len(b))
}

func appendSpatial(dst []byte, b Box) []byte {
	dst = order.AppendUint64(dst, math.Float64bits(b.X.Min))
	dst = order.AppendUint64(dst, math.Float64bits(b.X.Max))
	dst = order.AppendUint64(dst, math.Float64bits(b.Y.Min))
	return order.AppendUint64(dst, math.Float64bits(b.Y.Max))
}

func readSpatial(b *Box, data []byte) {
	b.X.Min = math.Float64frombits(order.Uint64(data))
	b.X.Max = math.Float64frombits(order.Uint64(data[8:]))
	b.Y.Min = math.Float64frombits(order.Uint64(data[16:]))
	b.Y.Max = math.Float64frombits(order.Uint64(data[24:]))
}

func shortBuffer(form string, want, got int) error {
	return fmt.Errorf("%w: %s box needs %d bytes, got %d", dberrors.ErrCorruption, form, want, got)
}
