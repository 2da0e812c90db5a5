package block

import (
	"encoding/binary"
	"fmt"

	"spatiallsm/pkg/dberrors"
)

// MaxHandleLen is the longest possible encoded Handle.
const MaxHandleLen = 2 * binary.MaxVarintLen64

// Handle locates a block inside a table file. Size excludes the block trailer.
type Handle struct {
	Offset uint64
	Size   uint64
}

// Append appends the uvarint encoding of h.
func (h Handle) Append(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Size)
}

func (h Handle) Encode() []byte {
	return h.Append(make([]byte, 0, MaxHandleLen))
}

func (h Handle) IsZero() bool { return h == Handle{} }

func (h Handle) String() string {
	return fmt.Sprintf("{offset:%d size:%d}", h.Offset, h.Size)
}

// DecodeHandle decodes a handle from the front of src and returns the number
// of bytes consumed.
func DecodeHandle(src []byte) (Handle, int, error) {
	off, n := binary.Uvarint(src)
	if n <= 0 {
		return Handle{}, 0, fmt.Errorf("%w: bad block handle offset", dberrors.ErrCorruption)
	}
	size, m := binary.Uvarint(src[n:])
	if m <= 0 {
		return Handle{}, 0, fmt.Errorf("%w: bad block handle size", dberrors.ErrCorruption)
	}
	return Handle{Offset: off, Size: size}, n + m, nil
}
