// Package compression encodes table blocks. A block is stored compressed
// only when that makes it smaller; otherwise it is kept plain and tagged None.
package compression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"spatiallsm/pkg/dberrors"
)

// Type is the one-byte compression tag stored in every block trailer.
type Type byte

const (
	None Type = iota
	Snappy
	Zstd
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// ParseType maps a configuration name onto a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	}
	return None, fmt.Errorf("%w: unknown compression %q", dberrors.ErrInvalidArgument, name)
}

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Compress encodes data with t and returns the encoding together with the
// type actually used.
func Compress(t Type, data []byte) ([]byte, Type, error) {
	var out []byte
	switch t {
	case None:
		return data, None, nil
	case Snappy:
		out = snappy.Encode(nil, data)
	case Zstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, None, fmt.Errorf("init zstd: %w", err)
		}
		out = enc.EncodeAll(data, make([]byte, 0, len(data)))
	default:
		return nil, None, fmt.Errorf("%w: unknown compression %d", dberrors.ErrInvalidArgument, byte(t))
	}
	if len(out) >= len(data) {
		return data, None, nil
	}
	return out, t, nil
}

// Decompress reverses Compress.
func Decompress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil
	case Snappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy: %v", dberrors.ErrCorruption, err)
		}
		return out, nil
	case Zstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("init zstd: %w", err)
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", dberrors.ErrCorruption, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown compression type %d", dberrors.ErrCorruption, byte(t))
}
