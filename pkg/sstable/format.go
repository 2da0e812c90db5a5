// Package sstable writes and reads immutable table files carrying a spatial
// index.
//
// A table file is laid out as
//
//	[data blocks][index nodes][meta blocks][metaindex block][footer]
//
// Every block is followed by a 5-byte trailer: the compression type and a
// CRC32-C over the stored bytes and the type. Handles address the stored
// bytes without the trailer. The footer holds the metaindex handle and the
// index root handle, each padded to block.MaxHandleLen, followed by magic.
package sstable

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"spatiallsm/pkg/block"
	"spatiallsm/pkg/compression"
	"spatiallsm/pkg/dberrors"
)

const (
	// Magic closes every table file.
	Magic uint64 = 0x5350_4c53_4d52_5431

	trailerSize = 5
	FooterSize  = 2*block.MaxHandleLen + 8

	// PropertiesBlock names the meta block holding the JSON table properties.
	PropertiesBlock = "spatiallsm.properties"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func blockChecksum(stored []byte, t compression.Type) uint32 {
	crc := crc32.Update(0, crcTable, stored)
	return crc32.Update(crc, crcTable, []byte{byte(t)})
}

func appendTrailer(dst, stored []byte, t compression.Type) []byte {
	dst = append(dst, byte(t))
	return binary.LittleEndian.AppendUint32(dst, blockChecksum(stored, t))
}

// unwrapBlock checks the trailer of raw (stored bytes plus trailer) and
// returns the decompressed contents.
func unwrapBlock(raw []byte, h block.Handle) ([]byte, error) {
	if uint64(len(raw)) != h.Size+trailerSize {
		return nil, fmt.Errorf("%w: block %v: read %d bytes", dberrors.ErrCorruption, h, len(raw))
	}
	stored := raw[:h.Size]
	t := compression.Type(raw[h.Size])
	want := binary.LittleEndian.Uint32(raw[h.Size+1:])
	if got := blockChecksum(stored, t); got != want {
		return nil, fmt.Errorf("%w: block %v: checksum mismatch %08x != %08x", dberrors.ErrCorruption, h, got, want)
	}
	contents, err := compression.Decompress(t, stored)
	if err != nil {
		return nil, fmt.Errorf("block %v: %w", h, err)
	}
	return contents, nil
}

type footer struct {
	metaindex block.Handle
	root      block.Handle
}

func (f footer) encode() []byte {
	out := make([]byte, FooterSize)
	f.metaindex.Append(out[:0])
	f.root.Append(out[block.MaxHandleLen:block.MaxHandleLen])
	binary.LittleEndian.PutUint64(out[2*block.MaxHandleLen:], Magic)
	return out
}

func decodeFooter(data []byte) (footer, error) {
	if len(data) != FooterSize {
		return footer{}, fmt.Errorf("%w: footer of %d bytes", dberrors.ErrCorruption, len(data))
	}
	if m := binary.LittleEndian.Uint64(data[2*block.MaxHandleLen:]); m != Magic {
		return footer{}, fmt.Errorf("%w: bad magic %016x", dberrors.ErrCorruption, m)
	}
	var (
		f   footer
		err error
	)
	if f.metaindex, _, err = block.DecodeHandle(data[:block.MaxHandleLen]); err != nil {
		return footer{}, fmt.Errorf("footer metaindex: %w", err)
	}
	if f.root, _, err = block.DecodeHandle(data[block.MaxHandleLen : 2*block.MaxHandleLen]); err != nil {
		return footer{}, fmt.Errorf("footer root: %w", err)
	}
	return f, nil
}
