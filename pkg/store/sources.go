package store

import (
	"errors"
	"slices"

	"spatiallsm/pkg/dberrors"
	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/memtable"
	"spatiallsm/pkg/sstable"
)

// source is one generation of data: a memtable generation or a table.
type source interface {
	search(query geometry.Box, visit func(Object) bool) error
	get(id uint64) (Object, bool, error)
	// maxSeqN bounds the sequence numbers the source holds.
	maxSeqN() uint64
}

type memSource struct{ t *memtable.Table }

func (m memSource) search(query geometry.Box, visit func(Object) bool) error {
	// collected first so visit runs without the index lock
	var found []Object
	m.t.Search(query, func(it memtable.Item) bool {
		found = append(found, it)
		return true
	})
	for _, it := range found {
		if !visit(it) {
			return nil
		}
	}
	return nil
}

func (m memSource) get(id uint64) (Object, bool, error) {
	it, ok := m.t.Get(id)
	return it, ok, nil
}

func (m memSource) maxSeqN() uint64 { return m.t.MaxSeqN() }

type tableSource struct{ r *sstable.Reader }

func (t tableSource) search(query geometry.Box, visit func(Object) bool) error {
	var decodeErr error
	err := t.r.Query(query, func(key, value []byte) bool {
		it, err := decodeRow(key, value)
		if err != nil {
			decodeErr = err
			return false
		}
		return visit(it)
	})
	if err != nil {
		return err
	}
	return decodeErr
}

func (t tableSource) get(id uint64) (Object, bool, error) {
	if !t.r.MayContain(id) {
		return Object{}, false, nil
	}
	key, value, err := t.r.Get(id)
	if errors.Is(err, dberrors.ErrNotFound) {
		return Object{}, false, nil
	}
	if err != nil {
		return Object{}, false, err
	}
	it, err := decodeRow(key, value)
	return it, err == nil, err
}

func (t tableSource) maxSeqN() uint64 { return t.r.Properties().MaxSeqN }

// newest returns the version of id with the highest sequence number.
func newest(sources []source, id uint64) (Object, bool, error) {
	var (
		best  Object
		found bool
	)
	for _, src := range sources {
		if found && src.maxSeqN() <= best.SeqN {
			continue
		}
		it, ok, err := src.get(id)
		if err != nil {
			return Object{}, false, err
		}
		if ok && (!found || it.SeqN > best.SeqN) {
			best, found = it, true
		}
	}
	return best, found, nil
}

// superseded reports whether some source holds a newer version of obj.
func superseded(sources []source, obj Object) (bool, error) {
	for _, src := range sources {
		if src.maxSeqN() <= obj.SeqN {
			continue
		}
		it, ok, err := src.get(obj.ID)
		if err != nil {
			return false, err
		}
		if ok && it.SeqN > obj.SeqN {
			return true, nil
		}
	}
	return false, nil
}

// decodeRow copies the payload out of the block it was read from.
func decodeRow(key, value []byte) (Object, error) {
	it, err := memtable.DecodeItem(key, value)
	if err != nil {
		return Object{}, err
	}
	it.Value = slices.Clone(it.Value)
	return it, nil
}
