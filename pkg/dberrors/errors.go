package dberrors

import "errors"

var (
	ErrNotFound        = errors.New("spatiallsm: not found")
	ErrClosed          = errors.New("spatiallsm: closed")
	ErrInvalidArgument = errors.New("spatiallsm: invalid argument")

	// ErrCorruption marks malformed on-disk structures: short box bytes, bad
	// block trailers, missing index metadata.
	ErrCorruption = errors.New("spatiallsm: corruption")

	// ErrFinished is returned when a builder is used after its last node was written.
	ErrFinished = errors.New("spatiallsm: builder already finished")

	// ErrBackwardUnsupported is reported by index iterators asked to move
	// backward through a tree taller than two levels.
	ErrBackwardUnsupported = errors.New("spatiallsm: backward iteration unsupported for index height > 2")
)
