package store

import (
	"fmt"
	"math"

	"spatiallsm/pkg/geometry"
	"spatiallsm/pkg/memtable"
)

// Object is one stored spatial object with its payload.
type Object = memtable.Item

func validateBox(b geometry.Box) error {
	if b.IsEmpty() {
		return fmt.Errorf("%w: empty", ErrInvalidBox)
	}
	for _, iv := range []geometry.Interval{b.X, b.Y} {
		if math.IsNaN(iv.Min) || math.IsNaN(iv.Max) || iv.Min > iv.Max {
			return fmt.Errorf("%w: %v", ErrInvalidBox, b)
		}
	}
	return nil
}
