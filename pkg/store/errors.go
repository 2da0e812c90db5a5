package store

import (
	"fmt"

	"spatiallsm/pkg/dberrors"
)

var (
	ErrInvalidBox = fmt.Errorf("%w: invalid box", dberrors.ErrInvalidArgument)
)
