package matcher

import (
	"errors"
	"fmt"
)

// ErrMetadataMismatch is returned when candidates and metadata are not index-aligned.
var ErrMetadataMismatch = errors.New("candidates and metadata length differ")

// DimensionMismatchError reports a candidate whose length differs from the query.
type DimensionMismatchError struct {
	Index    int // candidate position
	Expected int // query length
	Actual   int // candidate length
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch at candidate %d: expected %d, got %d", e.Index, e.Expected, e.Actual)
}
