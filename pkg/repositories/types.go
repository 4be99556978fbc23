package repositories

import "fmt"

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}

// ErrVersionConflict marks a compare-and-swap write whose base version
// is stale: storage has advanced since the push was prepared.
type ErrVersionConflict struct {
	Expected int64
	Actual   int64
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("version conflict: expected %d, storage has %d", e.Expected, e.Actual)
}

func IsVersionConflict(err error) bool {
	_, ok := err.(*ErrVersionConflict)
	return ok
}
