package backend

import (
	"fmt"
)

var (
	// ErrDoesNotExist is returned by reads of keys absent from a store.
	ErrDoesNotExist = fmt.Errorf("does not exist")

	// ErrEmptyBucket is returned when a remote operation has no bucket to
	// act on.
	ErrEmptyBucket = fmt.Errorf("empty bucket")
)

// Object is one remote file candidate: its base filename and the key that
// locates it inside the bucket.
type Object struct {
	Name string
	Key  string
}
