package store

import (
	"fmt"

	"github.com/gofrs/flock"
)

// Lock takes the advisory write lock for path without blocking. The returned
// func releases it. The lock file is left in place.
func Lock(path string) (func(), error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrStoreLocked)
	}
	return func() { _ = fl.Unlock() }, nil
}
