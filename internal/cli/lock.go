package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName is created in the work directory for the duration of a run.
const lockFileName = ".crpcut-selftest.lock"

var errWorkDirLocked = errors.New("work directory is used by another self-test run")

// lockWorkDir takes an exclusive lock on dir. The returned function releases
// the lock and removes the lock file.
func lockWorkDir(dir string) (func(), error) {
	path := filepath.Join(dir, lockFileName)
	locker := flock.New(path)

	ok, err := locker.TryLock()
	if err != nil {
		_ = locker.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		_ = locker.Close()
		return nil, fmt.Errorf("%w (%s)", errWorkDirLocked, path)
	}

	return func() {
		_ = os.Remove(path)
		_ = locker.Close()
	}, nil
}
