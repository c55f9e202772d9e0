package flatdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// EnsureRoot creates the root directory if needed.
//
// It fails with ErrNotDirectory if root exists but is not a directory.
func EnsureRoot(root string) error {
	st, err := os.Stat(root)
	switch {
	case err == nil:
		if !st.IsDir() {
			return fmt.Errorf("%s: %w", root, ErrNotDirectory)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return fmt.Errorf("failed to create root directory: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to stat root directory: %w", err)
	}
}

// Bootstrap ensures root exists and initializes every table. It is idempotent.
func Bootstrap(root string, tables ...interface{ Init() error }) error {
	if err := EnsureRoot(root); err != nil {
		return err
	}
	for _, t := range tables {
		if err := t.Init(); err != nil {
			return err
		}
	}
	return nil
}
