package blockio

import (
	"fmt"
	"os"
)

// CreateImage creates a sparse image file of size bytes, replacing any
// existing file at path.
func CreateImage(path string, size int64) error {
	if size <= 0 || size%DefaultSectorSize != 0 {
		return fmt.Errorf("image size %d must be a positive multiple of %d", size, DefaultSectorSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
