package conform

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DuplicateFile makes dst an exact duplicate of src, preferring a hard link
// so the duplication is visible in file metadata, and falling back to a byte
// copy on filesystems that refuse links. An existing dst is replaced and the
// parent directory is created if needed.
func DuplicateFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
