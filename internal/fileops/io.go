package fileops

import (
	"os"
	"path/filepath"

	errs "symsync/internal/errors"
)

// WriteFile writes content to path, creating parent directories as needed.
// Pulled files may live in subdirectories that do not exist yet on this
// machine.
func WriteFile(path string, content []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.NewFileError("mkdir", dir, err)
		}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return errs.NewFileError("write", path, err)
	}
	return nil
}

// ModTime returns the file's mtime truncated to UNIX seconds, the only
// precision the image records.
func ModTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errs.NewFileError("stat", path, err)
	}
	return info.ModTime().Unix(), nil
}
