// Package fileops provides working-tree file enumeration and IO helpers.
package fileops

import (
	"os"
	"path/filepath"
	"sort"

	errs "symsync/internal/errors"
	"symsync/internal/image"
)

// Walk enumerates every file under root, recursing into subdirectories and
// following symbolic links as the host resolves them. The private control
// directory .sync at the root is skipped entirely. Returned paths are
// relative to root, slash-separated, and sorted lexicographically so runs
// are deterministic.
func Walk(root string) ([]string, error) {
	var files []string
	if err := walkDir(root, "", &files); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func walkDir(root, rel string, files *[]string) error {
	dir := filepath.Join(root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errs.NewFileError("readdir", dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		// Stat (not Lstat) so a symlink to a directory walks like one.
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return errs.NewFileError("stat", filepath.Join(dir, name), err)
		}
		if info.IsDir() {
			if rel == "" && name == image.SyncDir {
				continue
			}
			if err := walkDir(root, childRel, files); err != nil {
				return err
			}
			continue
		}
		*files = append(*files, childRel)
	}
	return nil
}
