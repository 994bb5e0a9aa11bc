// Package atomic writes output files under a temporary name and renames them
// into place, so a partially written file is never visible at its final path.
package atomic

import (
	"errors"
	"fmt"
	"os"
)

// TempSuffix is appended to the final path while a file is being written.
const TempSuffix = "~"

// backupSuffix holds a previous final file while a group is being replaced.
const backupSuffix = "~old"

var rename = os.Rename

// TempPath returns the temporary name used for path.
func TempPath(path string) string {
	return path + TempSuffix
}

// File creates the temporary file for path, passes it to fn and, when fn
// succeeds, replaces path with it. On any failure the temporary file is removed
// and an existing file at path is left untouched.
func File(path string, fn func(f *os.File) error) error {
	return Files([]string{path}, func(files []*os.File) error {
		return fn(files[0])
	})
}

// Files is File for a group of outputs produced together. Every file is
// renamed into place only after fn has succeeded for all of them. If one of
// the renames fails, the files already placed are removed and the previous
// final files restored, so the group is never left mixed.
func Files(paths []string, fn func(files []*os.File) error) (err error) {
	files := make([]*os.File, 0, len(paths))
	defer func() {
		if err == nil {
			return
		}
		for i, f := range files {
			f.Close()
			os.Remove(TempPath(paths[i]))
		}
	}()

	for _, p := range paths {
		f, err := os.Create(TempPath(p))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", TempPath(p), err)
		}
		files = append(files, f)
	}

	if err := fn(files); err != nil {
		return err
	}

	for i, f := range files {
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", TempPath(paths[i]), err)
		}
	}

	return replaceAll(paths)
}

// replaceAll moves the temporary files of paths into place as a group.
func replaceAll(paths []string) error {
	var backups []string
	restore := func() {
		for _, p := range backups {
			rename(p+backupSuffix, p)
		}
	}

	for _, p := range paths {
		if err := removeIfExists(p + backupSuffix); err != nil {
			restore()
			return err
		}
		err := rename(p, p+backupSuffix)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			restore()
			return fmt.Errorf("failed to back up %s: %w", p, err)
		}
		backups = append(backups, p)
	}

	for i, p := range paths {
		if err := rename(TempPath(p), p); err != nil {
			for _, placed := range paths[:i] {
				os.Remove(placed)
			}
			restore()
			return fmt.Errorf("failed to rename %s: %w", TempPath(p), err)
		}
	}

	for _, p := range backups {
		os.Remove(p + backupSuffix)
	}
	return nil
}

// Path is for writers that open the file themselves (e.g. a database driver).
// fn receives the temporary path; the result is moved to path on success.
func Path(path string, fn func(tmp string) error) error {
	tmp := TempPath(path)
	if err := removeIfExists(tmp); err != nil {
		return err
	}

	if err := fn(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := replace(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func replace(tmp, path string) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	if err := rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
