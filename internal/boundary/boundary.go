// Package boundary decides whether filesystem paths and shell commands stay
// inside an approved root directory. All functions are pure with respect to
// engine state; the only I/O is symlink resolution.
package boundary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Resolve converts path to an absolute, symlink-resolved form. Relative
// paths are resolved against workDir. The context bounds symlink-resolution
// I/O so a pathological filesystem cannot hang the caller.
func Resolve(ctx context.Context, path, workDir string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	path = filepath.Clean(path)

	type result struct {
		resolved string
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		resolved, err := resolveSymlinks(path)
		ch <- result{resolved, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.resolved, r.err
	}
}

// resolveSymlinks resolves symlinks on the longest existing prefix of path
// and rejoins the non-existent remainder. Tools are allowed to target files
// that do not exist yet, but the directories leading to them must not escape
// through a link.
func resolveSymlinks(path string) (string, error) {
	remainder := ""
	p := path
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		remainder = filepath.Join(filepath.Base(p), remainder)
		p = parent
	}
}

// IsWithin reports whether path is equal to or a descendant of dir.
func IsWithin(path, dir string) bool {
	path = filepath.Clean(path)
	dir = filepath.Clean(dir)

	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
