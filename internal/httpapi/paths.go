package httpapi

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

var errOutsideRoot = errors.New("path must be relative to the documents directory")

func documentsRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// resolvePaths maps client paths and globs onto paths under root. Absolute
// paths, ".." segments and symlinks leading out of root are rejected.
func resolvePaths(root string, paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`) ||
			!filepath.IsLocal(filepath.Clean(p)) {
			return nil, fmt.Errorf("%q: %w", p, errOutsideRoot)
		}
		full := filepath.Join(root, p)
		matches := []string{full}
		if strings.ContainsAny(p, "*?[") {
			m, err := filepath.Glob(full)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", p, err)
			}
			matches = m
		}
		for _, m := range matches {
			if err := within(root, m); err != nil {
				return nil, fmt.Errorf("%q: %w", p, err)
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func within(root, path string) error {
	real, err := filepath.EvalSymlinks(path)
	if errors.Is(err, fs.ErrNotExist) {
		// The loader reports missing files.
		return nil
	}
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, real)
	if err != nil || !filepath.IsLocal(rel) {
		return errOutsideRoot
	}
	return nil
}
