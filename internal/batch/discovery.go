// Package batch expands command-line arguments into the image files to OCR.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultInclude matches the image formats the decoders are registered for.
var DefaultInclude = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.bmp", "*.webp"}

// DiscoverOptions controls how directories are expanded.
type DiscoverOptions struct {
	Recursive bool
	Include   []string // base-name globs; empty means DefaultInclude
	Exclude   []string
}

// Discover returns the files named by args. Files given explicitly are kept
// unless excluded; directories contribute their matching files in lexical
// order, descending into subdirectories only when Recursive is set.
func Discover(args []string, opts DiscoverOptions) ([]string, error) {
	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}
	for _, p := range slices.Concat(include, opts.Exclude) {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if !matchesAny(arg, opts.Exclude) {
				files = append(files, arg)
			}
			continue
		}
		found, err := walk(arg, opts.Recursive, include, opts.Exclude)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func walk(root string, recursive bool, include, exclude []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(path, include) && !matchesAny(path, exclude) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// matchesAny matches the base name case-insensitively.
func matchesAny(path string, patterns []string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), base); ok {
			return true
		}
	}
	return false
}
