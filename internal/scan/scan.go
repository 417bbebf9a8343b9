// Package scan finds SVD documents below a directory.
package scan

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

var defaultIgnoreDirs = []string{".git", ".hg", ".svn", "node_modules", "vendor", "target", "build", ".cache"}

type Options struct {
	// IgnoreDirs are directory base names never entered. Nil uses the
	// default VCS and build directories.
	IgnoreDirs []string
	// MaxDepth limits recursion; 0 means unlimited, 1 only root's entries.
	MaxDepth int
	// Exts are the accepted extensions, case-insensitive, with or without
	// the leading dot. Nil means ".svd".
	Exts []string
}

// FileVisit carries per-file metadata to Walk callbacks.
type FileVisit struct {
	// Root-relative path using forward slashes (e.g., "st/stm32f4.svd").
	Path string
	// Filesystem path as passed to WalkDir.
	AbsPath string
	// Lowercased extension (e.g., ".svd").
	Ext string
}

// Walk visits every regular file under root accepted by opts, in lexical
// order.
func Walk(root string, opts Options, cb func(FileVisit)) error {
	if strings.TrimSpace(root) == "" {
		return errors.New("scan: root is empty")
	}
	ignore := map[string]struct{}{}
	dirs := opts.IgnoreDirs
	if dirs == nil {
		dirs = defaultIgnoreDirs
	}
	for _, d := range dirs {
		ignore[d] = struct{}{}
	}
	exts := normalizeExts(opts.Exts)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if _, skip := ignore[d.Name()]; skip {
				return filepath.SkipDir
			}
			if opts.MaxDepth > 0 && depth(rel) >= opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			return nil
		}
		cb(FileVisit{Path: filepath.ToSlash(rel), AbsPath: path, Ext: ext})
		return nil
	})
}

// FindSVD returns the paths (joined with root) of all matching files, sorted
// by their root-relative form.
func FindSVD(root string, opts Options) ([]string, error) {
	var rels []string
	err := Walk(root, opts, func(fv FileVisit) {
		rels = append(rels, fv.Path)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return out, nil
}

func normalizeExts(exts []string) map[string]struct{} {
	if exts == nil {
		exts = []string{".svd"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}

func depth(rel string) int {
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}
