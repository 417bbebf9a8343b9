// Package safeio confines document reads to one directory tree.
package safeio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var ErrOutsideRoot = errors.New("safeio: path resolves outside root")

// FS resolves every path against a fixed root and refuses anything that
// escapes it, through ".." or through symlinks. It implements fs.FS.
type FS struct {
	absRoot string // absolute root with symlinks resolved; empty when unconfined
}

// Unconfined returns an FS that accepts any path. Relative paths are taken
// from the working directory.
func Unconfined() *FS {
	return &FS{}
}

// New locks all operations to root, which must be an existing directory.
func New(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("safeio: root %s is not a directory", abs)
	}
	return &FS{absRoot: abs}, nil
}

func (s *FS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Resolve returns the absolute, symlink-free form of userPath. Relative
// paths are taken from the root; absolute ones must already lie under it.
func (s *FS) Resolve(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if strings.TrimSpace(userPath) == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(userPath)
	if s.absRoot == "" {
		abs, err := filepath.Abs(clean)
		if err != nil {
			return "", err
		}
		return filepath.EvalSymlinks(abs)
	}
	joined := clean
	if !isAbs(clean) {
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %s", ErrOutsideRoot, userPath)
		}
		joined = filepath.Join(s.absRoot, clean)
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w: %s (root %s)", ErrOutsideRoot, resolved, s.absRoot)
	}
	return resolved, nil
}

// ReadFile reads a regular file under the root.
func (s *FS) ReadFile(userPath string) ([]byte, error) {
	p, err := s.regular(userPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// OpenFile opens a regular file under the root for reading.
func (s *FS) OpenFile(userPath string) (*os.File, error) {
	p, err := s.regular(userPath)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Stat returns metadata for a file or directory under the root.
func (s *FS) Stat(userPath string) (fs.FileInfo, error) {
	p, err := s.Resolve(userPath)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// Open implements fs.FS; names use "/" separators and are root relative.
func (s *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return s.OpenFile(filepath.FromSlash(name))
}

func (s *FS) regular(userPath string) (string, error) {
	p, err := s.Resolve(userPath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("safeio: %s is a directory", userPath)
	}
	return p, nil
}

func isAbs(p string) bool {
	return filepath.IsAbs(p) || (runtime.GOOS == "windows" && filepath.VolumeName(p) != "")
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if root == "" || path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path+sep, root)
}
