package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// SymlinkPolicy defines how file helpers treat symlinks.
type SymlinkPolicy int

const (
	// RejectSymlinks fails on any symlink.
	RejectSymlinks SymlinkPolicy = iota
	// ResolveSymlinks follows symlinks to their target.
	ResolveSymlinks
	// AllowSymlinks uses the path as given.
	AllowSymlinks
)

// Resolve applies policy to path and returns the path that should be opened.
func Resolve(path string, policy SymlinkPolicy) (string, error) {
	if policy < RejectSymlinks || policy > AllowSymlinks {
		return "", fmt.Errorf("invalid symlink policy: %d", policy)
	}

	info, err := os.Lstat(path)
	if err != nil {
		return "", fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return path, nil
	}

	switch policy {
	case RejectSymlinks:
		return "", fmt.Errorf("symlinks are not allowed: %s", path)
	case ResolveSymlinks:
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve symlink %s: %w", path, err)
		}
		return target, nil
	default:
		return path, nil
	}
}

// SafeReadFile reads path after applying policy.
func SafeReadFile(path string, policy SymlinkPolicy) ([]byte, error) {
	resolved, err := Resolve(path, policy)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// SafeWriteFile writes data to path. An existing file and the parent
// directory are both checked against policy first.
func SafeWriteFile(path string, data []byte, perm os.FileMode, policy SymlinkPolicy) error {
	if _, err := os.Lstat(path); err == nil {
		resolved, err := Resolve(path, policy)
		if err != nil {
			return fmt.Errorf("existing file symlink check failed: %w", err)
		}
		path = resolved
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		resolved, err := Resolve(dir, policy)
		if err != nil {
			return fmt.Errorf("parent directory symlink check failed: %w", err)
		}
		if resolved != dir {
			path = filepath.Join(resolved, filepath.Base(path))
		}
	}

	return os.WriteFile(path, data, perm)
}
