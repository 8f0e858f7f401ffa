package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile writes content to path, creating missing parents. Owner
// permissions are normalized on every directory between root and the file,
// and on the file itself, so the tree can later be removed without any
// special handling. Returns the number of bytes written.
func WriteFile(root, path, content string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	NormalizeAncestors(root, dir)

	// An earlier run may have left a read-only copy behind.
	if _, err := os.Lstat(path); err == nil {
		_ = ClearProtection(OSDeleter{}, path, false)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	_ = ClearProtection(OSDeleter{}, path, false)

	return len(content), nil
}

// NormalizeAncestors clears write protection on dir and each parent up to and
// including root. Failures are ignored: a directory we cannot chmod but can
// still write into is not an error.
func NormalizeAncestors(root, dir string) {
	root = filepath.Clean(root)
	for d := filepath.Clean(dir); within(d, root); d = filepath.Dir(d) {
		_ = ClearProtection(OSDeleter{}, d, true)
		if d == root || d == filepath.Dir(d) {
			return
		}
	}
}

func within(path, root string) bool {
	if path == root {
		return true
	}
	if root == string(os.PathSeparator) {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}
