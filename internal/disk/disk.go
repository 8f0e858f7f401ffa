// Package disk reports filesystem capacity around generate and cleanup runs
package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Usage describes the filesystem holding a path
type Usage struct {
	Path        string
	FreeBytes   int64 // Available to unprivileged users
	TotalBytes  int64
	UsedPercent float64
}

// Stat returns usage for the filesystem holding path. A path that does not
// exist yet is resolved to its nearest existing ancestor, so the generator
// can report free space before creating its root.
func Stat(path string) (Usage, error) {
	existing, err := nearestExisting(path)
	if err != nil {
		return Usage{Path: path}, err
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(existing, &stat); err != nil {
		return Usage{Path: path}, fmt.Errorf("statfs %s: %w", existing, err)
	}

	u := Usage{
		Path:       path,
		TotalBytes: int64(stat.Blocks) * int64(stat.Bsize),
		FreeBytes:  int64(stat.Bavail) * int64(stat.Bsize),
	}
	if u.TotalBytes > 0 {
		u.UsedPercent = float64(u.TotalBytes-u.FreeBytes) / float64(u.TotalBytes) * 100.0
	}
	return u, nil
}

// FreePercent returns the percentage of free space
func (u Usage) FreePercent() float64 {
	if u.TotalBytes == 0 {
		return 0
	}
	return 100.0 - u.UsedPercent
}

func nearestExisting(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		p = parent
	}
}
