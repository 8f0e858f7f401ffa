package safety

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPath    = errors.New("invalid path")
	ErrNotExist       = errors.New("directory does not exist")
	ErrNotDirectory   = errors.New("not a directory")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrSymlinkTarget  = errors.New("target is a symbolic link")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
)

// Validator decides whether a directory may be force-deleted.
// An empty AllowedRoots list places no restriction on location.
type Validator struct {
	AllowedRoots   []string
	ProtectedPaths []string
	ProtectedExact []string
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedPaths: defaultProtected(extraProtected),
		ProtectedExact: defaultProtectedExact(),
	}
}

// ValidateDeleteTarget is the single-source-of-truth for delete authorization.
// It returns the normalized absolute path on success.
func (v *Validator) ValidateDeleteTarget(path string) (string, error) {
	p, err := NormalizePath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, ErrNotExist
		}
		return p, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return p, ErrSymlinkTarget
	}
	if !info.IsDir() {
		return p, ErrNotDirectory
	}

	if IsProtectedPath(p, v.ProtectedPaths) || isExact(p, v.ProtectedExact) {
		return p, ErrProtectedPath
	}

	if len(v.AllowedRoots) == 0 {
		return p, nil
	}
	if !IsWithinAllowedRoots(p, v.AllowedRoots) {
		return p, ErrOutsideAllowed
	}

	// An ancestor may itself be a link pointing somewhere else.
	escaped, err := DetectSymlinkEscape(p, v.AllowedRoots)
	if err != nil {
		return p, err
	}
	if escaped {
		return p, ErrSymlinkEscape
	}

	return p, nil
}

// NormalizePath converts path to absolute, cleaned form
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	return filepath.Clean(abs), nil
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	p := filepath.Clean(path)
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// DetectSymlinkEscape resolves symlinks and checks if resolved path escapes allowed roots.
// Allowed roots are resolved as well so that a root living under a linked
// directory (e.g. /tmp on macOS) still matches.
func DetectSymlinkEscape(cleanAbs string, allowedRoots []string) (bool, error) {
	resolved, err := filepath.EvalSymlinks(cleanAbs)
	if err != nil {
		return false, err
	}
	resolvedAbs, err := filepath.Abs(resolved)
	if err != nil {
		return false, err
	}
	resolvedClean := filepath.Clean(resolvedAbs)

	roots := make([]string, 0, len(allowedRoots))
	for _, r := range allowedRoots {
		if rr, err := filepath.EvalSymlinks(r); err == nil {
			roots = append(roots, filepath.Clean(rr))
			continue
		}
		roots = append(roots, r)
	}
	return !IsWithinAllowedRoots(resolvedClean, roots), nil
}

// IsProtectedPath checks if path matches protected system paths
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if p == prot || hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

func isExact(path string, exact []string) bool {
	for _, e := range exact {
		if e != "" && filepath.Clean(e) == path {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path has the given prefix
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

// defaultProtected returns the system trees that are never deleted, plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/lib",
		"/lib64",
		"/sbin",
		"/proc",
		"/sys",
		"/dev",
	}
	return append(base, extra...)
}

// defaultProtectedExact blocks directories whose contents are fair game but
// which must not be removed themselves.
func defaultProtectedExact() []string {
	exact := []string{"/home", "/root", "/tmp", "/var", "/var/tmp"}
	if home, err := os.UserHomeDir(); err == nil {
		exact = append(exact, home)
	}
	return exact
}
