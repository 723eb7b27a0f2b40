// Package sandbox validates and resolves file paths requested through
// the sibling HTTP surface, so that a project-scoped file API can
// never be tricked into reading or writing outside its project root.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/agentgate/agentgate/internal/gwerrors"
)

// shellUnsafe are characters rejected outright in project-relative
// mode, independent of what the host OS would otherwise accept.
const shellUnsafe = `<>:"|?*`

// ResolveProjectRelative validates rel as a project-relative path and
// resolves it against projectRoot, requiring the result to remain
// inside projectRoot.
func ResolveProjectRelative(projectRoot, rel string) (string, error) {
	if rel == "" {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must not be empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must be project-relative: "+rel)
	}
	if hasDriveLetterPrefix(rel) {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must not carry a drive prefix: "+rel)
	}
	if strings.Contains(rel, "\x00") {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must not contain NUL: "+rel)
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == ".." {
			return "", gwerrors.New(gwerrors.InvalidPath, "path must not contain ..: "+rel)
		}
	}
	for _, c := range shellUnsafe {
		if strings.ContainsRune(rel, c) {
			return "", gwerrors.New(gwerrors.InvalidPath, "path contains an unsafe character: "+rel)
		}
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", gwerrors.Wrap(gwerrors.Internal, "resolve project root", err)
	}
	resolved := filepath.Join(root, rel)

	// filepath.Join already cleans ".." segments away, but re-verify the
	// resolved path is still inside root in case rel decoded to
	// something surprising.
	if resolved != root && !strings.HasPrefix(resolved, root+string(os.PathSeparator)) {
		return "", gwerrors.New(gwerrors.InvalidPath, "resolved path escapes project root: "+rel)
	}
	return resolved, nil
}

// hasDriveLetterPrefix reports whether rel looks like a Windows
// drive-letter path (`C:\...`), rejected regardless of host OS.
func hasDriveLetterPrefix(rel string) bool {
	if len(rel) < 2 || rel[1] != ':' {
		return false
	}
	c := rel[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ResolveAbsolute validates that path is absolute and returns its
// cleaned form. It does not confine the result to any root.
func ResolveAbsolute(path string) (string, error) {
	if path == "" {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must not be empty")
	}
	if !filepath.IsAbs(path) {
		return "", gwerrors.New(gwerrors.InvalidPath, "path must be absolute: "+path)
	}
	return filepath.Clean(path), nil
}
