// Package pathutil validates slash-separated resource names before they
// touch the local filesystem.
package pathutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/respack/internal/xerrors"
)

// HasDotSegments reports whether any segment of p is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// SafeJoin maps a slash-separated name onto a path below root. Absolute
// names, dot segments, empty segments and backslashes are rejected so the
// result can never land outside root.
func SafeJoin(root, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("empty name")
	}
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", xerrors.Newf("absolute path: %s", name)
	}
	if strings.Contains(name, `\`) {
		return "", xerrors.Newf("backslash in name: %s", name)
	}
	if HasDotSegments(name) {
		return "", xerrors.Newf("path traversal: %s", name)
	}
	if strings.Contains(name, "//") || strings.HasSuffix(name, "/") {
		return "", xerrors.Newf("empty path segment: %s", name)
	}

	target := filepath.Join(root, filepath.FromSlash(name))

	// belt and braces: the joined path must still be under root
	cleanRoot := filepath.Clean(root) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), cleanRoot) {
		return "", xerrors.Newf("path escapes destination: %s", name)
	}
	return target, nil
}
