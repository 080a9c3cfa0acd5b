package resource

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/keithlinneman/respack/internal/xerrors"
)

// GlobOptions controls AddGlob. The zero value searches the current
// working directory, names entries by their path relative to the root and
// keeps file extensions.
type GlobOptions struct {
	// Root is the directory the pattern is evaluated against.
	Root string

	// Flat names entries by base file name only. Later matches with the
	// same base name replace earlier ones.
	Flat bool

	// StripExt drops the final extension from each entry name.
	StripExt bool
}

// AddGlob adds every regular file below opts.Root matching pattern. The
// pattern uses slash separators; "**" matches any number of directories.
// Matches are added in sorted order through AddFile. Entry names use
// forward slashes regardless of OS.
func (c *Container) AddGlob(pattern string, opts GlobOptions) error {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return opErr("add glob", pattern, ErrIO, err)
		}
		root = wd
	}
	info, err := os.Stat(root)
	if err != nil {
		return opErr("add glob", root, ErrIO, err)
	}
	if !info.IsDir() {
		return opErr("add glob", root, ErrIO, xerrors.New("root is not a directory"))
	}

	fsys := os.DirFS(root)
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return xerrors.Wrapf(err, "resource: add glob %q", pattern)
	}
	slices.Sort(matches)

	for _, m := range matches {
		fi, err := fs.Stat(fsys, m)
		if err != nil {
			return opErr("add glob", m, ErrIO, err)
		}
		if !fi.Mode().IsRegular() {
			continue
		}

		name := m
		if opts.Flat {
			name = path.Base(m)
		}
		if opts.StripExt {
			name = stripExt(name)
		}
		if err := c.AddFile(filepath.Join(root, filepath.FromSlash(m)), name); err != nil {
			return err
		}
	}
	return nil
}

// stripExt removes the last extension of the final path element. A leading
// dot on the element (".env") is not treated as an extension.
func stripExt(name string) string {
	base := path.Base(name)
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return name
	}
	return strings.TrimSuffix(name, ext)
}
