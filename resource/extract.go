package resource

import (
	"os"
	"path/filepath"

	"github.com/keithlinneman/respack/internal/pathutil"
)

// ExtractFiles writes every file entry below dest, creating directories
// from the slash structure of each name. Value entries are skipped.
//
// With force set, dest is removed recursively first. That deletes
// everything already in it.
//
// Names that are absolute or would escape dest fail with ErrInvalidName
// before anything on disk changes. Write failures stop at the first error
// and leave the files written so far in place.
func (c *Container) ExtractFiles(dest string, force bool) error {
	type target struct {
		path string
		data []byte
	}

	var targets []target
	for _, e := range c.Entries() {
		if e.Kind != KindFile {
			continue
		}
		p, err := pathutil.SafeJoin(dest, e.Name)
		if err != nil {
			return opErr("extract", e.Name, ErrInvalidName, err)
		}
		var data []byte
		switch v := e.Value.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		}
		targets = append(targets, target{path: p, data: data})
	}

	if force {
		if err := os.RemoveAll(dest); err != nil {
			return opErr("extract", dest, ErrIO, err)
		}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return opErr("extract", dest, ErrIO, err)
	}

	for _, t := range targets {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return opErr("extract", t.path, ErrIO, err)
		}
		if err := os.WriteFile(t.path, t.data, 0o644); err != nil {
			return opErr("extract", t.path, ErrIO, err)
		}
	}
	return nil
}
