package resource

import (
	"io/fs"
	"testing/fstest"
	"time"
)

// FS returns a read-only in-memory filesystem of the file entries. Names
// that are not valid fs paths (see fs.ValidPath) are left out. The FS is a
// snapshot; later changes to c do not show up in it.
func (c *Container) FS() fs.FS {
	mfs := make(fstest.MapFS)
	now := time.Now()
	for _, e := range c.Entries() {
		if e.Kind != KindFile || !fs.ValidPath(e.Name) || e.Name == "." {
			continue
		}
		var data []byte
		switch v := e.Value.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = append([]byte(nil), v...)
		}
		mfs[e.Name] = &fstest.MapFile{Data: data, Mode: 0o444, ModTime: now}
	}
	return mfs
}
