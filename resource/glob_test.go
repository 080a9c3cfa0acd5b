package resource

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func globFixture(t *testing.T) string {
	t.Helper()
	return writeFiles(t, t.TempDir(), map[string][]byte{
		"c.txt":         []byte("c"),
		"a/b.txt":       []byte("b"),
		"a/deep/d.txt":  []byte("d"),
		"a/deep/e.json": []byte(`{"e":1}`),
		"img/logo.png":  binaryBlob,
		".env":          []byte("SECRET=1"),
	})
}

func TestAddGlob_TreeNaming(t *testing.T) {
	root := globFixture(t)
	c := New()
	if err := c.AddGlob("**/*.txt", GlobOptions{Root: root}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}

	want := []string{"a/b.txt", "a/deep/d.txt", "c.txt"}
	if got := c.Keys(); !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if got := mustGet(t, c, "a/b.txt"); got != "b" {
		t.Fatalf("a/b.txt = %v, want b", got)
	}
	if e, _ := c.Entry("a/deep/d.txt"); e.Kind != KindFile {
		t.Fatalf("kind = %v, want file", e.Kind)
	}
}

func TestAddGlob_Flat(t *testing.T) {
	root := globFixture(t)
	c := New()
	if err := c.AddGlob("a/*.txt", GlobOptions{Root: root, Flat: true}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	if got := c.Keys(); !slices.Equal(got, []string{"b.txt"}) {
		t.Fatalf("keys = %v, want [b.txt]", got)
	}
}

func TestAddGlob_FlatCollisionLastWins(t *testing.T) {
	root := writeFiles(t, t.TempDir(), map[string][]byte{
		"x/same.txt": []byte("first"),
		"y/same.txt": []byte("second"),
	})
	c := New()
	if err := c.AddGlob("**/same.txt", GlobOptions{Root: root, Flat: true}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	// matches are processed in sorted order, so y/ wins
	if got := mustGet(t, c, "same.txt"); got != "second" {
		t.Fatalf("same.txt = %v, want second", got)
	}
}

func TestAddGlob_StripExt(t *testing.T) {
	root := globFixture(t)
	c := New()
	if err := c.AddGlob("*", GlobOptions{Root: root, StripExt: true}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	// directories a/ and img/ are skipped; .env has no extension to strip
	if got := c.Keys(); !slices.Equal(got, []string{".env", "c"}) {
		t.Fatalf("keys = %v, want [.env c]", got)
	}

	c = New()
	if err := c.AddGlob("**/*.json", GlobOptions{Root: root, StripExt: true}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	if !c.Has("a/deep/e") {
		t.Fatalf("keys = %v, want a/deep/e", c.Keys())
	}
}

func TestAddGlob_SkipsDirectories(t *testing.T) {
	root := globFixture(t)
	c := New()
	if err := c.AddGlob("**", GlobOptions{Root: root}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	for _, k := range c.Keys() {
		if k == "a" || k == "a/deep" || k == "img" {
			t.Fatalf("directory %q should not be added", k)
		}
	}
	if c.Len() != 6 {
		t.Fatalf("Len = %d, want 6 files: %v", c.Len(), c.Keys())
	}
	if _, ok := mustGet(t, c, "img/logo.png").([]byte); !ok {
		t.Fatal("binary file should be stored as bytes")
	}
}

func TestAddGlob_DefaultRootIsWorkingDir(t *testing.T) {
	root := globFixture(t)
	t.Chdir(root)

	c := New()
	if err := c.AddGlob("./a/*.txt", GlobOptions{}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	if !c.Has("a/b.txt") {
		t.Fatalf("keys = %v, want a/b.txt", c.Keys())
	}
}

func TestAddGlob_NoMatches(t *testing.T) {
	c := New()
	if err := c.AddGlob("*.nothing", GlobOptions{Root: globFixture(t)}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len = %d, want 0", c.Len())
	}
}

func TestAddGlob_Errors(t *testing.T) {
	root := globFixture(t)

	err := New().AddGlob("*", GlobOptions{Root: filepath.Join(root, "missing")})
	if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing root err = %v", err)
	}

	err = New().AddGlob("*", GlobOptions{Root: filepath.Join(root, "c.txt")})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("file root err = %v, want ErrIO", err)
	}

	if err := New().AddGlob("[", GlobOptions{Root: root}); err == nil {
		t.Fatal("bad pattern should fail")
	}
}

func TestAddGlob_UnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	root := writeFiles(t, t.TempDir(), map[string][]byte{"locked.txt": []byte("x")})
	if err := os.Chmod(filepath.Join(root, "locked.txt"), 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := New().AddGlob("*.txt", GlobOptions{Root: root}); !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestStripExt(t *testing.T) {
	tests := map[string]string{
		"c.txt":         "c",
		"a/b.tar.gz":    "a/b.tar",
		"noext":         "noext",
		".env":          ".env",
		"dir.d/file":    "dir.d/file",
		"dir.d/.hidden": "dir.d/.hidden",
		"dir/.cfg.yaml": "dir/.cfg",
	}
	for in, want := range tests {
		if got := stripExt(in); got != want {
			t.Errorf("stripExt(%q) = %q, want %q", in, got, want)
		}
	}
}
