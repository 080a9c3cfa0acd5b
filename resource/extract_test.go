package resource

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExtractFiles_Inverse(t *testing.T) {
	src := writeFiles(t, t.TempDir(), map[string][]byte{
		"index.html":     []byte("<html></html>"),
		"css/site.css":   []byte("body{}"),
		"img/a/logo.png": binaryBlob,
	})
	c := New()
	if err := c.AddGlob("**", GlobOptions{Root: src}); err != nil {
		t.Fatalf("AddGlob: %v", err)
	}
	c.AddValue("version", "0.1.0")

	dest := filepath.Join(t.TempDir(), "out")
	if err := c.ExtractFiles(dest, true); err != nil {
		t.Fatalf("ExtractFiles: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "version")); !os.IsNotExist(err) {
		t.Fatal("value entries must not be extracted")
	}

	again := New()
	if err := again.AddGlob("**", GlobOptions{Root: dest}); err != nil {
		t.Fatalf("AddGlob dest: %v", err)
	}
	for _, e := range c.Entries() {
		if e.Kind != KindFile {
			continue
		}
		got, err := again.Get(e.Name)
		if err != nil {
			t.Fatalf("re-added %q: %v", e.Name, err)
		}
		switch want := e.Value.(type) {
		case string:
			if got != want {
				t.Errorf("%s = %#v, want %#v", e.Name, got, want)
			}
		case []byte:
			if b, ok := got.([]byte); !ok || !bytes.Equal(b, want) {
				t.Errorf("%s = %#v, want bytes %x", e.Name, got, want)
			}
		}
	}
}

func TestExtractFiles_ForceRemovesExisting(t *testing.T) {
	dest := writeFiles(t, t.TempDir(), map[string][]byte{"stale.txt": []byte("old")})
	c := New()
	c.entries["fresh.txt"] = Entry{Name: "fresh.txt", Kind: KindFile, Value: "new"}

	if err := c.ExtractFiles(dest, true); err != nil {
		t.Fatalf("ExtractFiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("force should remove existing content")
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "fresh.txt")); string(data) != "new" {
		t.Fatalf("fresh.txt = %q", data)
	}
}

func TestExtractFiles_NoForceKeepsExisting(t *testing.T) {
	dest := writeFiles(t, t.TempDir(), map[string][]byte{
		"stale.txt": []byte("old"),
		"over.txt":  []byte("before"),
	})
	c := New()
	c.entries["over.txt"] = Entry{Name: "over.txt", Kind: KindFile, Value: "after"}

	if err := c.ExtractFiles(dest, false); err != nil {
		t.Fatalf("ExtractFiles: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "stale.txt")); string(data) != "old" {
		t.Fatal("existing files should survive without force")
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "over.txt")); string(data) != "after" {
		t.Fatalf("over.txt = %q, want after", data)
	}
}

func TestExtractFiles_RejectsUnsafeNamesBeforeWriting(t *testing.T) {
	for _, name := range []string{"../escape.txt", "/etc/evil", "a/../../x", ""} {
		t.Run(name, func(t *testing.T) {
			dest := writeFiles(t, t.TempDir(), map[string][]byte{"keep.txt": []byte("keep")})
			c := New()
			c.entries["ok.txt"] = Entry{Name: "ok.txt", Kind: KindFile, Value: "ok"}
			c.entries[name] = Entry{Name: name, Kind: KindFile, Value: "bad"}

			err := c.ExtractFiles(dest, true)
			if !errors.Is(err, ErrInvalidName) {
				t.Fatalf("err = %v, want ErrInvalidName", err)
			}
			if _, err := os.Stat(filepath.Join(dest, "keep.txt")); err != nil {
				t.Fatal("destination must be untouched when a name is rejected")
			}
		})
	}
}

func TestExtractFiles_PartialWriteNotRolledBack(t *testing.T) {
	dest := t.TempDir()
	c := New()
	// "a" is written as a file first, then "a/b" cannot create directory a/
	c.entries["a"] = Entry{Name: "a", Kind: KindFile, Value: "file"}
	c.entries["a/b"] = Entry{Name: "a/b", Kind: KindFile, Value: "nested"}

	err := c.ExtractFiles(dest, false)
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "a")); string(data) != "file" {
		t.Fatal("files written before the failure should remain")
	}
}
