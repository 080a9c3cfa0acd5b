package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/respack/resource"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "logo.png"), "\x89PNG\xff")
	writeFile(t, filepath.Join(dir, "resource_files", "a.txt"), "alpha")
	writeFile(t, filepath.Join(dir, "resource_files", "b.json"), "{}")
	writeFile(t, filepath.Join(dir, "resource_files", "README"), "no extension")
	writeFile(t, filepath.Join(dir, "resource_files", "sub", "c.txt"), "gamma")
	return dir
}

func TestLoadAndBuild(t *testing.T) {
	dir := fixture(t)
	writeFile(t, filepath.Join(dir, "respack.yaml"), `
output: out/test.res
files:
  - path: logo.png
    name: logo
globs:
  - root: resource_files
values:
  version: 0.1.0
  count: 3
  ratio: 0.5
  enabled: true
`)

	m, err := Load(filepath.Join(dir, "respack.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := m.OutputPath(), filepath.Join(dir, "out", "test.res"); got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
	if m.Globs[0].Pattern != DefaultPattern {
		t.Fatalf("pattern = %q, want default %q", m.Globs[0].Pattern, DefaultPattern)
	}

	c, err := m.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// "*.*" skips README and does not descend into sub/
	want := []string{"a.txt", "b.json", "count", "enabled", "logo", "ratio", "version"}
	if got := c.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	if b, _ := c.Get("logo"); string(b.([]byte)) != "\x89PNG\xff" {
		t.Fatalf("logo = %#v", b)
	}
	if v, _ := c.Get("count"); v != 3 {
		t.Fatalf("count = %#v (%T)", v, v)
	}
	if v, _ := c.Get("version"); v != "0.1.0" {
		t.Fatalf("version = %#v", v)
	}
	if _, _, ok := m.ExportOptions(); ok {
		t.Fatal("no export section, ExportOptions should report !ok")
	}
}

func TestBuild_GlobOptionsAndOverride(t *testing.T) {
	dir := fixture(t)
	m, err := Parse([]byte(`
output: x.res
globs:
  - root: resource_files
    pattern: "**/*.txt"
    flat: true
    strip_ext: true
values:
  a: overridden
`), dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := m.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := c.Keys(); strings.Join(got, ",") != "a,c" {
		t.Fatalf("keys = %v, want [a c]", got)
	}
	if e, _ := c.Entry("a"); e.Kind != resource.KindValue || e.Value != "overridden" {
		t.Fatalf("a = %+v, values should override files", e)
	}
}

func TestBuild_GlobRootDefaultsToManifestDir(t *testing.T) {
	dir := fixture(t)
	m, err := Parse([]byte("output: x.res\nglobs:\n  - pattern: \"*.png\"\n"), dir)
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.Build()
	if err != nil {
		t.Fatal(err)
	}
	if !c.Has("logo.png") || c.Len() != 1 {
		t.Fatalf("keys = %v", c.Keys())
	}
}

func TestBuild_MissingFile(t *testing.T) {
	m, err := Parse([]byte("output: x.res\nfiles:\n  - path: nope.txt\n"), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Build(); !errors.Is(err, resource.ErrIO) {
		t.Fatalf("err = %v, want resource.ErrIO", err)
	}
}

func TestExportAndExtractSections(t *testing.T) {
	dir := t.TempDir()
	m, err := Parse([]byte(`
output: x.res
export:
  path: gen/res.go
  package: assets
  var: Bundle
  embed_container: true
extract:
  dir: /tmp/abs-out
  force: true
`), dir)
	if err != nil {
		t.Fatal(err)
	}
	target, opts, ok := m.ExportOptions()
	if !ok || target != filepath.Join(dir, "gen", "res.go") {
		t.Fatalf("export target = %q, ok=%v", target, ok)
	}
	if opts.Package != "assets" || opts.Var != "Bundle" || !opts.EmbedContainer {
		t.Fatalf("opts = %+v", opts)
	}
	if got := m.Resolve(m.Extract.Dir); got != "/tmp/abs-out" {
		t.Fatalf("absolute paths should be kept, got %q", got)
	}
	if !m.Extract.Wipe() {
		t.Fatal("force not decoded")
	}
}

func TestExtractForce_Default(t *testing.T) {
	tests := map[string]bool{
		"output: x.res\nextract:\n  dir: out\n":                 true,
		"output: x.res\nextract:\n  dir: out\n  force: true\n":  true,
		"output: x.res\nextract:\n  dir: out\n  force: false\n": false,
	}
	for doc, want := range tests {
		m, err := Parse([]byte(doc), t.TempDir())
		if err != nil {
			t.Fatalf("Parse(%q): %v", doc, err)
		}
		if got := m.Extract.Wipe(); got != want {
			t.Errorf("Parse(%q).Extract.Wipe() = %v, want %v", doc, got, want)
		}
	}
}

func TestParse_NonStringKeysRejected(t *testing.T) {
	_, err := Parse([]byte(`
output: x.res
values:
  ok: {name: web}
  ports: {80: http, 443: https}
  hosts:
    - {1: a}
`), t.TempDir())
	if err == nil {
		t.Fatal("expected error for integer mapping keys")
	}
	for _, want := range []string{"values.ports: mapping keys must be strings", "values.hosts[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "values.ok") {
		t.Errorf("string keyed mapping should pass: %v", err)
	}
}

func TestBuild_NestedValuesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Parse([]byte(`
output: x.res
values:
  service: {name: web, ports: ["80", "443"], tls: {enabled: true}}
`), dir)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := m.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.SaveToFile(m.OutputPath()); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}
	out, err := resource.LoadFromFile(m.OutputPath())
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	svc, err := out.Get("service")
	if err != nil {
		t.Fatal(err)
	}
	tls, _ := svc.(map[string]any)["tls"].(map[string]any)
	if tls["enabled"] != true {
		t.Fatalf("service = %#v", svc)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing output":    "files: []\n",
		"file without path": "output: x.res\nfiles:\n  - name: a\n",
		"export no path":    "output: x.res\nexport:\n  package: a\n",
		"extract no dir":    "output: x.res\nextract:\n  force: true\n",
		"unknown key":       "output: x.res\nfilez: []\n",
		"bad yaml":          "output: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), t.TempDir()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParse_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("files:\n  - name: a\nexport:\n  package: b\n"), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"output is required", "files[0]", "export: path"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}
