// Package manifest reads pack build descriptions.
//
// A manifest is a YAML file listing what goes into a pack and where the
// result is written:
//
//	output: site.res
//	files:
//	  - path: python_logo.png
//	    name: logo
//	globs:
//	  - root: resource_files
//	    pattern: "**/*"
//	values:
//	  version: 0.1.0
//	export:
//	  path: assets/resources.go
//	  package: assets
//	extract:
//	  dir: build/site
//	  force: true
//
// extract.force defaults to true: the directory is wiped and rebuilt from
// the pack. Set it to false to extract over existing content.
//
// Relative paths are resolved against the manifest's directory, so a
// manifest builds the same pack regardless of the working directory.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/respack/internal/xerrors"
	"github.com/keithlinneman/respack/resource"
)

// DefaultPattern is used for globs that leave pattern empty.
const DefaultPattern = "*.*"

type Manifest struct {
	// Output is where the serialized pack is saved.
	Output string `yaml:"output"`

	Files  []File         `yaml:"files"`
	Globs  []Glob         `yaml:"globs"`
	Values map[string]any `yaml:"values"`

	Export  *Export  `yaml:"export,omitempty"`
	Extract *Extract `yaml:"extract,omitempty"`

	dir string
}

type File struct {
	Path string `yaml:"path"`
	// defaults to the base name of Path
	Name string `yaml:"name"`
}

type Glob struct {
	Pattern string `yaml:"pattern"`
	// defaults to the manifest directory
	Root     string `yaml:"root"`
	Flat     bool   `yaml:"flat"`
	StripExt bool   `yaml:"strip_ext"`
}

type Export struct {
	Path           string `yaml:"path"`
	Package        string `yaml:"package"`
	Var            string `yaml:"var"`
	EmbedContainer bool   `yaml:"embed_container"`
}

type Extract struct {
	Dir string `yaml:"dir"`
	// Force wipes Dir before extracting; nil means true
	Force *bool `yaml:"force"`
}

// Wipe reports whether Dir is deleted before extraction. An omitted force
// key means yes, so the directory mirrors the pack exactly.
func (e *Extract) Wipe() bool { return e.Force == nil || *e.Force }

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "read manifest")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, xerrors.Wrap(err, "resolve manifest path")
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes a manifest whose relative paths are resolved against dir.
// Unknown keys are rejected.
func Parse(data []byte, dir string) (*Manifest, error) {
	m := &Manifest{dir: dir}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
		return nil, xerrors.Wrap(err, "parse manifest")
	}
	for i := range m.Globs {
		if m.Globs[i].Pattern == "" {
			m.Globs[i].Pattern = DefaultPattern
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate reports every problem at once.
func (m *Manifest) Validate() error {
	var errs []error
	if m.Output == "" {
		errs = append(errs, fmt.Errorf("output is required"))
	}
	for i, f := range m.Files {
		if f.Path == "" {
			errs = append(errs, fmt.Errorf("files[%d]: path is required", i))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Values)) {
		if name == "" {
			errs = append(errs, fmt.Errorf("values: empty name"))
			continue
		}
		errs = append(errs, checkValue("values."+name, m.Values[name])...)
	}
	if m.Export != nil && m.Export.Path == "" {
		errs = append(errs, fmt.Errorf("export: path is required"))
	}
	if m.Extract != nil && m.Extract.Dir == "" {
		errs = append(errs, fmt.Errorf("extract: dir is required"))
	}
	if len(errs) > 0 {
		return xerrors.WithStack(fmt.Errorf("invalid manifest: %w", errors.Join(errs...)))
	}
	return nil
}

// checkValue finds mappings that a pack cannot store. YAML allows
// non-string keys ("80: http"); packs only round-trip string-keyed maps.
func checkValue(at string, v any) []error {
	var errs []error
	switch x := v.(type) {
	case map[string]any:
		for _, k := range slices.Sorted(maps.Keys(x)) {
			errs = append(errs, checkValue(at+"."+k, x[k])...)
		}
	case []any:
		for i, e := range x {
			errs = append(errs, checkValue(fmt.Sprintf("%s[%d]", at, i), e)...)
		}
	case map[any]any:
		errs = append(errs, fmt.Errorf("%s: mapping keys must be strings; quote keys like 80 as \"80\"", at))
	}
	return errs
}

// Resolve makes p absolute relative to the manifest directory.
func (m *Manifest) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, filepath.FromSlash(p))
}

// OutputPath is the resolved Output.
func (m *Manifest) OutputPath() string { return m.Resolve(m.Output) }

// Build creates a container from the manifest. Files are added first,
// then globs, then values, so a value overrides a file of the same name.
func (m *Manifest) Build() (*resource.Container, error) {
	c := resource.New()
	for _, f := range m.Files {
		var name []string
		if f.Name != "" {
			name = []string{f.Name}
		}
		if err := c.AddFile(m.Resolve(f.Path), name...); err != nil {
			return nil, err
		}
	}
	for _, g := range m.Globs {
		root := m.dir
		if g.Root != "" {
			root = m.Resolve(g.Root)
		}
		err := c.AddGlob(g.Pattern, resource.GlobOptions{
			Root:     root,
			Flat:     g.Flat,
			StripExt: g.StripExt,
		})
		if err != nil {
			return nil, err
		}
	}
	for name, v := range m.Values {
		c.AddValue(name, v)
	}
	return c, nil
}

// ExportOptions converts the export section; ok is false when absent.
func (m *Manifest) ExportOptions() (target string, opts resource.ExportOptions, ok bool) {
	if m.Export == nil {
		return "", resource.ExportOptions{}, false
	}
	return m.Resolve(m.Export.Path), resource.ExportOptions{
		Package:        m.Export.Package,
		Var:            m.Export.Var,
		EmbedContainer: m.Export.EmbedContainer,
	}, true
}
