package resource

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"go/format"
	"go/token"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// ImportPath is the package generated sources import in EmbedContainer mode.
const ImportPath = "github.com/keithlinneman/respack/resource"

// ExportOptions controls ExportSource.
type ExportOptions struct {
	// Package is the package clause of the generated file. Default "resources".
	Package string

	// Var is the exported variable holding the data. Default "Resources".
	Var string

	// EmbedContainer embeds the whole serialized container and rebuilds it
	// at init with Deserialize, so the generated file imports this package.
	// Otherwise the file is standalone: a map[string]any literal using only
	// the standard library. That covers strings, bytes, bools, numbers,
	// time.Time, time.Duration, []string, map[string]string and any nesting
	// of []any and map[string]any over those; registered types need
	// EmbedContainer.
	EmbedContainer bool
}

func (o *ExportOptions) setDefaults() {
	if o.Package == "" {
		o.Package = "resources"
	}
	if o.Var == "" {
		o.Var = "Resources"
	}
}

func (o *ExportOptions) validate() error {
	if !token.IsIdentifier(o.Package) {
		return fmt.Errorf("package %q is not an identifier", o.Package)
	}
	if !token.IsIdentifier(o.Var) || !token.IsExported(o.Var) {
		return fmt.Errorf("var %q is not an exported identifier", o.Var)
	}
	return nil
}

// ExportSource writes a gofmt'ed Go source file to target that recreates
// the container's data when compiled into a program.
func (c *Container) ExportSource(target string, opts ExportOptions) error {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return opErr("export", target, ErrInvalidName, err)
	}

	var (
		src []byte
		err error
	)
	if opts.EmbedContainer {
		src, err = c.embeddedSource(opts)
	} else {
		src, err = c.standaloneSource(opts)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(target, src, 0o644); err != nil {
		return opErr("export", target, ErrIO, err)
	}
	return nil
}

var embeddedTmpl = template.Must(template.New("embedded").Parse(`// Code generated by respack; DO NOT EDIT.

package {{.Package}}

import (
	"encoding/base64"

	"{{.Import}}"
)

// {{.Var}} is the resource container embedded when this file was generated.
var {{.Var}} = func() *resource.Container {
	data, err := base64.StdEncoding.DecodeString({{.DataConst}})
	if err != nil {
		panic("{{.Package}}: decode embedded resources: " + err.Error())
	}
	c, err := resource.Deserialize(data)
	if err != nil {
		panic("{{.Package}}: load embedded resources: " + err.Error())
	}
	return c
}()

const {{.DataConst}} = {{.Data}}
`))

func (c *Container) embeddedSource(opts ExportOptions) ([]byte, error) {
	data, err := c.Serialize()
	if err != nil {
		return nil, err
	}
	return render(embeddedTmpl, map[string]any{
		"Package":   opts.Package,
		"Import":    ImportPath,
		"Var":       opts.Var,
		"DataConst": lowerFirst(opts.Var) + "Data",
		"Data":      chunkedLiteral(base64.StdEncoding.EncodeToString(data), 76),
	})
}

var standaloneTmpl = template.Must(template.New("standalone").Parse(`// Code generated by respack; DO NOT EDIT.

package {{.Package}}
{{with .Imports}}
import (
{{- range .}}
	"{{.}}"
{{- end}}
)
{{end}}
// {{.Var}} maps resource names to their payloads.
var {{.Var}} = map[string]any{
{{- range .Entries}}
	{{.Key}}: {{.Expr}},
{{- end}}
}
{{if .NeedsDecode}}
func {{.DecodeFunc}}(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic("{{.Package}}: decode embedded bytes: " + err.Error())
	}
	return b
}
{{end}}`))

type literal struct {
	Key  string
	Expr string
}

func (c *Container) standaloneSource(opts ExportOptions) ([]byte, error) {
	lw := &literalWriter{decodeFunc: "decode" + opts.Var}

	entries := make([]literal, 0, len(c.entries))
	for _, e := range c.Entries() {
		expr, err := lw.literal(e.Value)
		if err != nil {
			return nil, opErr("export", e.Name, ErrUnsupported, err)
		}
		entries = append(entries, literal{Key: strconv.Quote(e.Name), Expr: expr})
	}

	var imports []string
	if lw.usesDecode {
		imports = append(imports, "encoding/base64")
	}
	if lw.usesTime {
		imports = append(imports, "time")
	}
	return render(standaloneTmpl, map[string]any{
		"Package":     opts.Package,
		"Var":         opts.Var,
		"Entries":     entries,
		"Imports":     imports,
		"NeedsDecode": lw.usesDecode,
		"DecodeFunc":  lw.decodeFunc,
	})
}

func render(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, opErr("export", "", ErrUnsupported, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, opErr("export", "", ErrUnsupported, fmt.Errorf("format generated source: %w", err))
	}
	return src, nil
}

// literalWriter renders values as Go expressions and remembers which
// helpers the generated file needs.
type literalWriter struct {
	decodeFunc string
	usesDecode bool
	usesTime   bool
}

// literal renders v as a Go expression of the same dynamic type.
func (lw *literalWriter) literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "nil", nil
	case string:
		return strconv.Quote(x), nil
	case []byte:
		lw.usesDecode = true
		return lw.decodeFunc + "(" + strconv.Quote(base64.StdEncoding.EncodeToString(x)) + ")", nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return "int(" + strconv.FormatInt(int64(x), 10) + ")", nil
	case int8:
		return "int8(" + strconv.FormatInt(int64(x), 10) + ")", nil
	case int16:
		return "int16(" + strconv.FormatInt(int64(x), 10) + ")", nil
	case int32:
		return "int32(" + strconv.FormatInt(int64(x), 10) + ")", nil
	case int64:
		return "int64(" + strconv.FormatInt(x, 10) + ")", nil
	case uint:
		return "uint(" + strconv.FormatUint(uint64(x), 10) + ")", nil
	case uint8:
		return "uint8(" + strconv.FormatUint(uint64(x), 10) + ")", nil
	case uint16:
		return "uint16(" + strconv.FormatUint(uint64(x), 10) + ")", nil
	case uint32:
		return "uint32(" + strconv.FormatUint(uint64(x), 10) + ")", nil
	case uint64:
		return "uint64(" + strconv.FormatUint(x, 10) + ")", nil
	case float32:
		if math.IsInf(float64(x), 0) || math.IsNaN(float64(x)) {
			return "", fmt.Errorf("float32 %v has no literal form", x)
		}
		return "float32(" + strconv.FormatFloat(float64(x), 'g', -1, 32) + ")", nil
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return "", fmt.Errorf("float64 %v has no literal form", x)
		}
		return "float64(" + strconv.FormatFloat(x, 'g', -1, 64) + ")", nil
	case time.Duration:
		lw.usesTime = true
		return "time.Duration(" + strconv.FormatInt(int64(x), 10) + ")", nil
	case time.Time:
		lw.usesTime = true
		unix := "time.Unix(" + strconv.FormatInt(x.Unix(), 10) + ", " + strconv.Itoa(x.Nanosecond()) + ")"
		if x.Location() == time.UTC {
			return unix + ".UTC()", nil
		}
		zone, offset := x.Zone()
		return unix + ".In(time.FixedZone(" + strconv.Quote(zone) + ", " + strconv.Itoa(offset) + "))", nil
	case []string:
		if x == nil {
			return "[]string(nil)", nil
		}
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = strconv.Quote(s)
		}
		return "[]string{" + strings.Join(quoted, ", ") + "}", nil
	case map[string]string:
		if x == nil {
			return "map[string]string(nil)", nil
		}
		pairs := make([]string, 0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			pairs = append(pairs, strconv.Quote(k)+": "+strconv.Quote(x[k]))
		}
		return "map[string]string{" + strings.Join(pairs, ", ") + "}", nil
	case []any:
		if x == nil {
			return "[]any(nil)", nil
		}
		elems := make([]string, len(x))
		for i, e := range x {
			expr, err := lw.literal(e)
			if err != nil {
				return "", fmt.Errorf("[%d]: %w", i, err)
			}
			elems[i] = expr
		}
		return "[]any{" + strings.Join(elems, ", ") + "}", nil
	case map[string]any:
		if x == nil {
			return "map[string]any(nil)", nil
		}
		pairs := make([]string, 0, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			expr, err := lw.literal(x[k])
			if err != nil {
				return "", fmt.Errorf("[%q]: %w", k, err)
			}
			pairs = append(pairs, strconv.Quote(k)+": "+expr)
		}
		return "map[string]any{" + strings.Join(pairs, ", ") + "}", nil
	default:
		return "", fmt.Errorf("%T cannot be exported standalone; use EmbedContainer", v)
	}
}

// chunkedLiteral splits s into quoted pieces joined with + so long
// payloads stay readable in diffs.
func chunkedLiteral(s string, width int) string {
	if len(s) <= width {
		return strconv.Quote(s)
	}
	var parts []string
	for len(s) > width {
		parts = append(parts, strconv.Quote(s[:width]))
		s = s[width:]
	}
	if s != "" {
		parts = append(parts, strconv.Quote(s))
	}
	return strings.Join(parts, " +\n\t")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
