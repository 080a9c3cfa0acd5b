package resource

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"unicode/utf8"
)

// Container maps names to entries. The zero value is not usable; call New.
type Container struct {
	entries map[string]Entry
}

// New returns an empty container.
func New() *Container {
	return &Container{entries: make(map[string]Entry)}
}

// AddFile reads the file at path and stores it under name, which defaults
// to the base name of path. Valid UTF-8 content is stored as a string,
// anything else as []byte. An existing entry with the same name is
// replaced.
func (c *Container) AddFile(path string, name ...string) error {
	n := filepath.Base(path)
	if len(name) > 0 && name[0] != "" {
		n = name[0]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opErr("add file", path, ErrIO, err)
	}

	var payload any = data
	if utf8.Valid(data) {
		payload = string(data)
	}
	c.entries[n] = Entry{Name: n, Kind: KindFile, Value: payload}
	return nil
}

// AddValue stores v under name, replacing any existing entry. It returns c
// so calls can be chained.
func (c *Container) AddValue(name string, v any) *Container {
	c.entries[name] = Entry{Name: name, Kind: KindValue, Value: v}
	return c
}

// Get returns the payload stored under name.
func (c *Container) Get(name string) (any, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, opErr("get", name, ErrNotFound, nil)
	}
	return e.Value, nil
}

// Entry returns the full entry, including its kind.
func (c *Container) Entry(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Text returns a string payload stored under name.
func (c *Container) Text(name string) (string, error) {
	v, err := c.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", opErr("get text", name, ErrUnsupported, fmt.Errorf("payload is %T", v))
	}
	return s, nil
}

// Bytes returns the payload under name as bytes. Text payloads are
// converted; other value types are an error.
func (c *Container) Bytes(name string) ([]byte, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return nil, opErr("get bytes", name, ErrUnsupported, fmt.Errorf("payload is %T", v))
	}
}

// Has reports whether an entry called name exists.
func (c *Container) Has(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Len is the number of entries.
func (c *Container) Len() int { return len(c.entries) }

// Keys returns the entry names in sorted order.
func (c *Container) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Values returns the payloads ordered by name.
func (c *Container) Values() []any {
	out := make([]any, 0, len(c.entries))
	for _, k := range c.Keys() {
		out = append(out, c.entries[k].Value)
	}
	return out
}

// Items returns name/payload pairs ordered by name.
func (c *Container) Items() []Item {
	out := make([]Item, 0, len(c.entries))
	for _, k := range c.Keys() {
		out = append(out, Item{Name: k, Value: c.entries[k].Value})
	}
	return out
}

// All iterates name/payload pairs in name order over a snapshot of the
// names taken when iteration starts.
func (c *Container) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range c.Keys() {
			e, ok := c.entries[k]
			if !ok {
				continue
			}
			if !yield(k, e.Value) {
				return
			}
		}
	}
}

// Entries returns every entry ordered by name.
func (c *Container) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, k := range c.Keys() {
		out = append(out, c.entries[k])
	}
	return out
}

// String renders one line per entry: name, kind, payload type and a short
// preview.
func (c *Container) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "resource.Container (%d entries)\n", len(c.entries))
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, e := range c.Entries() {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Name, e.Kind, e.PayloadType(), preview(e.Value))
	}
	tw.Flush()
	return b.String()
}

func preview(v any) string {
	const limit = 40
	switch p := v.(type) {
	case []byte:
		return fmt.Sprintf("%d bytes", len(p))
	case string:
		if utf8.RuneCountInString(p) > limit {
			r := []rune(p)
			return fmt.Sprintf("%q... (%d bytes)", string(r[:limit]), len(p))
		}
		return fmt.Sprintf("%q", p)
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > limit {
			s = s[:limit] + "..."
		}
		return s
	}
}
