package resource

import (
	"bytes"
	"fmt"
	"os"

	"github.com/keithlinneman/respack/internal/codec"
)

const formatVersion = 1

// magic is the 8-byte artifact signature: "RESPACK" plus the format version.
var magic = [8]byte{'R', 'E', 'S', 'P', 'A', 'C', 'K', formatVersion}

type document struct {
	Entries []record `cbor:"entries"`
}

type record struct {
	Name string           `cbor:"name"`
	Kind Kind             `cbor:"kind"`
	Type string           `cbor:"type"`
	Data codec.RawMessage `cbor:"data"`
}

// Serialize encodes the whole container: the magic header followed by a
// deterministic CBOR document holding every entry (sorted by name) with its
// kind and payload type tag. Values that CBOR cannot represent (channels,
// functions, ...) or that would not decode back (maps keyed by anything
// but strings, unless their type is registered) fail with ErrUnsupported,
// so Deserialize accepts everything Serialize writes.
func (c *Container) Serialize() ([]byte, error) {
	doc := document{Entries: make([]record, 0, len(c.entries))}
	for _, e := range c.Entries() {
		data, err := codec.Marshal(e.Value)
		if err != nil {
			return nil, opErr("serialize", e.Name, ErrUnsupported, err)
		}
		tag := typeTag(e)
		// CBOR encodes shapes the decoder cannot rebuild, such as maps
		// with non-string keys under the generic tag
		if e.Kind == KindValue {
			if _, err := decodePayload(e.Kind, tag, data); err != nil {
				return nil, opErr("serialize", e.Name, ErrUnsupported,
					fmt.Errorf("%T does not decode back: %w", e.Value, err))
			}
		}
		doc.Entries = append(doc.Entries, record{
			Name: e.Name,
			Kind: e.Kind,
			Type: tag,
			Data: data,
		})
	}

	body, err := codec.Marshal(doc)
	if err != nil {
		return nil, opErr("serialize", "", ErrUnsupported, err)
	}

	out := make([]byte, 0, len(magic)+len(body))
	out = append(out, magic[:]...)
	return append(out, body...), nil
}

// Deserialize rebuilds a container from Serialize output. Anything that is
// not exactly such output fails with ErrCorrupt and no container.
func Deserialize(data []byte) (*Container, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)-1], magic[:len(magic)-1]) {
		return nil, opErr("deserialize", "", ErrCorrupt, fmt.Errorf("missing artifact header"))
	}
	if v := data[len(magic)-1]; v != formatVersion {
		return nil, opErr("deserialize", "", ErrCorrupt, fmt.Errorf("unsupported format version %d", v))
	}

	var doc document
	if err := codec.Unmarshal(data[len(magic):], &doc); err != nil {
		return nil, opErr("deserialize", "", ErrCorrupt, err)
	}

	c := New()
	for _, r := range doc.Entries {
		if r.Kind != KindFile && r.Kind != KindValue {
			return nil, opErr("deserialize", r.Name, ErrCorrupt, fmt.Errorf("unknown entry kind %d", r.Kind))
		}
		if _, dup := c.entries[r.Name]; dup {
			return nil, opErr("deserialize", r.Name, ErrCorrupt, fmt.Errorf("duplicate entry"))
		}
		if len(r.Data) == 0 {
			return nil, opErr("deserialize", r.Name, ErrCorrupt, fmt.Errorf("missing payload"))
		}
		v, err := decodePayload(r.Kind, r.Type, r.Data)
		if err != nil {
			return nil, opErr("deserialize", r.Name, ErrCorrupt, err)
		}
		c.entries[r.Name] = Entry{Name: r.Name, Kind: r.Kind, Value: v}
	}
	return c, nil
}

// SaveToFile writes Serialize output to path, replacing any existing file.
// The parent directory must exist.
func (c *Container) SaveToFile(path string) error {
	data, err := c.Serialize()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return opErr("save", path, ErrIO, err)
	}
	return nil
}

// LoadFromFile reads an artifact written by SaveToFile.
func LoadFromFile(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, opErr("load", path, ErrIO, err)
	}
	return Deserialize(data)
}
