package resource

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/keithlinneman/respack/internal/codec"
)

// Payload type tags written next to every entry in an artifact.
const (
	typeText  = "text"
	typeBytes = "bytes"
	typeNil   = "nil"
	// typeAny marks values of unregistered types. They are stored as plain
	// CBOR and come back in generic form: []any, map[string]any, int64,
	// uint64, float64, string, bool.
	typeAny = "any"
)

// builtins are the closed set of value types that round-trip exactly
// without registration.
var builtins = map[string]reflect.Type{
	"string":    reflect.TypeFor[string](),
	typeBytes:   reflect.TypeFor[[]byte](),
	"bool":      reflect.TypeFor[bool](),
	"int":       reflect.TypeFor[int](),
	"int8":      reflect.TypeFor[int8](),
	"int16":     reflect.TypeFor[int16](),
	"int32":     reflect.TypeFor[int32](),
	"int64":     reflect.TypeFor[int64](),
	"uint":      reflect.TypeFor[uint](),
	"uint8":     reflect.TypeFor[uint8](),
	"uint16":    reflect.TypeFor[uint16](),
	"uint32":    reflect.TypeFor[uint32](),
	"uint64":    reflect.TypeFor[uint64](),
	"float32":   reflect.TypeFor[float32](),
	"float64":   reflect.TypeFor[float64](),
	"time":      reflect.TypeFor[time.Time](),
	"duration":  reflect.TypeFor[time.Duration](),
	"strings":   reflect.TypeFor[[]string](),
	"stringmap": reflect.TypeFor[map[string]string](),
}

var builtinNames = func() map[reflect.Type]string {
	m := make(map[reflect.Type]string, len(builtins))
	for name, t := range builtins {
		m[t] = name
	}
	return m
}()

var registry = struct {
	sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}{
	byName: make(map[string]reflect.Type),
	byType: make(map[reflect.Type]string),
}

// Register records the concrete type of value under name so values of that
// type decode back into the same Go type instead of generic CBOR shapes.
// Exported fields are what gets stored. Registration must happen in every
// process that loads the artifact, before it is loaded. Like gob.Register,
// it panics on conflicting registrations.
func Register(name string, value any) {
	if name == "" {
		panic("resource: Register with empty name")
	}
	if value == nil {
		panic("resource: Register of nil value")
	}
	if _, ok := builtins[name]; ok || name == typeText || name == typeNil || name == typeAny {
		panic(fmt.Sprintf("resource: Register name %q is reserved", name))
	}
	t := reflect.TypeOf(value)

	registry.Lock()
	defer registry.Unlock()
	if prev, ok := registry.byName[name]; ok && prev != t {
		panic(fmt.Sprintf("resource: name %q registered for both %v and %v", name, prev, t))
	}
	if prev, ok := registry.byType[t]; ok && prev != name {
		panic(fmt.Sprintf("resource: type %v registered as both %q and %q", t, prev, name))
	}
	registry.byName[name] = t
	registry.byType[t] = name
}

func typeTag(e Entry) string {
	if e.Kind == KindFile {
		if _, ok := e.Value.(string); ok {
			return typeText
		}
		return typeBytes
	}
	if e.Value == nil {
		return typeNil
	}
	t := reflect.TypeOf(e.Value)

	registry.RLock()
	name, ok := registry.byType[t]
	registry.RUnlock()
	if ok {
		return name
	}
	if name, ok := builtinNames[t]; ok {
		return name
	}
	return typeAny
}

func lookupType(tag string) (reflect.Type, bool) {
	if t, ok := builtins[tag]; ok {
		return t, true
	}
	registry.RLock()
	defer registry.RUnlock()
	t, ok := registry.byName[tag]
	return t, ok
}

func decodePayload(kind Kind, tag string, data codec.RawMessage) (any, error) {
	if kind == KindFile {
		switch tag {
		case typeText:
			var s string
			err := codec.Unmarshal(data, &s)
			return s, err
		case typeBytes:
			var b []byte
			if err := codec.Unmarshal(data, &b); err != nil {
				return nil, err
			}
			if b == nil {
				b = []byte{}
			}
			return b, nil
		default:
			return nil, fmt.Errorf("file entry with payload type %q", tag)
		}
	}

	switch tag {
	case typeNil:
		return nil, nil
	case typeAny:
		var v any
		err := codec.Unmarshal(data, &v)
		return v, err
	}
	t, ok := lookupType(tag)
	if !ok {
		return nil, fmt.Errorf("unknown payload type %q", tag)
	}
	p := reflect.New(t)
	if err := codec.Unmarshal(data, p.Interface()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}
