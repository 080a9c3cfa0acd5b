package resource

import "fmt"

// Kind tags where an entry came from.
type Kind uint8

const (
	// KindFile entries were read from disk; the payload is a string
	// (valid UTF-8) or a []byte.
	KindFile Kind = iota + 1
	// KindValue entries were stored directly with AddValue.
	KindValue
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindValue:
		return "value"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Entry is one stored resource.
type Entry struct {
	Name  string
	Kind  Kind
	Value any
}

// IsText reports whether e is a file entry held as text.
func (e Entry) IsText() bool {
	_, ok := e.Value.(string)
	return e.Kind == KindFile && ok
}

// PayloadType names the payload's shape: "text" or "bytes" for file
// entries, "string", "bytes" or "nil" for values of those kinds, and the
// Go type (%T) for everything else.
func (e Entry) PayloadType() string {
	switch e.Value.(type) {
	case string:
		if e.Kind == KindFile {
			return typeText
		}
		return "string"
	case []byte:
		return typeBytes
	case nil:
		return typeNil
	default:
		return fmt.Sprintf("%T", e.Value)
	}
}

// Item is a name/payload pair as returned by Items.
type Item struct {
	Name  string
	Value any
}
