// Package codec holds the CBOR configuration used for pack artifacts.
//
// Encoding is Core Deterministic (RFC 8949 section 4.2): sorted map keys,
// shortest integers, no indefinite lengths. The same container always
// serializes to the same bytes, so artifacts diff and cache cleanly.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.CoreDetEncOptions()
	// time.Time values keep their zone offset and sub-second precision
	encOpts.Time = cbor.TimeRFC3339Nano
	encOpts.TimeTag = cbor.EncTagRequired
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// pack values decoded into `any` use string keyed maps, which is
		// what callers and encoding/json expect
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// reject two entries for the same key instead of keeping the last
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes data into v. Trailing bytes after the first item are
// an error.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// RawMessage is an encoded CBOR item whose decoding is deferred.
type RawMessage = cbor.RawMessage

// Wellformed reports whether data is exactly one well-formed CBOR item.
func Wellformed(data []byte) error { return cbor.Wellformed(data) }
