// Package codec centralizes the encoding of persisted structures: the index
// artifact header and the metadata stored next to cached index bytes.
//
// Codec selection is a compatibility boundary: artifacts record the codec
// name in their header so they can be decoded by name on import.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
//
// Self-describing artifacts store the codec name in their header and select
// the codec with ByName when decoding.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used for newly created artifacts.
//
// Existing artifacts are self-describing, so changing the default never
// breaks decoding of previously exported bytes.
var Default Codec = GoJSON{}
