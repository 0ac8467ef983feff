package fs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aretw0/keel/pkg/core"
	"gopkg.in/yaml.v3"
)

// Codec defines how a resource value is written to and read from disk.
type Codec interface {
	// Encode serializes v. Encoding the same value twice must produce the
	// same bytes, since writes are verified by byte comparison.
	Encode(v core.Value) ([]byte, error)
	// Decode parses data back into a value.
	Decode(data []byte) (core.Value, error)
}

// DefaultExt is the extension used for keys that do not carry one.
const DefaultExt = ".json"

// DefaultCodecs returns the standard set of codecs, keyed by extension.
func DefaultCodecs() map[string]Codec {
	return map[string]Codec{
		".json": JSONCodec{},
		".yaml": YAMLCodec{},
		".yml":  YAMLCodec{},
	}
}

// --- JSON Codec ---

// JSONCodec stores values as indented canonical JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(v core.Value) ([]byte, error) {
	raw, err := core.Canonical(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (JSONCodec) Decode(data []byte) (core.Value, error) {
	return core.ParseValue(data)
}

// --- YAML Codec ---

// YAMLCodec stores values as YAML documents.
type YAMLCodec struct{}

func (YAMLCodec) Encode(v core.Value) ([]byte, error) {
	return yaml.Marshal(core.ToAny(v))
}

func (YAMLCodec) Decode(data []byte) (core.Value, error) {
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return core.FromAny(normalizeYAML(payload))
}

// normalizeYAML converts map[any]any nodes (non-string keys) into
// map[string]any so they fit the Value model.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeYAML(elem)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case []any:
		for i, elem := range val {
			val[i] = normalizeYAML(elem)
		}
		return val
	}
	return v
}
