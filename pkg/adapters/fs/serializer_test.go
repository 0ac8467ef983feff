package fs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/keel/pkg/core"
)

func TestCodecs(t *testing.T) {
	v := core.Object{
		"title": core.String("Test Title"),
		"tags":  core.Array{core.String("a"), core.String("b")},
		"meta":  core.Object{"foo": core.String("bar")},
		"count": core.Int(42),
		"ratio": core.Float(0.25),
		"none":  core.Null{},
	}

	codecs := DefaultCodecs()

	for _, ext := range []string{".json", ".yaml", ".yml"} {
		t.Run(ext, func(t *testing.T) {
			c := codecs[ext]
			if c == nil {
				t.Fatalf("no codec for %s", ext)
			}

			data, err := c.Encode(v)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			// Deterministic output: writes are verified by byte comparison.
			again, _ := c.Encode(v)
			if !bytes.Equal(data, again) {
				t.Errorf("Encode is not deterministic")
			}

			got, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !core.Equal(v, got) {
				t.Errorf("Round trip mismatch.\nwant: %v\ngot:  %v", v, got)
			}
		})
	}
}

func TestJSONCodec_Format(t *testing.T) {
	data, err := JSONCodec{}.Encode(core.Object{"b": core.Int(1), "a": core.Array{}})
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n  \"a\": [],\n  \"b\": 1\n}\n"
	if string(data) != want {
		t.Errorf("Expected %q, got %q", want, string(data))
	}
}

func TestCodecs_DecodeErrors(t *testing.T) {
	if _, err := (JSONCodec{}).Decode([]byte(`{"a":`)); err == nil {
		t.Error("Expected JSON error")
	}
	if _, err := (JSONCodec{}).Decode([]byte(`{} {}`)); err == nil {
		t.Error("Expected trailing data error")
	}
	if _, err := (YAMLCodec{}).Decode([]byte("a: [1, 2")); err == nil || !strings.Contains(err.Error(), "yaml") {
		t.Errorf("Expected YAML error, got %v", err)
	}
}

func TestNormalizeYAML(t *testing.T) {
	in := map[any]any{1: "one", "nested": map[any]any{true: []any{map[any]any{"k": "v"}}}}
	out, ok := normalizeYAML(in).(map[string]any)
	if !ok {
		t.Fatalf("Expected map[string]any, got %T", normalizeYAML(in))
	}
	if out["1"] != "one" {
		t.Errorf("Expected key '1', got %v", out)
	}
	nested := out["nested"].(map[string]any)
	list := nested["true"].([]any)
	if _, ok := list[0].(map[string]any); !ok {
		t.Errorf("Expected nested maps to be normalized, got %T", list[0])
	}
}
