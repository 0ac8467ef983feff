package fs_test

import (
	"testing"

	"github.com/aretw0/keel/pkg/adapters/fs"
	"github.com/aretw0/keel/pkg/core"
)

// TestPolyglotConsistency verifies that JSON and YAML resources decode to the
// same Value, so numbers keep their integer/number distinction.
func TestPolyglotConsistency(t *testing.T) {
	// 1. Setup Data
	jsonBody := `{"count": 123, "price": 10.5, "whole": 2.0}`
	yamlBody := "count: 123\nprice: 10.5\nwhole: 2.0"

	// 2. Parse
	fromJSON, err := fs.JSONCodec{}.Decode([]byte(jsonBody))
	if err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}
	fromYAML, err := fs.YAMLCodec{}.Decode([]byte(yamlBody))
	if err != nil {
		t.Fatalf("Failed to parse YAML: %v", err)
	}

	// 3. Compare
	if !core.Equal(fromJSON, fromYAML) {
		t.Errorf("Inconsistent decoding.\nJSON: %v\nYAML: %v", fromJSON, fromYAML)
	}

	obj := fromJSON.(core.Object)
	if _, ok := obj["count"].(core.Int); !ok {
		t.Errorf("Expected count to be Int, got %T", obj["count"])
	}
	if _, ok := obj["price"].(core.Float); !ok {
		t.Errorf("Expected price to be Float, got %T", obj["price"])
	}
}
