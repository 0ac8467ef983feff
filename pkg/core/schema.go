package core

import (
	"fmt"
	"unicode/utf8"
)

// Rule constrains a single field. Min and Max bound numeric values, and the
// length of strings and arrays.
type Rule struct {
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Type     string   `json:"type,omitempty" yaml:"type,omitempty"`
	Min      *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Schema maps field names to rules.
type Schema map[string]Rule

// Bound is a helper for Rule.Min and Rule.Max literals.
func Bound(f float64) *float64 { return &f }

// ValidateConsistency checks data against schema and returns a single
// *ValidationError listing every violation, or nil.
func ValidateConsistency(data Object, schema Schema) error {
	var violations []string

	for _, field := range sortedFields(schema) {
		rule := schema[field]
		v, present := data[field]
		if !present || isNull(v) {
			if rule.Required {
				violations = append(violations, fmt.Sprintf("%s is required", field))
			}
			continue
		}

		if rule.Type != "" && !matchesType(v, rule.Type) {
			violations = append(violations, fmt.Sprintf("%s must be of type %s, got %s", field, rule.Type, v.Kind()))
			continue
		}

		measure, what, ok := measureOf(v)
		if !ok {
			continue
		}
		if rule.Min != nil && measure < *rule.Min {
			violations = append(violations, fmt.Sprintf("%s %s must be >= %v", field, what, *rule.Min))
		}
		if rule.Max != nil && measure > *rule.Max {
			violations = append(violations, fmt.Sprintf("%s %s must be <= %v", field, what, *rule.Max))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// sortedFields returns schema field names in canonical order so violations
// are reported deterministically.
func sortedFields(schema Schema) []string {
	o := make(Object, len(schema))
	for k := range schema {
		o[k] = Null{}
	}
	return o.Keys()
}

func isNull(v Value) bool {
	_, ok := v.(Null)
	return v == nil || ok
}

func matchesType(v Value, typ string) bool {
	switch typ {
	case "number":
		switch v.(type) {
		case Int, Float:
			return true
		}
		return false
	case "integer":
		_, ok := v.(Int)
		return ok
	case "string", "boolean", "array", "object":
		return v.Kind() == typ
	}
	return false
}

func measureOf(v Value) (float64, string, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), "value", true
	case Float:
		return float64(val), "value", true
	case String:
		return float64(utf8.RuneCountInString(string(val))), "length", true
	case Array:
		return float64(len(val)), "length", true
	}
	return 0, "", false
}
