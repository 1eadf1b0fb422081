package api

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

// MarshalDef serializes a definition to its UTF-8 JSON document form.
func MarshalDef(def *DataSetDef) ([]byte, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal data set %s: %w", def.UUID, err)
	}
	return data, nil
}

// UnmarshalDef parses a JSON definition document.
func UnmarshalDef(data []byte) (*DataSetDef, error) {
	var def DataSetDef
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse data set definition: %w", err)
	}
	return &def, nil
}

// CanonicalJSON re-renders a JSON document with object keys sorted, so two
// documents with the same fields in a different order compare equal as
// strings.
func CanonicalJSON(data []byte) (string, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize json: %w", err)
	}
	return oj.JSON(v, &ojg.Options{Sort: true}), nil
}

// DefsEqual compares two definitions structurally, via their canonical JSON
// form. Field order in the serialized form does not affect the result.
func DefsEqual(a, b *DataSetDef) bool {
	if a == nil || b == nil {
		return a == b
	}
	ja, err := MarshalDef(a)
	if err != nil {
		return false
	}
	jb, err := MarshalDef(b)
	if err != nil {
		return false
	}
	ca, err := CanonicalJSON(ja)
	if err != nil {
		return false
	}
	cb, err := CanonicalJSON(jb)
	if err != nil {
		return false
	}
	return ca == cb
}
