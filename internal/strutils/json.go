package strutils

import (
	"bytes"
	"encoding/json"
	"reflect"
)

func decodeExact(raw []byte) (any, bool) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, false
	}
	// Trailing data is not a single json document
	if decoder.More() {
		return nil, false
	}
	return value, true
}

// SameJSON reports whether a and b hold the same json document
//
// Formatting and key order are ignored. Numbers are compared by their literal
// value so large ids don't collide through float rounding. Empty or invalid
// input is never the same as anything else.
func SameJSON(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if bytes.Equal(a, b) {
		return true
	}

	valueA, ok := decodeExact(a)
	if !ok {
		return false
	}
	valueB, ok := decodeExact(b)
	if !ok {
		return false
	}

	return reflect.DeepEqual(valueA, valueB)
}
