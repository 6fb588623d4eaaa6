// Package jsonpath resolves JSONPath-style expressions against response bodies.
//
// Expressions such as $.data[0].embedding are translated to gjson paths
// (data.0.embedding) before lookup.
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNotFound is returned when a path does not resolve to a value.
var ErrNotFound = errors.New("path not found")

// ErrInvalidJSON is returned when the body is not well-formed JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Lookup resolves path against body and returns the raw gjson result.
func Lookup(body []byte, path string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("%w: empty body", ErrInvalidJSON)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrInvalidJSON
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}

	result := gjson.GetBytes(body, ToGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return result, nil
}

// Extract returns the value at path as a string. JSON null becomes "null".
func Extract(body []byte, path string) (string, error) {
	result, err := Lookup(body, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// NonEmpty reports whether the value at path exists and is not null, "", [] or {}.
func NonEmpty(body []byte, path string) (bool, error) {
	result, err := Lookup(body, path)
	if err != nil {
		return false, err
	}
	switch {
	case result.Type == gjson.Null:
		return false, nil
	case result.IsArray():
		return len(result.Array()) > 0, nil
	case result.IsObject():
		return len(result.Map()) > 0, nil
	case result.Type == gjson.String:
		return result.Str != "", nil
	}
	return true, nil
}

// ToGjsonPath converts a JSONPath expression to gjson syntax.
func ToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	// bracketed names: ['name'] and ["name"]
	path = strings.NewReplacer("['", ".", "']", "", "[\"", ".", "\"]", "").Replace(path)
	// indices: [0] -> .0
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
