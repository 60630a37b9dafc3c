// Package jsonpath pulls a scalar out of a decoded JSON document using a
// dotted path with optional indexes, e.g. "choices[0].message.content".
package jsonpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Text extracts the value at path from body. An empty or unmatched path falls
// back to a top-level "text" field.
func Text(body []byte, path string) (string, bool) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", false
	}
	if path != "" {
		if v, ok := Lookup(root, path); ok {
			return v, true
		}
	}
	if m, ok := root.(map[string]any); ok {
		if v, exists := m["text"]; exists {
			return scalar(v)
		}
	}
	return "", false
}

// Lookup walks root along path and renders the scalar it ends on.
func Lookup(root any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	cur := root
	for _, segment := range strings.Split(path, ".") {
		key, indexes, err := ParseSegment(segment)
		if err != nil {
			return "", false
		}
		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			if cur, ok = m[key]; !ok {
				return "", false
			}
		}
		for _, idx := range indexes {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
		}
	}
	return scalar(cur)
}

// ParseSegment splits "items[0][1]" into its key and indexes. The key may be empty.
func ParseSegment(segment string) (string, []int, error) {
	if segment == "" {
		return "", nil, fmt.Errorf("empty path segment")
	}
	open := strings.IndexByte(segment, '[')
	if open == -1 {
		return segment, nil, nil
	}

	key, rest := segment[:open], segment[open:]
	var indexes []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, fmt.Errorf("invalid index syntax in %q", segment)
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return "", nil, fmt.Errorf("missing closing ] in %q", segment)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("invalid index %q in %q", rest[1:end], segment)
		}
		indexes = append(indexes, n)
		rest = rest[end+1:]
	}
	return key, indexes, nil
}

func scalar(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	default:
		return "", false
	}
}
