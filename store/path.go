package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// splitPath turns "a/b/c" into its segments. Empty segments are dropped so
// "/a//b/" and "a/b" address the same node.
func splitPath(path string) ([]string, error) {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			continue
		}
		if strings.ContainsAny(s, ".#$[]") {
			return nil, fmt.Errorf("%w: illegal character in segment %q", ErrInvalidPath, s)
		}
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return segs, nil
}

// JoinPath builds a store path from segments.
func JoinPath(segs ...string) string {
	return strings.Join(segs, "/")
}

// docKey is the backend document that holds the node at segs. Documents are
// the first two segments: "collection/id".
func docKey(segs []string) string {
	return segs[0] + "/" + segs[1]
}

// overlaps reports whether a change at one path can affect a value observed
// at the other: one must be a segment-wise prefix of the other.
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// toTree converts an arbitrary Go value into the generic JSON tree shape
// (map[string]any, []any, float64, string, bool, nil).
func toTree(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeDoc(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("corrupt document: %w", err)
	}
	return out, nil
}

func encodeDoc(v any) ([]byte, error) {
	if isEmpty(v) {
		return nil, nil
	}
	return json.Marshal(v)
}

// getAt walks rel inside root. Arrays are addressed by decimal index.
func getAt(root any, rel []string) any {
	cur := root
	for _, seg := range rel {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			var i int
			if _, err := fmt.Sscanf(seg, "%d", &i); err != nil || i < 0 || i >= len(node) {
				return nil
			}
			cur = node[i]
		default:
			return nil
		}
	}
	return cur
}

// setAt returns root with the node at rel replaced by value. A nil value
// removes the node and prunes parents left empty.
func setAt(root any, rel []string, value any) any {
	if len(rel) == 0 {
		return value
	}
	m, ok := root.(map[string]any)
	if !ok {
		if arr, isArr := root.([]any); isArr {
			m = arrayToMap(arr)
		} else {
			m = map[string]any{}
		}
	} else {
		cp := make(map[string]any, len(m))
		for k, v := range m {
			cp[k] = v
		}
		m = cp
	}
	child := setAt(m[rel[0]], rel[1:], value)
	if isEmpty(child) {
		delete(m, rel[0])
	} else {
		m[rel[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func arrayToMap(arr []any) map[string]any {
	m := make(map[string]any, len(arr))
	for i, v := range arr {
		if v != nil {
			m[fmt.Sprintf("%d", i)] = v
		}
	}
	return m
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
