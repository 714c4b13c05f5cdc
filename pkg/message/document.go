package message

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Document is a raw provider payload of unknown shape: nested maps and
// slices of untyped values, typically the result of decoding JSON.
type Document map[string]any

// Dig walks nested maps along path and returns the value at the end.
//
// It is total over malformed input: a missing key, a nil value, or a
// non-map node at any depth yields (nil, false), never a panic.
func (d Document) Dig(path ...string) (any, bool) {
	var cur any = map[string]any(d)
	for _, key := range path {
		node, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// DigString returns the trimmed string at path, or "" when the path is
// absent, nil, not a string, or whitespace-only.
func (d Document) DigString(path ...string) string {
	value, ok := d.Dig(path...)
	if !ok {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// DigStringable renders the value at path as a trimmed string, accepting
// strings and numbers. Numeric zero renders as "0": presence is decided by
// string emptiness, not numeric truthiness.
func (d Document) DigStringable(path ...string) string {
	value, ok := d.Dig(path...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(value))
}

// DigDocument returns the nested map at path as a Document, or nil.
func (d Document) DigDocument(path ...string) Document {
	value, ok := d.Dig(path...)
	if !ok {
		return nil
	}
	node, ok := asMap(value)
	if !ok {
		return nil
	}
	return Document(node)
}

func asMap(value any) (map[string]any, bool) {
	switch node := value.(type) {
	case map[string]any:
		return node, true
	case Document:
		return map[string]any(node), true
	default:
		return nil, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
