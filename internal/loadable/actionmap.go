package loadable

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ActionMap is an immutable string-to-string mapping whose keys are unique
// and kept in lexicographic order.
type ActionMap struct {
	keys   []string
	values map[string]string
}

// NewActionMap builds an ActionMap from pairs, sorting its keys.
// A nil or empty pairs map yields a present-but-empty ActionMap.
func NewActionMap(pairs map[string]string) *ActionMap {
	am := &ActionMap{
		keys:   make([]string, 0, len(pairs)),
		values: make(map[string]string, len(pairs)),
	}
	for k, v := range pairs {
		am.keys = append(am.keys, k)
		am.values[k] = v
	}
	sort.Strings(am.keys)
	return am
}

// Len returns the number of keys.
func (am *ActionMap) Len() int {
	if am == nil {
		return 0
	}
	return len(am.keys)
}

// Keys returns a copy of the sorted keys.
func (am *ActionMap) Keys() []string {
	if am == nil {
		return nil
	}
	return append([]string(nil), am.keys...)
}

// Get returns the value stored under key.
func (am *ActionMap) Get(key string) (string, bool) {
	if am == nil {
		return "", false
	}
	v, ok := am.values[key]
	return v, ok
}

// Each calls fn for every pair in key order.
func (am *ActionMap) Each(fn func(key, value string)) {
	if am == nil {
		return
	}
	for _, k := range am.keys {
		fn(k, am.values[k])
	}
}

// Map returns a copy of the pairs as a plain map.
func (am *ActionMap) Map() map[string]string {
	if am == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(am.values))
	for k, v := range am.values {
		out[k] = v
	}
	return out
}

// Equal reports whether two maps hold the same pairs.
func (am *ActionMap) Equal(other *ActionMap) bool {
	if am == nil || other == nil {
		return am == other
	}
	if len(am.keys) != len(other.keys) {
		return false
	}
	for i, k := range am.keys {
		if other.keys[i] != k || other.values[k] != am.values[k] {
			return false
		}
	}
	return true
}

func (am *ActionMap) String() string {
	data, err := am.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("ActionMap(%d keys)", am.Len())
	}
	return string(data)
}

// MarshalJSON encodes the map as a JSON object with keys in sorted order. A
// nil map encodes as null.
func (am *ActionMap) MarshalJSON() ([]byte, error) {
	if am == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range am.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		value, err := marshalJSON(am.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings.
func (am *ActionMap) UnmarshalJSON(data []byte) error {
	var pairs map[string]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return fmt.Errorf("failed to decode action map: %w", err)
	}
	*am = *NewActionMap(pairs)
	return nil
}

// marshalJSON encodes v without HTML escaping, so module paths such as
// "a.js -> ./b" keep their literal characters.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
