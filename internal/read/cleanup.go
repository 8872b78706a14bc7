// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package read

// removedField marshals as a JSON null, same as an absent/untracked value,
// but - unlike a bare nil - survives cleanupEmpty's drop-nil pass. It is
// the explicit "this key existed in the previous event and was dropped"
// marker diffPayloads emits; a literal nil instead would be indistinguishable
// from "never present" and get stripped before it reached the response.
type removedField struct{}

func (removedField) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// cleanupEmpty recursively drops nil values and maps that are empty after
// their own cleanup, keeping sparse output sparse throughout the read
// layer.
func cleanupEmpty(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}

	out := map[string]interface{}{}
	for k, val := range m {
		if val == nil {
			continue
		}
		cleaned := cleanupEmpty(val)
		if cm, isMap := cleaned.(map[string]interface{}); isMap && len(cm) == 0 {
			continue
		}
		out[k] = cleaned
	}
	return out
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func getDotted(m map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(m)
	for _, part := range splitDots(path) {
		cm, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := cm[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitDots(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}
