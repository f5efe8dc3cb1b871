package audit

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Change is the old and new value of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff serializes before and after to JSON objects and returns the keys
// whose values differ. A key present on one side only counts as changed.
func Diff(before, after any) (map[string]Change, error) {
	b, err := toMap(before)
	if err != nil {
		return nil, err
	}
	a, err := toMap(after)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]Change)
	for key, oldVal := range b {
		newVal, ok := a[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = Change{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range a {
		if _, ok := b[key]; !ok {
			changes[key] = Change{Old: nil, New: newVal}
		}
	}
	return changes, nil
}

// ChangedFields returns the sorted keys of a diff.
func ChangedFields(changes map[string]Change) []string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
