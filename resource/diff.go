package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Diff maps each changed top-level field to its draft value
type Diff map[string]json.RawMessage

// Keys returns the changed field names in sorted order
func (d Diff) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode unmarshals the draft value of key into out
func (d Diff) Decode(key string, out any) error {
	raw, ok := d[key]
	if !ok {
		return fmt.Errorf("diff has no field %q", key)
	}
	return json.Unmarshal(raw, out)
}

// ComputeDiff compares baseline and draft field by field over their JSON
// encodings. A field is reported when the draft has it and its encoded value
// differs from the baseline's. Nested values are compared whole, so a change
// deep inside a field reports the entire top-level field. The keys present in
// the draft's encoding define the compared set: fields the draft does not
// carry are never reported, which includes fields dropped by omitempty. A
// field that can be cleared must therefore encode its zero value.
func ComputeDiff[T any](baseline, draft T) (Diff, error) {
	base, err := fields(baseline)
	if err != nil {
		return nil, fmt.Errorf("diff baseline: %w", err)
	}
	changed, err := fields(draft)
	if err != nil {
		return nil, fmt.Errorf("diff draft: %w", err)
	}

	diff := make(Diff)
	for key, value := range changed {
		if old, ok := base[key]; ok && bytes.Equal(old, value) {
			continue
		}
		diff[key] = value
	}
	return diff, nil
}

// merge overlays the fields of draft onto latest
func merge[T any](latest, draft T) (T, error) {
	var out T
	merged, err := fields(latest)
	if err != nil {
		return out, err
	}
	overlay, err := fields(draft)
	if err != nil {
		return out, err
	}
	for key, value := range overlay {
		merged[key] = value
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func fields(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	if bytes.Equal(data, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("value must encode to a JSON object: %w", err)
	}
	for k, raw := range out {
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			out[k] = compact.Bytes()
		}
	}
	return out, nil
}

func isEmpty(v any) bool {
	f, err := fields(v)
	return err == nil && len(f) == 0
}
