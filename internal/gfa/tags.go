package gfa

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tags holds a record's optional fields keyed by "XX:T" with the decoded
// value: string for A/Z/H/B, int64 for i, float64 for f, json.RawMessage
// for J. The key keeps the type letter so the emitter can render the field
// back without guessing.
type Tags map[string]interface{}

// ParseTags decodes the tag fields of a record, i.e. everything after the
// type-specific positional columns.
func ParseTags(fields []string) (Tags, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	tags := make(Tags, len(fields))
	for _, f := range fields {
		parts := strings.SplitN(f, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed tag %q", f)
		}
		key := parts[0] + ":" + parts[1]
		switch parts[1] {
		case "A", "Z", "H", "B":
			tags[key] = parts[2]
		case "i":
			v, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed integer tag %q", f)
			}
			tags[key] = v
		case "f":
			v, err := strconv.ParseFloat(parts[2], 64)
			if err != nil {
				return nil, fmt.Errorf("malformed float tag %q", f)
			}
			tags[key] = v
		case "J":
			if !json.Valid([]byte(parts[2])) {
				return nil, fmt.Errorf("malformed JSON tag %q", f)
			}
			tags[key] = json.RawMessage(parts[2])
		default:
			return nil, fmt.Errorf("unknown tag type %q", f)
		}
	}
	return tags, nil
}

// JSON renders the tag dictionary as the tags_json column value, or ""
// when there is nothing to store.
func (t Tags) JSON() (string, error) {
	if len(t) == 0 {
		return "", nil
	}
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TagsFromJSON parses a tags_json column value back into a dictionary.
func TagsFromJSON(s string) (Tags, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return Tags(raw), nil
}

// Format renders the tags as tab-prefixed GFA fields in deterministic
// order (VN:Z leads, then lexicographic).
func (t Tags) Format() string {
	if len(t) == 0 {
		return ""
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == "VN:Z") != (keys[j] == "VN:Z") {
			return keys[i] == "VN:Z"
		}
		return keys[i] < keys[j]
	})

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteByte('\t')
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(formatTagValue(t[k]))
	}
	return sb.String()
}

func formatTagValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case json.Number:
		return x.String()
	case json.RawMessage:
		return string(x)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// Int returns an i-typed tag value when present.
func (t Tags) Int(key string) (int64, bool) {
	v, ok := t[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return x, true
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	case float64:
		return int64(x), true
	}
	return 0, false
}

// Str returns an A/Z/H-typed tag value when present.
func (t Tags) Str(key string) (string, bool) {
	v, ok := t[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
