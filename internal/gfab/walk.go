package gfab

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WalkStep is one resolved step of a walk.
type WalkStep struct {
	Segment int64
	Reverse int
}

// Walk steps are stored as one JSON array per walk. The first entry
// anchors {"s": id, "r": rev}; each later entry encodes the id as a
// positive delta {"+": d}, a negative delta {"-": d}, or a fresh anchor
// {"s": id}, carrying "r" only when the orientation changed. Consecutive
// segment ids are the common case in assembly walks, so most entries are
// {"+":1}.

// EncodeWalkSteps serializes steps and reports the extrema of the step
// set (the walk row's min_segment_id / max_segment_id).
func EncodeWalkSteps(steps []WalkStep) (jsarray string, minID, maxID int64, err error) {
	if len(steps) == 0 {
		return "", 0, 0, fmt.Errorf("walk with no steps")
	}
	minID, maxID = steps[0].Segment, steps[0].Segment

	var sb strings.Builder
	sb.WriteByte('[')
	prev := WalkStep{Reverse: -1}
	for i, st := range steps {
		if i > 0 {
			sb.WriteByte(',')
			if st.Segment < minID {
				minID = st.Segment
			}
			if st.Segment > maxID {
				maxID = st.Segment
			}
		}
		sb.WriteByte('{')
		switch {
		case i == 0:
			sb.WriteString(`"s":`)
			sb.WriteString(strconv.FormatInt(st.Segment, 10))
		case st.Segment > prev.Segment:
			sb.WriteString(`"+":`)
			sb.WriteString(strconv.FormatInt(st.Segment-prev.Segment, 10))
		case st.Segment < prev.Segment:
			sb.WriteString(`"-":`)
			sb.WriteString(strconv.FormatInt(prev.Segment-st.Segment, 10))
		default:
			sb.WriteString(`"s":`)
			sb.WriteString(strconv.FormatInt(st.Segment, 10))
		}
		if st.Reverse != prev.Reverse {
			sb.WriteString(`,"r":`)
			sb.WriteString(strconv.Itoa(st.Reverse))
		}
		sb.WriteByte('}')
		prev = st
	}
	sb.WriteByte(']')
	return sb.String(), minID, maxID, nil
}

// DecodeWalkSteps recovers the exact step sequence from its stored form.
func DecodeWalkSteps(jsarray string) ([]WalkStep, error) {
	dec := json.NewDecoder(strings.NewReader(jsarray))
	dec.UseNumber()
	var entries []map[string]json.Number
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("invalid walk steps array: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("invalid walk steps array: empty")
	}

	steps := make([]WalkStep, 0, len(entries))
	var prev WalkStep
	for i, e := range entries {
		st := prev
		switch {
		case hasKey(e, "s"):
			v, err := e["s"].Int64()
			if err != nil {
				return nil, fmt.Errorf("invalid walk step %d: %w", i, err)
			}
			st.Segment = v
		case hasKey(e, "+"):
			d, err := e["+"].Int64()
			if err != nil || d <= 0 || i == 0 {
				return nil, fmt.Errorf("invalid walk step %d", i)
			}
			st.Segment = prev.Segment + d
		case hasKey(e, "-"):
			d, err := e["-"].Int64()
			if err != nil || d <= 0 || i == 0 {
				return nil, fmt.Errorf("invalid walk step %d", i)
			}
			st.Segment = prev.Segment - d
		default:
			return nil, fmt.Errorf("invalid walk step %d: no segment key", i)
		}
		if r, ok := e["r"]; ok {
			v, err := r.Int64()
			if err != nil || (v != 0 && v != 1) {
				return nil, fmt.Errorf("invalid walk step %d orientation", i)
			}
			st.Reverse = int(v)
		} else if i == 0 {
			return nil, fmt.Errorf("invalid walk step 0: no orientation")
		}
		steps = append(steps, st)
		prev = st
	}
	return steps, nil
}

func hasKey(m map[string]json.Number, k string) bool {
	_, ok := m[k]
	return ok
}
