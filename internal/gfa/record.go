// Package gfa tokenizes GFA1 text records (H, S, L, C, P, W) into typed
// fields plus a tag dictionary, and renders them back to text.
package gfa

import (
	"fmt"
	"strconv"
	"strings"
)

// Orientation flags as stored: 0 forward, 1 reverse.
const (
	Forward = 0
	Reverse = 1
)

// Header is an H record's tag dictionary.
type Header struct {
	Tags Tags
}

// Segment is an S record. Sequence is "" when the field was '*'.
type Segment struct {
	Name     string
	Sequence string
	Tags     Tags
}

// Link is an L record with segment names still unresolved.
type Link struct {
	From        string
	FromReverse int
	To          string
	ToReverse   int
	Cigar       string // "" when '*'
	Tags        Tags
}

// Containment is a C record.
type Containment struct {
	Container        string
	ContainerReverse int
	Contained        string
	ContainedReverse int
	Position         int64
	Cigar            string
	Tags             Tags
}

// PathStep is one oriented element of a P record.
type PathStep struct {
	Segment string
	Reverse int
}

// Path is a P record; Overlaps is nil when the field was '*', otherwise
// it holds len(Steps)-1 cigars.
type Path struct {
	Name     string
	Steps    []PathStep
	Overlaps []string
	Tags     Tags
}

// WalkStep is one oriented step of a W record.
type WalkStep struct {
	Segment string
	Reverse int
}

// Walk is a GFA1.1 W record.
type Walk struct {
	Sample   string
	HapIndex int64
	RefName  string
	RefBegin int64
	RefEnd   int64
	Steps    []WalkStep
	Tags     Tags
}

func parseOrientation(s string) (int, error) {
	switch s {
	case "+":
		return Forward, nil
	case "-":
		return Reverse, nil
	}
	return 0, fmt.Errorf("malformed segment orientation %q", s)
}

// ParseHeader decodes an H record.
func ParseHeader(fields []string) (*Header, error) {
	tags, err := ParseTags(fields[1:])
	if err != nil {
		return nil, err
	}
	return &Header{Tags: tags}, nil
}

// ParseSegment decodes an S record.
func ParseSegment(fields []string) (*Segment, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed S record: %d columns", len(fields))
	}
	tags, err := ParseTags(fields[3:])
	if err != nil {
		return nil, err
	}
	s := &Segment{Name: fields[1], Tags: tags}
	if fields[2] != "*" {
		s.Sequence = fields[2]
	}
	return s, nil
}

// ParseLink decodes an L record. The overlap column may be absent.
func ParseLink(fields []string) (*Link, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("malformed L record: %d columns", len(fields))
	}
	fromRev, err := parseOrientation(fields[2])
	if err != nil {
		return nil, err
	}
	toRev, err := parseOrientation(fields[4])
	if err != nil {
		return nil, err
	}
	l := &Link{From: fields[1], FromReverse: fromRev, To: fields[3], ToReverse: toRev}
	if len(fields) > 5 && fields[5] != "*" {
		l.Cigar = fields[5]
	}
	if len(fields) > 6 {
		if l.Tags, err = ParseTags(fields[6:]); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// ParseContainment decodes a C record.
func ParseContainment(fields []string) (*Containment, error) {
	if len(fields) < 7 {
		return nil, fmt.Errorf("malformed C record: %d columns", len(fields))
	}
	containerRev, err := parseOrientation(fields[2])
	if err != nil {
		return nil, err
	}
	containedRev, err := parseOrientation(fields[4])
	if err != nil {
		return nil, err
	}
	pos, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed containment position %q", fields[5])
	}
	c := &Containment{
		Container: fields[1], ContainerReverse: containerRev,
		Contained: fields[3], ContainedReverse: containedRev,
		Position: pos,
	}
	if fields[6] != "*" {
		c.Cigar = fields[6]
	}
	if len(fields) > 7 {
		if c.Tags, err = ParseTags(fields[7:]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParsePath decodes a P record.
func ParsePath(fields []string) (*Path, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("malformed P record: %d columns", len(fields))
	}
	p := &Path{Name: fields[1]}
	for _, ele := range strings.Split(fields[2], ",") {
		if len(ele) < 2 {
			return nil, fmt.Errorf("malformed path element %q", ele)
		}
		rev, err := parseOrientation(ele[len(ele)-1:])
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, PathStep{Segment: ele[:len(ele)-1], Reverse: rev})
	}
	if len(fields) > 3 && fields[3] != "*" {
		p.Overlaps = strings.Split(fields[3], ",")
		if len(p.Overlaps)+1 != len(p.Steps) {
			return nil, fmt.Errorf("path has %d elements but %d overlaps", len(p.Steps), len(p.Overlaps))
		}
	}
	if len(fields) > 4 {
		var err error
		if p.Tags, err = ParseTags(fields[4:]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ParseWalk decodes a GFA1.1 W record. Steps use the '>'/'<' dialect:
// >s1<s2 walks s1 forward then s2 reverse.
func ParseWalk(fields []string) (*Walk, error) {
	if len(fields) < 7 {
		return nil, fmt.Errorf("malformed W record: %d columns", len(fields))
	}
	hap, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed haplotype index %q", fields[2])
	}
	begin, err := parseWalkCoord(fields[4])
	if err != nil {
		return nil, fmt.Errorf("malformed walk start %q", fields[4])
	}
	end, err := parseWalkCoord(fields[5])
	if err != nil {
		return nil, fmt.Errorf("malformed walk end %q", fields[5])
	}
	w := &Walk{Sample: fields[1], HapIndex: hap, RefName: fields[3], RefBegin: begin, RefEnd: end}
	if w.Steps, err = parseWalkSteps(fields[6]); err != nil {
		return nil, err
	}
	if len(fields) > 7 {
		if w.Tags, err = ParseTags(fields[7:]); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// parseWalkCoord accepts '*' for an unknown coordinate, stored as 0.
func parseWalkCoord(s string) (int64, error) {
	if s == "*" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func parseWalkSteps(s string) ([]WalkStep, error) {
	var steps []WalkStep
	for len(s) > 0 {
		var rev int
		switch s[0] {
		case '>':
			rev = Forward
		case '<':
			rev = Reverse
		default:
			return nil, fmt.Errorf("malformed walk step near %q", s)
		}
		s = s[1:]
		end := strings.IndexAny(s, "><")
		if end < 0 {
			end = len(s)
		}
		if end == 0 {
			return nil, fmt.Errorf("empty walk step segment")
		}
		steps = append(steps, WalkStep{Segment: s[:end], Reverse: rev})
		s = s[end:]
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("walk with no steps")
	}
	return steps, nil
}

// FormatWalkSteps renders oriented step names back to the '>'/'<' dialect.
func FormatWalkSteps(names []string, reverse []int) string {
	var sb strings.Builder
	for i, n := range names {
		if reverse[i] == Reverse {
			sb.WriteByte('<')
		} else {
			sb.WriteByte('>')
		}
		sb.WriteString(n)
	}
	return sb.String()
}
