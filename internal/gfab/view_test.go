package gfab

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func emitLines(t *testing.T, db Execer, opts EmitOptions) []string {
	t.Helper()
	var sb strings.Builder
	if err := Emit(context.Background(), db, &sb, opts); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(sb.String(), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// linesOfType gathers lines by record type, truncated to the given field
// count, sorted, for multiset comparison.
func linesOfType(lines []string, recType string, fields int) []string {
	var out []string
	for _, l := range lines {
		cols := strings.Split(l, "\t")
		if cols[0] != recType {
			continue
		}
		if len(cols) > fields {
			cols = cols[:fields]
		}
		out = append(out, strings.Join(cols, "\t"))
	}
	sort.Strings(out)
	return out
}

func TestViewRoundTrip(t *testing.T) {
	input := strings.Join([]string{
		"S\ts1\tACGT",
		"S\ts2\tTGCA",
		"L\ts1\t+\ts2\t+\t0M",
		"P\tp1\ts1+,s2+\t0M",
		"",
	}, "\n")
	_, db := loadTestGFA(t, input, LoadOptions{})
	got := emitLines(t, db, EmitOptions{})

	inLines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	// S fields 1-3, L fields 1-6, P fields 1-4 survive the round trip as
	// multisets
	for _, check := range []struct {
		recType string
		fields  int
	}{{"S", 3}, {"L", 6}, {"P", 4}} {
		want := linesOfType(inLines, check.recType, check.fields)
		have := linesOfType(got, check.recType, check.fields)
		if diff := cmp.Diff(want, have); diff != "" {
			t.Errorf("%s lines mismatch (-want +got):\n%s", check.recType, diff)
		}
	}
}

func TestViewCanonicalOrder(t *testing.T) {
	input := strings.Join([]string{
		"S\tb\tAAAA",
		"S\ta\tCCCC",
		"L\tb\t+\ta\t+\t0M",
		"W\tHG002\t1\tchr1\t0\t4\t>a",
		"P\tp\ta+\t*",
		"",
	}, "\n")
	_, db := loadTestGFA(t, input, LoadOptions{})
	got := emitLines(t, db, EmitOptions{})

	var order []string
	for _, l := range got {
		order = append(order, l[:1])
	}
	want := []string{"H", "S", "S", "L", "P", "W"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("record order mismatch (-want +got):\n%s", diff)
	}
	// segments sort by id (input order), not name
	if !strings.HasPrefix(got[1], "S\tb\t") {
		t.Errorf("first S line = %q, want segment b (id 1)", got[1])
	}
}

func TestViewNoSequences(t *testing.T) {
	_, db := loadTestGFA(t, minimalGFA, LoadOptions{})
	got := emitLines(t, db, EmitOptions{NoSequences: true})
	for _, l := range got {
		if !strings.HasPrefix(l, "S\t") {
			continue
		}
		cols := strings.Split(l, "\t")
		if cols[2] != "*" {
			t.Errorf("S line carries sequence with NoSequences: %q", l)
		}
		if !strings.Contains(l, "LN:i:4") {
			t.Errorf("S line lacks LN tag: %q", l)
		}
	}
}

func TestViewWalkDialect(t *testing.T) {
	input := strings.Join([]string{
		"S\ts1\tACGT",
		"S\ts2\tTGCA",
		"W\tCHM13\t1\tchr1\t0\t8\t>s1<s2",
		"",
	}, "\n")
	_, db := loadTestGFA(t, input, LoadOptions{})
	got := emitLines(t, db, EmitOptions{})
	found := false
	for _, l := range got {
		if strings.HasPrefix(l, "W\t") {
			found = true
			if !strings.Contains(l, ">s1<s2") {
				t.Errorf("W line = %q, want '>s1<s2' steps", l)
			}
		}
	}
	if !found {
		t.Error("no W line emitted")
	}
}
