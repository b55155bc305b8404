package gfab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// chainGFA builds s1 - s2 - ... - sN.
func chainGFA(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "S\ts%d\tACGT\n", i)
	}
	for i := 1; i < n; i++ {
		fmt.Fprintf(&sb, "L\ts%d\t+\ts%d\t+\t0M\n", i, i+1)
	}
	return sb.String()
}

type connRow struct {
	Segment   int64
	Component int64
	Cutpoint  int64
}

func connectivityRows(t *testing.T, db Execer) []connRow {
	t.Helper()
	rows, err := db.QueryContext(context.Background(),
		"SELECT segment_id, component_id, is_cutpoint FROM gfa1_connectivity ORDER BY segment_id")
	if err != nil {
		t.Fatalf("connectivity query: %v", err)
	}
	defer rows.Close()
	var out []connRow
	for rows.Next() {
		var r connRow
		if err := rows.Scan(&r.Segment, &r.Component, &r.Cutpoint); err != nil {
			t.Fatalf("connectivity scan: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestConnectivityChain(t *testing.T) {
	_, db := loadTestGFA(t, chainGFA(5), LoadOptions{})
	got := connectivityRows(t, db)
	want := []connRow{
		{1, 1, 0}, {2, 1, 1}, {3, 1, 1}, {4, 1, 1}, {5, 1, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("connectivity mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectivityTriangle(t *testing.T) {
	gfa := chainGFA(3) + "L\ts3\t+\ts1\t+\t0M\n"
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	got := connectivityRows(t, db)
	want := []connRow{{1, 1, 0}, {2, 1, 0}, {3, 1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("connectivity mismatch (-want +got):\n%s", diff)
	}

	// one biconnected component spanning [1, 3]
	rows, err := db.QueryContext(context.Background(),
		"SELECT segment_id, bicomponent_min, bicomponent_max FROM gfa1_biconnectivity ORDER BY segment_id")
	if err != nil {
		t.Fatalf("biconnectivity query: %v", err)
	}
	defer rows.Close()
	var bic [][3]int64
	for rows.Next() {
		var r [3]int64
		if err := rows.Scan(&r[0], &r[1], &r[2]); err != nil {
			t.Fatalf("biconnectivity scan: %v", err)
		}
		bic = append(bic, r)
	}
	want2 := [][3]int64{{1, 1, 3}, {2, 1, 3}, {3, 1, 3}}
	if diff := cmp.Diff(want2, bic); diff != "" {
		t.Errorf("biconnectivity mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectivityTwoComponents(t *testing.T) {
	// 1-2-3 and 4-5, plus singleton 6
	gfa := strings.Join([]string{
		"S\ts1\tACGT", "S\ts2\tACGT", "S\ts3\tACGT",
		"S\ts4\tACGT", "S\ts5\tACGT", "S\ts6\tACGT",
		"L\ts1\t+\ts2\t+\t0M",
		"L\ts2\t+\ts3\t+\t0M",
		"L\ts4\t+\ts5\t+\t0M",
		"",
	}, "\n")
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	got := connectivityRows(t, db)
	want := []connRow{
		{1, 1, 0}, {2, 1, 1}, {3, 1, 0},
		{4, 4, 0}, {5, 4, 0},
		// singleton s6: no row
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("connectivity mismatch (-want +got):\n%s", diff)
	}

	// 4-5 is an isolated edge: no biconnectivity rows for it
	var n int64
	if err := db.QueryRowContext(context.Background(),
		"SELECT count(1) FROM gfa1_biconnectivity WHERE segment_id IN (4, 5)").Scan(&n); err != nil {
		t.Fatalf("biconnectivity query: %v", err)
	}
	if n != 0 {
		t.Errorf("isolated edge produced %d biconnectivity rows, want 0", n)
	}
}

func TestConnectivitySelfLoopAndMultiEdge(t *testing.T) {
	gfa := strings.Join([]string{
		"S\ts1\tACGT", "S\ts2\tACGT", "S\ts3\tACGT",
		"L\ts1\t+\ts1\t+\t0M", // self-loop
		"L\ts1\t+\ts2\t+\t0M",
		"L\ts1\t-\ts2\t-\t0M", // multi-edge
		"L\ts2\t+\ts3\t+\t0M",
		"",
	}, "\n")
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	got := connectivityRows(t, db)
	// neither the self-loop nor the duplicate edge makes s1 or s2 a
	// cutpoint beyond what the simple chain implies
	want := []connRow{{1, 1, 0}, {2, 1, 1}, {3, 1, 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("connectivity mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectivityCutpointTwoTriangles(t *testing.T) {
	// two triangles sharing s3: cutpoint at s3
	gfa := strings.Join([]string{
		"S\ts1\tACGT", "S\ts2\tACGT", "S\ts3\tACGT", "S\ts4\tACGT", "S\ts5\tACGT",
		"L\ts1\t+\ts2\t+\t0M",
		"L\ts2\t+\ts3\t+\t0M",
		"L\ts3\t+\ts1\t+\t0M",
		"L\ts3\t+\ts4\t+\t0M",
		"L\ts4\t+\ts5\t+\t0M",
		"L\ts5\t+\ts3\t+\t0M",
		"",
	}, "\n")
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	for _, r := range connectivityRows(t, db) {
		wantCut := int64(0)
		if r.Segment == 3 {
			wantCut = 1
		}
		if r.Cutpoint != wantCut {
			t.Errorf("segment %d is_cutpoint = %d, want %d", r.Segment, r.Cutpoint, wantCut)
		}
		if r.Component != 1 {
			t.Errorf("segment %d component = %d, want 1", r.Segment, r.Component)
		}
	}

	// s3 sits in both biconnected components
	rows, err := db.QueryContext(context.Background(), `
		SELECT bicomponent_min, bicomponent_max FROM gfa1_biconnectivity
		 WHERE segment_id = 3 ORDER BY bicomponent_min`)
	if err != nil {
		t.Fatalf("biconnectivity query: %v", err)
	}
	defer rows.Close()
	var spans [][2]int64
	for rows.Next() {
		var s [2]int64
		if err := rows.Scan(&s[0], &s[1]); err != nil {
			t.Fatalf("biconnectivity scan: %v", err)
		}
		spans = append(spans, s)
	}
	want := [][2]int64{{1, 3}, {3, 5}}
	if diff := cmp.Diff(want, spans); diff != "" {
		t.Errorf("s3 bicomponents mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkConnectivity(t *testing.T) {
	gfa := strings.Join([]string{
		"S\ts1\tACGT", "S\ts2\tACGT", "S\ts3\tACGT", "S\ts4\tACGT",
		"L\ts1\t+\ts2\t+\t0M",
		"L\ts3\t+\ts4\t+\t0M",
		"W\tCHM13\t1\tchr1\t0\t8\t>s1>s2>s3",
		"",
	}, "\n")
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	rows, err := db.QueryContext(context.Background(),
		"SELECT component_id FROM gfa1_walk_connectivity WHERE walk_id = 1 ORDER BY component_id")
	if err != nil {
		t.Fatalf("walk connectivity query: %v", err)
	}
	defer rows.Close()
	var comps []int64
	for rows.Next() {
		var c int64
		if err := rows.Scan(&c); err != nil {
			t.Fatalf("scan: %v", err)
		}
		comps = append(comps, c)
	}
	// the walk touches component 1 (s1, s2) and component 3 (s3, s4)
	if diff := cmp.Diff([]int64{1, 3}, comps); diff != "" {
		t.Errorf("walk components mismatch (-want +got):\n%s", diff)
	}
}

func TestConnectivityFallbackMatchesInMemory(t *testing.T) {
	// force the component-at-a-time path with a zero... the budget floor
	// is 1 GiB, so instead run both builders directly on a loaded graph
	// and compare outcomes via the public tables
	gfa := chainGFA(6) + "L\ts6\t+\ts1\t+\t0M\n" + "S\tx1\tAAAA\nS\tx2\tCCCC\nL\tx1\t+\tx2\t+\t0M\n"
	_, db1 := loadTestGFA(t, gfa, LoadOptions{})
	fast := connectivityRows(t, db1)

	path2, _ := loadTestGFA(t, gfa, LoadOptions{NoConnectivity: true})
	ctx := context.Background()
	db2, err := OpenDB(ctx, path2, true, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db2.Close()
	tx, err := db2.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx error: %v", err)
	}
	ins, err := newConnectivityWriter(ctx, tx)
	if err != nil {
		t.Fatalf("writer error: %v", err)
	}
	lookup, err := buildComponentwise(ctx, tx, "", ins)
	if err != nil {
		t.Fatalf("buildComponentwise error: %v", err)
	}
	if err := buildWalkConnectivity(ctx, tx, "", ins, lookup); err != nil {
		t.Fatalf("buildWalkConnectivity error: %v", err)
	}
	slow := connectivityRows(t, tx)
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	sort.Slice(fast, func(i, j int) bool { return fast[i].Segment < fast[j].Segment })
	sort.Slice(slow, func(i, j int) bool { return slow[i].Segment < slow[j].Segment })
	if diff := cmp.Diff(fast, slow); diff != "" {
		t.Errorf("fallback disagrees with in-memory (-fast +fallback):\n%s", diff)
	}
}
