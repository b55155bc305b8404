package gfab

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gfabase/gfabase/internal/twobit"
)

// loadTestGFA loads GFA text into a temp .gfab and returns its path plus a
// read-only handle.
func loadTestGFA(t *testing.T, gfaText string, opts LoadOptions) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.gfab")
	if err := Load(context.Background(), strings.NewReader(gfaText), path, opts); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	db, err := OpenDB(context.Background(), path, false, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return path, db
}

func countRows(t *testing.T, db Execer, table string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRowContext(context.Background(),
		"SELECT count(1) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

const minimalGFA = `H	VN:Z:1.0
S	s1	ACGT
S	s2	TGCA
L	s1	+	s2	+	0M
`

func TestLoadMinimal(t *testing.T) {
	_, db := loadTestGFA(t, minimalGFA, LoadOptions{})
	ctx := context.Background()

	if n := countRows(t, db, "gfa1_segment_meta"); n != 2 {
		t.Errorf("segment count = %d, want 2", n)
	}
	if n := countRows(t, db, "gfa1_link"); n != 1 {
		t.Errorf("link count = %d, want 1", n)
	}

	// dense ids in input order, names kept
	var id, seqLen int64
	var name string
	if err := db.QueryRowContext(ctx,
		"SELECT segment_id, name, sequence_length FROM gfa1_segment_meta WHERE name = 's1'").
		Scan(&id, &name, &seqLen); err != nil {
		t.Fatalf("segment query: %v", err)
	}
	if id != 1 || seqLen != 4 {
		t.Errorf("s1 = (id %d, len %d), want (1, 4)", id, seqLen)
	}

	var blob []byte
	if err := db.QueryRowContext(ctx,
		"SELECT sequence_twobit FROM gfa1_segment_sequence WHERE segment_id = 1").
		Scan(&blob); err != nil {
		t.Fatalf("sequence query: %v", err)
	}
	dna, err := twobit.Decode(blob)
	if err != nil || string(dna) != "ACGT" {
		t.Errorf("decoded sequence = %q, %v", dna, err)
	}

	var from, to int64
	if err := db.QueryRowContext(ctx,
		"SELECT from_segment, to_segment FROM gfa1_link").Scan(&from, &to); err != nil {
		t.Fatalf("link query: %v", err)
	}
	if from != 1 || to != 2 {
		t.Errorf("link = %d -> %d, want 1 -> 2", from, to)
	}
}

func TestLoadEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gfab")
	err := Load(context.Background(), strings.NewReader("\n"), path, LoadOptions{})
	if err == nil {
		t.Fatal("Load of empty input succeeded, want error")
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindEmptyInput {
		t.Errorf("error = %v, want EMPTY_INPUT", err)
	}
	if ExitCode(err) != 3 {
		t.Errorf("exit code = %d, want 3", ExitCode(err))
	}
}

func TestLoadForwardReference(t *testing.T) {
	// link mentions s2 before its S record
	gfa := "S\ts1\tACGT\nL\ts1\t+\ts2\t-\t0M\nS\ts2\tTTTT\n"
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	var id, seqLen int64
	if err := db.QueryRowContext(context.Background(),
		"SELECT segment_id, sequence_length FROM gfa1_segment_meta WHERE name = 's2'").
		Scan(&id, &seqLen); err != nil {
		t.Fatalf("segment query: %v", err)
	}
	if id != 2 || seqLen != 4 {
		t.Errorf("s2 = (id %d, len %d), want (2, 4)", id, seqLen)
	}
}

func TestLoadDuplicateSegment(t *testing.T) {
	gfa := "S\ts1\tACGT\nS\ts1\tTTTT\n"
	err := Load(context.Background(), strings.NewReader(gfa),
		filepath.Join(t.TempDir(), "dup.gfab"), LoadOptions{})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindDuplicateSegment {
		t.Errorf("error = %v, want DUPLICATE_SEGMENT", err)
	}
	if ExitCode(err) != 4 {
		t.Errorf("exit code = %d, want 4", ExitCode(err))
	}
}

func TestLoadInconsistentLN(t *testing.T) {
	gfa := "S\ts1\tACGT\tLN:i:7\n"
	err := Load(context.Background(), strings.NewReader(gfa),
		filepath.Join(t.TempDir(), "ln.gfab"), LoadOptions{})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindMalformedRecord {
		t.Errorf("error = %v, want MALFORMED_RECORD", err)
	}
}

func TestLoadRGFAMapping(t *testing.T) {
	gfa := "S\ts1\tACGT\tSN:Z:chr1\tSO:i:100\tLN:i:4\n"
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	var refseq string
	var begin, end int64
	if err := db.QueryRowContext(context.Background(),
		"SELECT refseq_name, refseq_begin, refseq_end FROM gfa1_segment_mapping WHERE segment_id = 1").
		Scan(&refseq, &begin, &end); err != nil {
		t.Fatalf("mapping query: %v", err)
	}
	if refseq != "chr1" || begin != 100 || end != 104 {
		t.Errorf("mapping = (%s, %d, %d), want (chr1, 100, 104)", refseq, begin, end)
	}
}

func TestLoadRRTagMapping(t *testing.T) {
	gfa := "S\ts1\tACGT\trr:Z:chr2:1,000-2,000\n"
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	var refseq string
	var begin, end int64
	if err := db.QueryRowContext(context.Background(),
		"SELECT refseq_name, refseq_begin, refseq_end FROM gfa1_segment_mapping").
		Scan(&refseq, &begin, &end); err != nil {
		t.Fatalf("mapping query: %v", err)
	}
	if refseq != "chr2" || begin != 1000 || end != 2000 {
		t.Errorf("mapping = (%s, %d, %d), want (chr2, 1000, 2000)", refseq, begin, end)
	}
}

func TestLoadPathAndWalk(t *testing.T) {
	gfa := strings.Join([]string{
		"S\ts1\tACGT",
		"S\ts2\tTTTT",
		"S\ts3\tGGGG",
		"P\tp1\ts1+,s2-\t4M",
		"W\tCHM13\t1\tchr1\t0\t8\t>s2>s3",
		"",
	}, "\n")
	_, db := loadTestGFA(t, gfa, LoadOptions{})
	ctx := context.Background()

	var segID, reverse int64
	var cigar sql.NullString
	if err := db.QueryRowContext(ctx, `
		SELECT segment_id, reverse, cigar_vs_previous
		  FROM gfa1_path_element WHERE path_id = 1 AND ordinal = 1`).
		Scan(&segID, &reverse, &cigar); err != nil {
		t.Fatalf("path element query: %v", err)
	}
	if segID != 2 || reverse != 1 || !cigar.Valid || cigar.String != "4M" {
		t.Errorf("element = (%d, %d, %v)", segID, reverse, cigar)
	}
	var first sql.NullString
	if err := db.QueryRowContext(ctx, `
		SELECT cigar_vs_previous FROM gfa1_path_element
		 WHERE path_id = 1 AND ordinal = 0`).Scan(&first); err != nil {
		t.Fatalf("path element query: %v", err)
	}
	if first.Valid {
		t.Errorf("first element cigar = %q, want NULL", first.String)
	}

	var minID, maxID int64
	var steps string
	if err := db.QueryRowContext(ctx, `
		SELECT w.min_segment_id, w.max_segment_id, s.steps_jsarray
		  FROM gfa1_walk w JOIN gfa1_walk_steps s USING (walk_id)`).
		Scan(&minID, &maxID, &steps); err != nil {
		t.Fatalf("walk query: %v", err)
	}
	if minID != 2 || maxID != 3 {
		t.Errorf("walk extrema = (%d, %d), want (2, 3)", minID, maxID)
	}
	decoded, err := DecodeWalkSteps(steps)
	if err != nil || len(decoded) != 2 || decoded[0].Segment != 2 || decoded[1].Segment != 3 {
		t.Errorf("decoded steps = %v, %v", decoded, err)
	}
}

func TestLoadHeaderTags(t *testing.T) {
	_, db := loadTestGFA(t, minimalGFA, LoadOptions{})
	var pg, ih sql.NullString
	if err := db.QueryRowContext(context.Background(), `
		SELECT json_extract(tags_json, '$."PG:Z"'), json_extract(tags_json, '$."ih:Z"')
		  FROM gfa1_header`).Scan(&pg, &ih); err != nil {
		t.Fatalf("header query: %v", err)
	}
	if !pg.Valid || !strings.HasPrefix(pg.String, "gfabase-v") {
		t.Errorf("PG:Z = %v", pg)
	}
	if !ih.Valid || len(ih.String) != 64 {
		t.Errorf("ih:Z = %v, want 64 hex chars", ih)
	}
}

func TestOpenRejectsNonGfab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.gfab")
	// a plain SQLite file without the application id
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE x(y)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = db.Close()

	_, err = OpenDB(context.Background(), path, false, StoreOptions{})
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindIncompatibleFile {
		t.Errorf("error = %v, want INCOMPATIBLE_FILE", err)
	}
	if ExitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", ExitCode(err))
	}
}
