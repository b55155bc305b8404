package gfab

import (
	"context"
	"strconv"
	"strings"
	"testing"
)

func pafLine(qname, tname string, tstart, tend, ablen, mapq int64, extra ...string) string {
	fields := []string{
		qname, "4", "0", "4", "+", tname, "100000",
		itoa(tstart), itoa(tend), "4", itoa(ablen), itoa(mapq),
	}
	fields = append(fields, extra...)
	return strings.Join(fields, "\t")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func addTestMappings(t *testing.T, gfabPath, paf string, opts MappingOptions) MappingStats {
	t.Helper()
	ctx := context.Background()
	db, err := OpenDB(ctx, gfabPath, true, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db.Close()
	stats, err := AddMappings(ctx, db, strings.NewReader(paf), opts)
	if err != nil {
		t.Fatalf("AddMappings error: %v", err)
	}
	return stats
}

func TestAddMappings(t *testing.T) {
	path, _ := loadTestGFA(t, minimalGFA, LoadOptions{})
	paf := pafLine("s1", "chr1", 100, 104, 4, 60, "cg:Z:4M") + "\n" +
		pafLine("s2", "chr1", 200, 204, 4, 60) + "\n"
	stats := addTestMappings(t, path, paf, MappingOptions{})
	if stats.Inserted != 2 || stats.Total != 2 || stats.Unknown != 0 {
		t.Errorf("stats = %+v", stats)
	}

	ctx := context.Background()
	db, err := OpenDB(ctx, path, false, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db.Close()

	var refseq, cigar string
	var begin, end int64
	if err := db.QueryRowContext(ctx, `
		SELECT refseq_name, refseq_begin, refseq_end, coalesce(cigar, '')
		  FROM gfa1_segment_mapping WHERE segment_id = 1`).
		Scan(&refseq, &begin, &end, &cigar); err != nil {
		t.Fatalf("mapping query: %v", err)
	}
	if refseq != "chr1" || begin != 100 || end != 104 || cigar != "4M" {
		t.Errorf("mapping = (%s, %d, %d, %s)", refseq, begin, end, cigar)
	}

	// query interval and strand preserved as tags
	var sb int64
	var so string
	if err := db.QueryRowContext(ctx, `
		SELECT json_extract(tags_json, '$."sb:i"'), json_extract(tags_json, '$."so:Z"')
		  FROM gfa1_segment_mapping WHERE segment_id = 1`).Scan(&sb, &so); err != nil {
		t.Fatalf("tags query: %v", err)
	}
	if sb != 0 || so != "+" {
		t.Errorf("tags = (sb %d, so %s)", sb, so)
	}
}

func TestAddMappingsFilters(t *testing.T) {
	path, _ := loadTestGFA(t, minimalGFA, LoadOptions{})
	paf := pafLine("s1", "chr1", 100, 104, 4, 10) + "\n" + // below quality
		pafLine("s2", "chr1", 200, 204, 3, 60) + "\n" + // below length
		pafLine("s2", "chr1", 300, 304, 4, 60) + "\n"
	stats := addTestMappings(t, path, paf, MappingOptions{Quality: 30, Length: 4})
	if stats.Inserted != 1 || stats.Total != 3 {
		t.Errorf("stats = %+v, want 1 of 3 inserted", stats)
	}
}

func TestAddMappingsUnknownSegment(t *testing.T) {
	path, _ := loadTestGFA(t, minimalGFA, LoadOptions{})
	paf := pafLine("sX", "chr1", 100, 104, 4, 60) + "\n" +
		pafLine("s1", "chr1", 100, 104, 4, 60) + "\n"
	stats := addTestMappings(t, path, paf, MappingOptions{})
	if stats.Unknown != 1 || stats.Inserted != 1 {
		t.Errorf("stats = %+v, want 1 unknown, 1 inserted", stats)
	}
}

func TestAddMappingsReplace(t *testing.T) {
	// the rGFA mapping is present after load; --replace clears it
	gfa := "S\ts1\tACGT\tSN:Z:chr1\tSO:i:100\n"
	path, _ := loadTestGFA(t, gfa, LoadOptions{})
	stats := addTestMappings(t, path,
		pafLine("s1", "chr9", 5, 9, 4, 60)+"\n", MappingOptions{Replace: true})
	if stats.Inserted != 1 {
		t.Errorf("stats = %+v", stats)
	}

	ctx := context.Background()
	db, err := OpenDB(ctx, path, false, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db.Close()
	var n int64
	if err := db.QueryRowContext(ctx,
		"SELECT count(1) FROM gfa1_segment_mapping").Scan(&n); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if n != 1 {
		t.Errorf("mapping rows = %d, want 1 after --replace", n)
	}
	var refseq string
	if err := db.QueryRowContext(ctx,
		"SELECT refseq_name FROM gfa1_segment_mapping").Scan(&refseq); err != nil {
		t.Fatalf("mapping query: %v", err)
	}
	if refseq != "chr9" {
		t.Errorf("refseq = %s, want chr9", refseq)
	}
}

func TestAddMappingsMalformed(t *testing.T) {
	path, _ := loadTestGFA(t, minimalGFA, LoadOptions{})
	ctx := context.Background()
	db, err := OpenDB(ctx, path, true, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenDB error: %v", err)
	}
	defer db.Close()
	_, err = AddMappings(ctx, db, strings.NewReader("s1\tonly\tthree\n"), MappingOptions{})
	if err == nil {
		t.Fatal("malformed PAF accepted, want error")
	}
	if ExitCode(err) != 4 {
		t.Errorf("exit code = %d, want 4", ExitCode(err))
	}
}
