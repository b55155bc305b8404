package gfab

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"

	"github.com/gfabase/gfabase/internal/gfa"
	"github.com/gfabase/gfabase/internal/log"
)

// MappingOptions filter a PAF import.
type MappingOptions struct {
	// Quality drops records with mapq below the threshold.
	Quality int64
	// Length drops records with alignment block length below the
	// threshold.
	Length int64
	// Replace first deletes all existing mapping rows.
	Replace bool
}

// MappingStats summarizes an import.
type MappingStats struct {
	Inserted int64
	Total    int64
	Unknown  int64
}

// AddMappings imports PAF alignment records into the target's mapping
// table, then rebuilds its genomic-range index. Records whose query name
// is not a known segment are skipped and counted, not fatal. The whole
// import is one transaction.
func AddMappings(ctx context.Context, db *sql.DB, src io.Reader, opts MappingOptions) (MappingStats, error) {
	var stats MappingStats

	reader, err := gfa.NewReader(src)
	if err != nil {
		return stats, IOf(err, "reading PAF")
	}
	defer func() { _ = reader.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, IOf(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// buffer through a temp table, then insert in range order so the
	// range index stays compact
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE temp.segment_mapping_hold(
		    segment_id INTEGER NOT NULL, refseq_name TEXT NOT NULL,
		    refseq_begin INTEGER NOT NULL, refseq_end INTEGER NOT NULL,
		    cigar TEXT, tags_json TEXT)`); err != nil {
		return stats, IOf(err, "creating hold table")
	}

	byName, err := tx.PrepareContext(ctx,
		"SELECT segment_id FROM gfa1_segment_meta WHERE name = ?")
	if err != nil {
		return stats, IOf(err, "preparing lookups")
	}
	byID, err := tx.PrepareContext(ctx,
		"SELECT segment_id FROM gfa1_segment_meta WHERE segment_id = ?")
	if err != nil {
		return stats, IOf(err, "preparing lookups")
	}
	insHold, err := tx.PrepareContext(ctx, `
		INSERT INTO temp.segment_mapping_hold(segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json)
		VALUES(?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return stats, IOf(err, "preparing insert")
	}

	for {
		fields, line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, IOf(err, "reading PAF")
		}
		stats.Total++
		if err := importPAFRecord(ctx, fields, line, opts, byName, byID, insHold, &stats); err != nil {
			return stats, err
		}
	}
	if stats.Unknown > 0 {
		log.Warnf("ignored %s mappings with unknown query names", formatCount(stats.Unknown))
	}
	log.Debugf("buffered %d of %d mappings", stats.Inserted, stats.Total)

	if opts.Replace {
		res, err := tx.ExecContext(ctx, "DELETE FROM gfa1_segment_mapping")
		if err != nil {
			return stats, IOf(err, "deleting existing mappings")
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Warnf("deleted %s existing mappings", formatCount(n))
		}
	}

	log.Debugf("sorting mappings...")
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gfa1_segment_mapping(segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json)
		    SELECT segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json
		    FROM temp.segment_mapping_hold NOT INDEXED
		    ORDER BY refseq_name, refseq_begin, refseq_end`); err != nil {
		return stats, IOf(err, "inserting mappings")
	}

	// refresh the genomic-range index over the grown table
	if _, err := tx.ExecContext(ctx,
		"DROP INDEX IF EXISTS gfa1_segment_mapping_gri"); err != nil {
		return stats, IOf(err, "rebuilding range index")
	}
	if _, err := tx.ExecContext(ctx, rangeIndexSQL("", "gfa1_segment_mapping")); err != nil {
		return stats, IOf(err, "rebuilding range index")
	}
	if _, err := tx.ExecContext(ctx, "ANALYZE gfa1_segment_mapping"); err != nil {
		return stats, IOf(err, "rebuilding range index")
	}

	if err := tx.Commit(); err != nil {
		return stats, IOf(err, "committing")
	}
	log.Infof("inserted %s of %s mappings", formatCount(stats.Inserted), formatCount(stats.Total))
	return stats, nil
}

func importPAFRecord(ctx context.Context, fields []string, line int, opts MappingOptions,
	byName, byID, insHold *sql.Stmt, stats *MappingStats) error {
	if len(fields) < 12 {
		return Malformedf(line, "malformed PAF record: %d columns", len(fields))
	}
	blockLen, err := strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed alignment block length %q", fields[10])
	}
	if blockLen < opts.Length {
		return nil
	}
	mapq, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed mapping quality %q", fields[11])
	}
	if mapq < opts.Quality {
		return nil
	}

	segmentID, ok, err := lookupSegment(ctx, fields[0], byName, byID)
	if err != nil {
		return err
	}
	if !ok {
		stats.Unknown++
		return nil
	}

	queryBegin, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed query start %q", fields[2])
	}
	queryEnd, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed query end %q", fields[3])
	}
	targetName := fields[5]
	targetBegin, err := strconv.ParseInt(fields[7], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed target start %q", fields[7])
	}
	targetEnd, err := strconv.ParseInt(fields[8], 10, 64)
	if err != nil {
		return Malformedf(line, "malformed target end %q", fields[8])
	}
	if targetBegin > targetEnd {
		return Malformedf(line, "target begin > end")
	}

	// preserve the query interval and strand as tags; cg:Z carries the
	// alignment cigar when minimap2 was run with -c
	var cigar interface{}
	tags := gfa.Tags{
		"sb:i": queryBegin,
		"se:i": queryEnd,
		"so:Z": fields[4],
	}
	for _, f := range fields[12:] {
		if cg, ok := strings.CutPrefix(f, "cg:Z:"); ok {
			cigar = cg
			break
		}
	}
	tagsJSON, err := tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}

	if _, err := insHold.ExecContext(ctx, segmentID, targetName, targetBegin, targetEnd,
		cigar, tagsJSON); err != nil {
		return IOf(err, "buffering mapping")
	}
	stats.Inserted++
	return nil
}

// lookupSegment resolves a PAF query name: by segment name first, falling
// back to a bare integer id.
func lookupSegment(ctx context.Context, token string, byName, byID *sql.Stmt) (int64, bool, error) {
	var id int64
	err := byName.QueryRowContext(ctx, token).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, IOf(err, "segment lookup")
	}
	if n, perr := strconv.ParseInt(token, 10, 64); perr == nil {
		err := byID.QueryRowContext(ctx, n).Scan(&id)
		if err == nil {
			return id, true, nil
		}
		if err != sql.ErrNoRows {
			return 0, false, IOf(err, "segment lookup")
		}
	}
	return 0, false, nil
}
