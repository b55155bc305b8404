package gfab

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/gfabase/gfabase/internal/gfa"
	"github.com/gfabase/gfabase/internal/twobit"
)

// EmitOptions configure GFA1 text emission.
type EmitOptions struct {
	// NoSequences writes '*' in the sequence field, appending LN:i when
	// the length is known.
	NoSequences bool
	// Sub restricts output to temp.sub_segments (and the links, paths,
	// and walks it induces).
	Sub bool
	// WalkSamples restricts W lines to the listed samples (with Sub).
	WalkSamples []string
}

// Emit streams the store back out as GFA1 text in canonical order: H,
// then S by segment_id, L by (from_segment, to_segment), C, P by path_id,
// W by walk_id.
func Emit(ctx context.Context, q Execer, w io.Writer, opts EmitOptions) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	if err := emitHeader(ctx, q, bw); err != nil {
		return err
	}
	if err := emitSegments(ctx, q, bw, opts); err != nil {
		return err
	}
	if err := emitLinks(ctx, q, bw, opts); err != nil {
		return err
	}
	if err := emitContainments(ctx, q, bw, opts); err != nil {
		return err
	}
	if err := emitPaths(ctx, q, bw, opts); err != nil {
		return err
	}
	if err := emitWalks(ctx, q, bw, opts); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return IOf(err, "writing output")
	}
	return nil
}

func writeLine(bw *bufio.Writer, line string) error {
	if _, err := bw.WriteString(line); err != nil {
		return IOf(err, "writing output")
	}
	if err := bw.WriteByte('\n'); err != nil {
		return IOf(err, "writing output")
	}
	return nil
}

func tagSuffix(tagsJSON sql.NullString, table string, rowid int64) (string, error) {
	if !tagsJSON.Valid || tagsJSON.String == "" {
		return "", nil
	}
	tags, err := gfa.TagsFromJSON(tagsJSON.String)
	if err != nil {
		return "", Internalf("invalid tags_json in %s rowid %d", table, rowid)
	}
	return tags.Format(), nil
}

func emitHeader(ctx context.Context, q Execer, bw *bufio.Writer) error {
	var tagsJSON sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT tags_json FROM gfa1_header LIMIT 1").Scan(&tagsJSON)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return IOf(err, "reading header")
	}
	suffix, err := tagSuffix(tagsJSON, "gfa1_header", 1)
	if err != nil {
		return err
	}
	return writeLine(bw, "H"+suffix)
}

func emitSegments(ctx context.Context, q Execer, bw *bufio.Writer, opts EmitOptions) error {
	query := `
		SELECT m.segment_id, coalesce(m.name, cast(m.segment_id AS TEXT)),
		       m.sequence_length, m.tags_json, s.sequence_twobit
		  FROM gfa1_segment_meta m
		  LEFT JOIN gfa1_segment_sequence s USING (segment_id)`
	if opts.Sub {
		query += " WHERE m.segment_id IN temp.sub_segments"
	}
	query += " ORDER BY m.segment_id"
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return IOf(err, "reading segments")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id int64
		var name string
		var seqLen sql.NullInt64
		var tagsJSON sql.NullString
		var blob []byte
		if err := rows.Scan(&id, &name, &seqLen, &tagsJSON, &blob); err != nil {
			return IOf(err, "reading segments")
		}

		seq := "*"
		emitLN := false
		if blob != nil && !opts.NoSequences {
			dna, err := twobit.Decode(blob)
			if err != nil {
				return Internalf("segment %d: %v", id, err)
			}
			seq = string(dna)
		} else {
			emitLN = seqLen.Valid
		}

		var sb strings.Builder
		sb.WriteString("S\t")
		sb.WriteString(name)
		sb.WriteByte('\t')
		sb.WriteString(seq)
		if emitLN {
			fmt.Fprintf(&sb, "\tLN:i:%d", seqLen.Int64)
		}
		suffix, err := tagSuffix(tagsJSON, "gfa1_segment_meta", id)
		if err != nil {
			return err
		}
		sb.WriteString(suffix)
		if err := writeLine(bw, sb.String()); err != nil {
			return err
		}
	}
	return rowsErr(rows, "reading segments")
}

func orientChar(reverse int64) byte {
	if reverse != 0 {
		return '-'
	}
	return '+'
}

func emitLinks(ctx context.Context, q Execer, bw *bufio.Writer, opts EmitOptions) error {
	// two-layer join resolves both endpoint ids to names
	query := `
		SELECT link_id, from_name, from_reverse,
		       coalesce(m2.name, cast(to_segment AS TEXT)), to_reverse, cigar, link_tags
		  FROM (SELECT l._rowid_ AS link_id,
		               coalesce(m1.name, cast(l.from_segment AS TEXT)) AS from_name,
		               l.from_reverse, l.to_segment, l.to_reverse,
		               coalesce(l.cigar, '*') AS cigar, l.tags_json AS link_tags
		          FROM gfa1_link l
		          LEFT JOIN gfa1_segment_meta m1 ON l.from_segment = m1.segment_id` +
		subLinkFilter(opts) + `
		         ORDER BY l.from_segment, l.to_segment)
		  LEFT JOIN gfa1_segment_meta m2 ON to_segment = m2.segment_id`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return IOf(err, "reading links")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var linkID, fromRev, toRev int64
		var fromName, toName, cigar string
		var tagsJSON sql.NullString
		if err := rows.Scan(&linkID, &fromName, &fromRev, &toName, &toRev, &cigar, &tagsJSON); err != nil {
			return IOf(err, "reading links")
		}
		suffix, err := tagSuffix(tagsJSON, "gfa1_link", linkID)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("L\t%s\t%c\t%s\t%c\t%s%s",
			fromName, orientChar(fromRev), toName, orientChar(toRev), cigar, suffix)
		if err := writeLine(bw, line); err != nil {
			return err
		}
	}
	return rowsErr(rows, "reading links")
}

func subLinkFilter(opts EmitOptions) string {
	if !opts.Sub {
		return ""
	}
	return ` WHERE l.from_segment IN temp.sub_segments
	           AND l.to_segment IN temp.sub_segments`
}

func emitContainments(ctx context.Context, q Execer, bw *bufio.Writer, opts EmitOptions) error {
	query := `
		SELECT c._rowid_,
		       coalesce(m1.name, cast(c.container_segment AS TEXT)), c.container_reverse,
		       coalesce(m2.name, cast(c.contained_segment AS TEXT)), c.contained_reverse,
		       c.position, coalesce(c.cigar, '*'), c.tags_json
		  FROM gfa1_containment c
		  LEFT JOIN gfa1_segment_meta m1 ON c.container_segment = m1.segment_id
		  LEFT JOIN gfa1_segment_meta m2 ON c.contained_segment = m2.segment_id`
	if opts.Sub {
		query += ` WHERE c.container_segment IN temp.sub_segments
		             AND c.contained_segment IN temp.sub_segments`
	}
	query += " ORDER BY c.container_segment, c.contained_segment"
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return IOf(err, "reading containments")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rowid, containerRev, containedRev, position int64
		var container, contained, cigar string
		var tagsJSON sql.NullString
		if err := rows.Scan(&rowid, &container, &containerRev, &contained, &containedRev,
			&position, &cigar, &tagsJSON); err != nil {
			return IOf(err, "reading containments")
		}
		suffix, err := tagSuffix(tagsJSON, "gfa1_containment", rowid)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("C\t%s\t%c\t%s\t%c\t%d\t%s%s",
			container, orientChar(containerRev), contained, orientChar(containedRev),
			position, cigar, suffix)
		if err := writeLine(bw, line); err != nil {
			return err
		}
	}
	return rowsErr(rows, "reading containments")
}

func emitPaths(ctx context.Context, q Execer, bw *bufio.Writer, opts EmitOptions) error {
	query := `
		SELECT p.path_id, coalesce(p.name, cast(p.path_id AS TEXT)), p.tags_json
		  FROM gfa1_path p`
	if opts.Sub {
		query += `
		 WHERE NOT EXISTS
		    (SELECT 1 FROM gfa1_path_element e
		      WHERE e.path_id = p.path_id
		        AND e.segment_id NOT IN temp.sub_segments)`
	}
	query += " ORDER BY p.path_id"
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return IOf(err, "reading paths")
	}
	type pathRow struct {
		id   int64
		name string
		tags sql.NullString
	}
	var paths []pathRow
	for rows.Next() {
		var p pathRow
		if err := rows.Scan(&p.id, &p.name, &p.tags); err != nil {
			_ = rows.Close()
			return IOf(err, "reading paths")
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "reading paths")
	}
	_ = rows.Close()

	for _, p := range paths {
		elements, err := q.QueryContext(ctx, `
			SELECT coalesce(m.name, cast(e.segment_id AS TEXT)), e.reverse, e.cigar_vs_previous
			  FROM gfa1_path_element e
			  LEFT JOIN gfa1_segment_meta m USING (segment_id)
			 WHERE e.path_id = ? ORDER BY e.ordinal`, p.id)
		if err != nil {
			return IOf(err, "reading path elements")
		}
		var steps, cigars []string
		for elements.Next() {
			var name string
			var reverse int64
			var cigar sql.NullString
			if err := elements.Scan(&name, &reverse, &cigar); err != nil {
				_ = elements.Close()
				return IOf(err, "reading path elements")
			}
			steps = append(steps, name+string(orientChar(reverse)))
			if cigar.Valid {
				cigars = append(cigars, cigar.String)
			}
		}
		if err := elements.Err(); err != nil {
			return IOf(err, "reading path elements")
		}
		_ = elements.Close()

		overlaps := "*"
		if len(cigars) > 0 {
			overlaps = strings.Join(cigars, ",")
		}
		suffix, err := tagSuffix(p.tags, "gfa1_path", p.id)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("P\t%s\t%s\t%s%s", p.name, strings.Join(steps, ","), overlaps, suffix)
		if err := writeLine(bw, line); err != nil {
			return err
		}
	}
	return nil
}

func emitWalks(ctx context.Context, q Execer, bw *bufio.Writer, opts EmitOptions) error {
	query := `
		SELECT w.walk_id, w.sample, w.hap_idx, w.refseq_name, w.refseq_begin, w.refseq_end,
		       w.tags_json, s.steps_jsarray
		  FROM gfa1_walk w JOIN gfa1_walk_steps s USING (walk_id)`
	var args []interface{}
	var conds []string
	if opts.Sub {
		conds = append(conds,
			"w.min_segment_id IN temp.sub_segments",
			"w.max_segment_id IN temp.sub_segments")
	}
	if len(opts.WalkSamples) > 0 {
		conds = append(conds,
			"w.sample IN (?"+strings.Repeat(", ?", len(opts.WalkSamples)-1)+")")
		for _, s := range opts.WalkSamples {
			args = append(args, s)
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY w.walk_id"
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return IOf(err, "reading walks")
	}
	type walkRow struct {
		id, hap, begin, end int64
		sample, refseq      string
		tags                sql.NullString
		steps               string
	}
	var walks []walkRow
	for rows.Next() {
		var w walkRow
		if err := rows.Scan(&w.id, &w.sample, &w.hap, &w.refseq, &w.begin, &w.end,
			&w.tags, &w.steps); err != nil {
			_ = rows.Close()
			return IOf(err, "reading walks")
		}
		walks = append(walks, w)
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "reading walks")
	}
	_ = rows.Close()

	nameQ := "SELECT coalesce(name, cast(segment_id AS TEXT)) FROM gfa1_segment_meta WHERE segment_id = ?"
	selectedQ := "SELECT 1 FROM temp.sub_segments WHERE segment_id = ?"

	for _, w := range walks {
		steps, err := DecodeWalkSteps(w.steps)
		if err != nil {
			return Internalf("walk %d: %v", w.id, err)
		}
		names := make([]string, len(steps))
		reverse := make([]int, len(steps))
		include := true
		for i, st := range steps {
			if opts.Sub {
				var one int
				err := q.QueryRowContext(ctx, selectedQ, st.Segment).Scan(&one)
				if err == sql.ErrNoRows {
					include = false
					break
				}
				if err != nil {
					return IOf(err, "reading walks")
				}
			}
			if err := q.QueryRowContext(ctx, nameQ, st.Segment).Scan(&names[i]); err != nil {
				return IOf(err, "reading walks")
			}
			reverse[i] = st.Reverse
		}
		if !include {
			continue
		}
		suffix, err := tagSuffix(w.tags, "gfa1_walk", w.id)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("W\t%s\t%d\t%s\t%d\t%d\t%s%s",
			w.sample, w.hap, w.refseq, w.begin, w.end,
			gfa.FormatWalkSteps(names, reverse), suffix)
		if err := writeLine(bw, line); err != nil {
			return err
		}
	}
	return nil
}

func rowsErr(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		return IOf(err, "%s", what)
	}
	return nil
}
