package gfab

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// SelectorOptions control how sub's positional selector tokens are
// interpreted.
type SelectorOptions struct {
	// Path treats tokens as path names.
	Path bool
	// Range treats tokens as reference ranges like chr7:1,234-5,678.
	Range bool
	// GuessRanges treats a token as a range when it has that shape.
	GuessRanges bool
}

// ResolveSelectors translates the user's selector tokens into
// temp.start_segments against the schema at prefix ("" or "input.").
// Every token must resolve; otherwise the whole query fails with NOT_FOUND
// before any expansion begins.
func ResolveSelectors(ctx context.Context, tx *sql.Tx, prefix string, tokens []string, opts SelectorOptions) error {
	if len(tokens) == 0 {
		return Usagef("specify one or more segments, paths, or ranges to select")
	}
	if _, err := tx.ExecContext(ctx,
		"CREATE TABLE temp.start_segments(segment_id INTEGER PRIMARY KEY)"); err != nil {
		return IOf(err, "creating selector table")
	}

	insLiteral, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO temp.start_segments(segment_id) VALUES(?)")
	if err != nil {
		return IOf(err, "preparing selector inserts")
	}
	insByRange, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO temp.start_segments(segment_id)
		 SELECT segment_id FROM %sgfa1_segment_mapping
		  WHERE _rowid_ IN (%s)`,
		prefix, rangeOverlapSQL(prefix, "gfa1_segment_mapping")))
	if err != nil {
		return IOf(err, "preparing selector inserts")
	}

	var missing []string
	note := func(token string) {
		if len(missing) < 10 {
			missing = append(missing, token)
		} else if len(missing) == 10 {
			missing = append(missing, "...")
		}
	}

	for _, token := range tokens {
		switch {
		case opts.Path:
			var pathID int64
			err := tx.QueryRowContext(ctx,
				"SELECT path_id FROM "+prefix+"gfa1_path WHERE name = ?", token).Scan(&pathID)
			if err == sql.ErrNoRows {
				note("path " + token)
				continue
			}
			if err != nil {
				return IOf(err, "path lookup")
			}
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`INSERT OR IGNORE INTO temp.start_segments(segment_id)
				 SELECT segment_id FROM %sgfa1_path_element WHERE path_id = ?`, prefix),
				pathID); err != nil {
				return IOf(err, "path selector")
			}

		case opts.Range || (opts.GuessRanges && looksLikeRange(ctx, tx, prefix, token)):
			refseq, begin, end, err := parseSelectorRange(ctx, tx, prefix, token)
			if err != nil {
				if opts.Range {
					return Usagef("malformed range %q: %v", token, err)
				}
				note(token)
				continue
			}
			res, err := insByRange.ExecContext(ctx, refseq, begin, end)
			if err != nil {
				return IOf(err, "range selector")
			}
			// INSERT OR IGNORE can report 0 with prior overlap; re-check
			// emptiness directly
			if n, _ := res.RowsAffected(); n == 0 {
				var one int
				err := tx.QueryRowContext(ctx, fmt.Sprintf(
					"SELECT 1 FROM %sgfa1_segment_mapping WHERE _rowid_ IN (%s) LIMIT 1",
					prefix, rangeOverlapSQL(prefix, "gfa1_segment_mapping")),
					refseq, begin, end).Scan(&one)
				if err == sql.ErrNoRows {
					note("range " + token)
					continue
				}
				if err != nil {
					return IOf(err, "range selector")
				}
			}

		default:
			if id, err := strconv.ParseInt(token, 10, 64); err == nil {
				if _, err := insLiteral.ExecContext(ctx, id); err != nil {
					return IOf(err, "segment selector")
				}
				continue
			}
			var id int64
			err := tx.QueryRowContext(ctx,
				"SELECT segment_id FROM "+prefix+"gfa1_segment_meta WHERE name = ?",
				token).Scan(&id)
			if err == sql.ErrNoRows {
				note("segment " + token)
				continue
			}
			if err != nil {
				return IOf(err, "segment lookup")
			}
			if _, err := insLiteral.ExecContext(ctx, id); err != nil {
				return IOf(err, "segment selector")
			}
		}
	}

	// literal ids went in unchecked; verify they exist
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`SELECT s.segment_id FROM temp.start_segments s
		  LEFT JOIN %sgfa1_segment_meta m USING (segment_id)
		  WHERE m.segment_id IS NULL ORDER BY s.segment_id`, prefix))
	if err != nil {
		return IOf(err, "checking selectors")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return IOf(err, "checking selectors")
		}
		note(fmt.Sprintf("segment %d", id))
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "checking selectors")
	}

	if len(missing) > 0 {
		return NotFoundf("unresolved selectors: %s", strings.Join(missing, ", "))
	}
	return nil
}

// parseSelectorRange parses CHR[:BEG-END] with 1-based inclusive text
// coordinates (commas tolerated), translated to the 0-based half-open
// convention of the mapping table. A bare CHR spans the whole sequence.
func parseSelectorRange(ctx context.Context, tx *sql.Tx, prefix, token string) (string, int64, int64, error) {
	if refseq, begin, end, err := parseRefRange(token, true); err == nil {
		return refseq, begin, end, nil
	}
	// bare refseq name
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM "+prefix+"gfa1_segment_mapping WHERE refseq_name = ? LIMIT 1",
		token).Scan(&one)
	if err == sql.ErrNoRows {
		return "", 0, 0, fmt.Errorf("expected CHR:BEG-END")
	}
	if err != nil {
		return "", 0, 0, err
	}
	return token, 0, 1 << 62, nil
}

func looksLikeRange(ctx context.Context, tx *sql.Tx, prefix, token string) bool {
	if _, _, _, err := parseRefRange(token, true); err == nil {
		return true
	}
	var one int
	err := tx.QueryRowContext(ctx,
		"SELECT 1 FROM "+prefix+"gfa1_segment_mapping WHERE refseq_name = ? LIMIT 1",
		token).Scan(&one)
	return err == nil
}

// parseRefRange parses "chrom:begin-end". Commas in the coordinates are
// tolerated. With oneBased, text coordinates are 1-based inclusive and are
// shifted to 0-based half-open; otherwise they are taken as stored.
func parseRefRange(s string, oneBased bool) (string, int64, int64, error) {
	colon := strings.LastIndexByte(s, ':')
	if colon <= 0 || colon == len(s)-1 {
		return "", 0, 0, fmt.Errorf("expected CHR:BEG-END")
	}
	name := s[:colon]
	span := strings.ReplaceAll(s[colon+1:], ",", "")
	dash := strings.IndexByte(span, '-')
	if dash <= 0 || dash == len(span)-1 {
		return "", 0, 0, fmt.Errorf("expected CHR:BEG-END")
	}
	begin, err := strconv.ParseInt(span[:dash], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed coordinate %q", span[:dash])
	}
	end, err := strconv.ParseInt(span[dash+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed coordinate %q", span[dash+1:])
	}
	if oneBased {
		if begin < 1 {
			return "", 0, 0, fmt.Errorf("coordinates are 1-based")
		}
		begin--
	}
	if begin < 0 || end < begin {
		return "", 0, 0, fmt.Errorf("empty range")
	}
	return name, begin, end, nil
}
