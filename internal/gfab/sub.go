package gfab

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gfabase/gfabase/internal/log"
)

// SubOptions configure subgraph extraction.
type SubOptions struct {
	Selector       SelectorOptions
	Connected      bool
	Cutpoints      int   // expansion budget; 0 disables the policy
	CutpointsNt    int64 // minimum cutpoint sequence length to consume budget
	Biconnected    int   // bicomponent iterations; 0 disables the policy
	WalkSamples    []string
	NoSequences    bool
	NoConnectivity bool
	Compress       int
	MemoryGBytes   int
}

// SubToGfab extracts the selected subgraph of the source .gfab into a new
// self-contained .gfab. The source is attached read-only and never
// modified.
func SubToGfab(ctx context.Context, inPath, outPath string, selectors []string, opts SubOptions) error {
	db, err := CreateDB(ctx, outPath, StoreOptions{Compress: opts.Compress, MemoryGBytes: opts.MemoryGBytes})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := AttachInput(ctx, db, inPath); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return IOf(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := ResolveSelectors(ctx, tx, "input.", selectors, opts.Selector); err != nil {
		return err
	}
	if err := expand(ctx, tx, "input.", opts); err != nil {
		return err
	}
	if err := CreateTables(ctx, tx, ""); err != nil {
		return err
	}
	if err := copySubgraph(ctx, tx, opts); err != nil {
		return err
	}
	log.Infof("flushing %s ...", outPath)
	if err := tx.Commit(); err != nil {
		return IOf(err, "committing")
	}

	tx2, err := db.BeginTx(ctx, nil)
	if err != nil {
		return IOf(err, "starting transaction")
	}
	defer func() { _ = tx2.Rollback() }()
	if err := CreateIndexes(ctx, tx2, ""); err != nil {
		return err
	}
	if !opts.NoConnectivity {
		if err := BuildConnectivity(ctx, tx2, "", opts.MemoryGBytes); err != nil {
			return err
		}
	}
	if err := tx2.Commit(); err != nil {
		return IOf(err, "committing")
	}
	return Summary(ctx, db)
}

// SubToGFA streams the selected subgraph as GFA1 text without
// materializing a second file.
func SubToGFA(ctx context.Context, inPath string, w io.Writer, selectors []string, opts SubOptions) error {
	db, err := OpenDB(ctx, inPath, false, StoreOptions{MemoryGBytes: opts.MemoryGBytes})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return IOf(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := ResolveSelectors(ctx, tx, "", selectors, opts.Selector); err != nil {
		return err
	}
	if err := expand(ctx, tx, "", opts); err != nil {
		return err
	}
	return Emit(ctx, tx, w, EmitOptions{
		NoSequences: opts.NoSequences,
		Sub:         true,
		WalkSamples: opts.WalkSamples,
	})
}

// expand applies the selected expansion policy to temp.start_segments,
// leaving the final selection in temp.sub_segments.
func expand(ctx context.Context, tx *sql.Tx, prefix string, opts SubOptions) error {
	switch {
	case opts.Connected:
		log.Infof("computing connected component(s)...")
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE temp.sub_segments(segment_id INTEGER PRIMARY KEY);
			INSERT INTO temp.sub_segments(segment_id)
			    SELECT segment_id FROM %[1]sgfa1_connectivity
			     WHERE component_id IN
			        (SELECT DISTINCT c.component_id
			           FROM %[1]sgfa1_connectivity c
			           JOIN temp.start_segments USING (segment_id));
			INSERT OR IGNORE INTO temp.sub_segments(segment_id)
			    SELECT segment_id FROM temp.start_segments`, prefix)); err != nil {
			return IOf(err, "expanding connected components")
		}
		return nil
	case opts.Cutpoints > 0:
		log.Infof("expanding across cutpoints (budget %d)...", opts.Cutpoints)
		return expandCutpoints(ctx, tx, prefix, opts.Cutpoints, opts.CutpointsNt)
	case opts.Biconnected > 0:
		log.Infof("expanding biconnected components (%d iterations)...", opts.Biconnected)
		return expandBiconnected(ctx, tx, prefix, opts.Biconnected)
	default:
		if _, err := tx.ExecContext(ctx,
			"ALTER TABLE temp.start_segments RENAME TO sub_segments"); err != nil {
			return IOf(err, "selecting segments")
		}
		return nil
	}
}

// expandCutpoints grows a BFS frontier across undirected links. Stepping
// onward from a cutpoint segment with sequence_length >= minNt consumes
// one unit of a budget that starts at n-1; a cutpoint reached with no
// budget left is included but not crossed. Each BFS level is processed in
// ascending segment_id order.
func expandCutpoints(ctx context.Context, tx *sql.Tx, prefix string, n int, minNt int64) error {
	neighborsQ, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		  SELECT from_segment FROM %[1]sgfa1_link WHERE to_segment = ?1 AND from_segment != ?1
		UNION
		  SELECT to_segment FROM %[1]sgfa1_link WHERE from_segment = ?1 AND to_segment != ?1`,
		prefix))
	if err != nil {
		return IOf(err, "preparing neighbor query")
	}
	infoQ, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		SELECT coalesce(c.is_cutpoint, 0), coalesce(m.sequence_length, 0)
		  FROM %[1]sgfa1_segment_meta m
		  LEFT JOIN %[1]sgfa1_connectivity c USING (segment_id)
		 WHERE m.segment_id = ?`, prefix))
	if err != nil {
		return IOf(err, "preparing cutpoint query")
	}

	startQ, err := tx.QueryContext(ctx,
		"SELECT segment_id FROM temp.start_segments ORDER BY segment_id")
	if err != nil {
		return IOf(err, "reading start segments")
	}
	best := make(map[int64]int)
	var level []int64
	for startQ.Next() {
		var id int64
		if err := startQ.Scan(&id); err != nil {
			_ = startQ.Close()
			return IOf(err, "reading start segments")
		}
		best[id] = n - 1
		level = append(level, id)
	}
	if err := startQ.Err(); err != nil {
		return IOf(err, "reading start segments")
	}
	_ = startQ.Close()

	for len(level) > 0 {
		sort.Slice(level, func(i, j int) bool { return level[i] < level[j] })
		var next []int64
		for _, v := range level {
			budget := best[v]
			var isCut int
			var seqLen int64
			if err := infoQ.QueryRowContext(ctx, v).Scan(&isCut, &seqLen); err != nil {
				return IOf(err, "cutpoint lookup")
			}
			if isCut == 1 && seqLen >= minNt {
				if budget == 0 {
					continue // boundary cutpoint: included, not crossed
				}
				budget--
			}
			ns, err := queryInt64s(ctx, neighborsQ, v)
			if err != nil {
				return err
			}
			for _, w := range ns {
				if prev, seen := best[w]; !seen || budget > prev {
					best[w] = budget
					next = append(next, w)
				}
			}
		}
		level = next
	}

	if _, err := tx.ExecContext(ctx,
		"CREATE TABLE temp.sub_segments(segment_id INTEGER PRIMARY KEY)"); err != nil {
		return IOf(err, "creating selection table")
	}
	ins, err := tx.PrepareContext(ctx,
		"INSERT INTO temp.sub_segments(segment_id) VALUES(?)")
	if err != nil {
		return IOf(err, "filling selection table")
	}
	ordered := make([]int64, 0, len(best))
	for v := range best {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, v := range ordered {
		if _, err := ins.ExecContext(ctx, v); err != nil {
			return IOf(err, "filling selection table")
		}
	}
	return nil
}

// expandBiconnected starts with the biconnected components containing any
// start segment, then repeatedly includes components sharing a cutpoint
// with the current set, up to k total iterations.
func expandBiconnected(ctx context.Context, tx *sql.Tx, prefix string, k int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE temp.sub_bicomps(
		    bicomponent_min INTEGER NOT NULL,
		    bicomponent_max INTEGER NOT NULL,
		    PRIMARY KEY(bicomponent_min, bicomponent_max)) WITHOUT ROWID;
		INSERT OR IGNORE INTO temp.sub_bicomps
		    SELECT b.bicomponent_min, b.bicomponent_max
		      FROM %[1]sgfa1_biconnectivity b
		      JOIN temp.start_segments s ON s.segment_id = b.segment_id`, prefix)); err != nil {
		return IOf(err, "selecting biconnected components")
	}
	grow, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR IGNORE INTO temp.sub_bicomps
		    SELECT b2.bicomponent_min, b2.bicomponent_max
		      FROM %[1]sgfa1_biconnectivity b2
		     WHERE b2.segment_id IN
		        (SELECT b.segment_id
		           FROM %[1]sgfa1_biconnectivity b
		           JOIN temp.sub_bicomps USING (bicomponent_min, bicomponent_max)
		           JOIN %[1]sgfa1_connectivity c
		             ON c.segment_id = b.segment_id AND c.is_cutpoint = 1)`, prefix))
	if err != nil {
		return IOf(err, "preparing bicomponent growth")
	}
	for i := 1; i < k; i++ {
		res, err := grow.ExecContext(ctx)
		if err != nil {
			return IOf(err, "growing bicomponent selection")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			break
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE temp.sub_segments(segment_id INTEGER PRIMARY KEY);
		INSERT OR IGNORE INTO temp.sub_segments
		    SELECT b.segment_id FROM %[1]sgfa1_biconnectivity b
		      JOIN temp.sub_bicomps USING (bicomponent_min, bicomponent_max);
		INSERT OR IGNORE INTO temp.sub_segments
		    SELECT segment_id FROM temp.start_segments`, prefix)); err != nil {
		return IOf(err, "collecting selected segments")
	}
	return nil
}

// copySubgraph projects the selection into the (already created) target
// tables: segments in id order, induced links and containments (both
// endpoints selected), fully covered paths, and walks whose every step is
// selected.
func copySubgraph(ctx context.Context, tx *sql.Tx, opts SubOptions) error {
	log.Infof("copying segments & links...")
	stmts := []string{
		`INSERT INTO gfa1_segment_meta(segment_id, name, sequence_length, tags_json)
		    SELECT segment_id, name, sequence_length, tags_json
		      FROM input.gfa1_segment_meta
		     WHERE segment_id IN temp.sub_segments ORDER BY segment_id`,
		`INSERT INTO gfa1_segment_mapping(segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json)
		    SELECT segment_id, refseq_name, refseq_begin, refseq_end, cigar, tags_json
		      FROM input.gfa1_segment_mapping
		     WHERE segment_id IN temp.sub_segments ORDER BY segment_id`,
		`INSERT INTO gfa1_link(from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json)
		    SELECT from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json
		      FROM input.gfa1_link
		     WHERE from_segment IN temp.sub_segments AND to_segment IN temp.sub_segments
		     ORDER BY from_segment, to_segment`,
		`INSERT INTO gfa1_containment(container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json)
		    SELECT container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json
		      FROM input.gfa1_containment
		     WHERE container_segment IN temp.sub_segments AND contained_segment IN temp.sub_segments
		     ORDER BY container_segment, contained_segment`,
		`INSERT INTO gfa1_path(path_id, name, tags_json)
		    SELECT p.path_id, p.name, p.tags_json FROM input.gfa1_path p
		     WHERE NOT EXISTS
		        (SELECT 1 FROM input.gfa1_path_element e
		          WHERE e.path_id = p.path_id
		            AND e.segment_id NOT IN temp.sub_segments)
		     ORDER BY p.path_id`,
		`INSERT INTO gfa1_path_element(path_id, ordinal, segment_id, reverse, cigar_vs_previous)
		    SELECT e.path_id, e.ordinal, e.segment_id, e.reverse, e.cigar_vs_previous
		      FROM input.gfa1_path_element e
		     WHERE e.path_id IN (SELECT path_id FROM gfa1_path)
		     ORDER BY e.path_id, e.ordinal`,
		`INSERT INTO gfa1_header(tags_json) SELECT tags_json FROM input.gfa1_header`,
	}
	if !opts.NoSequences {
		stmts = append([]string{
			`INSERT INTO gfa1_segment_sequence(segment_id, sequence_twobit)
			    SELECT segment_id, sequence_twobit
			      FROM input.gfa1_segment_sequence
			     WHERE segment_id IN temp.sub_segments ORDER BY segment_id`},
			stmts...)
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return IOf(err, "copying subgraph")
		}
	}
	return copyWalks(ctx, tx, opts.WalkSamples)
}

// copyWalks copies walks whose min/max segment ids are selected and whose
// every decoded step is selected, optionally restricted to given samples.
func copyWalks(ctx context.Context, tx *sql.Tx, samples []string) error {
	query := `
		SELECT w.walk_id, w.sample, w.hap_idx, w.refseq_name, w.refseq_begin, w.refseq_end,
		       w.min_segment_id, w.max_segment_id, w.tags_json, s.steps_jsarray
		  FROM input.gfa1_walk w JOIN input.gfa1_walk_steps s USING (walk_id)
		 WHERE w.min_segment_id IN temp.sub_segments
		   AND w.max_segment_id IN temp.sub_segments`
	var args []interface{}
	if len(samples) > 0 {
		query += " AND w.sample IN (?" + strings.Repeat(", ?", len(samples)-1) + ")"
		for _, s := range samples {
			args = append(args, s)
		}
	}
	query += " ORDER BY w.walk_id"

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return IOf(err, "scanning walks")
	}
	type walkRow struct {
		id, hap, begin, end, minID, maxID int64
		sample, refseq, steps             string
		tags                              sql.NullString
	}
	var candidates []walkRow
	for rows.Next() {
		var w walkRow
		if err := rows.Scan(&w.id, &w.sample, &w.hap, &w.refseq, &w.begin, &w.end,
			&w.minID, &w.maxID, &w.tags, &w.steps); err != nil {
			_ = rows.Close()
			return IOf(err, "scanning walks")
		}
		candidates = append(candidates, w)
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "scanning walks")
	}
	_ = rows.Close()

	selected, err := tx.PrepareContext(ctx,
		"SELECT 1 FROM temp.sub_segments WHERE segment_id = ?")
	if err != nil {
		return IOf(err, "preparing selection lookup")
	}
	insWalk, err := tx.PrepareContext(ctx, `
		INSERT INTO gfa1_walk(walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end,
		                      min_segment_id, max_segment_id, tags_json)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return IOf(err, "preparing walk insert")
	}
	insSteps, err := tx.PrepareContext(ctx,
		"INSERT INTO gfa1_walk_steps(walk_id, steps_jsarray) VALUES(?, ?)")
	if err != nil {
		return IOf(err, "preparing walk insert")
	}

	for _, w := range candidates {
		steps, err := DecodeWalkSteps(w.steps)
		if err != nil {
			return Internalf("walk %d: %v", w.id, err)
		}
		all := true
		for _, st := range steps {
			var one int
			err := selected.QueryRowContext(ctx, st.Segment).Scan(&one)
			if err == sql.ErrNoRows {
				all = false
				break
			}
			if err != nil {
				return IOf(err, "selection lookup")
			}
		}
		if !all {
			continue
		}
		if _, err := insWalk.ExecContext(ctx, w.id, w.sample, w.hap, w.refseq,
			w.begin, w.end, w.minID, w.maxID, w.tags); err != nil {
			return IOf(err, "copying walk")
		}
		if _, err := insSteps.ExecContext(ctx, w.id, w.steps); err != nil {
			return IOf(err, "copying walk")
		}
	}
	return nil
}
