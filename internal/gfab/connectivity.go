package gfab

import (
	"context"
	"database/sql"
	"sort"

	"github.com/gfabase/gfabase/internal/log"
)

// BuildConnectivity computes the derived connectivity tables from the
// loaded segments and links: undirected connected components (component_id
// = smallest member segment_id), cutpoints, biconnected components, and
// per-walk component sets.
//
// Links are undirected edges here; orientation flags are ignored,
// self-loops are dropped, and multi-edges are de-duplicated, so neither
// creates cutpoints. Singleton segments get no connectivity row.
//
// The default path builds the whole adjacency in memory. When the link
// count predicts a working set beyond the memory budget, it falls back to
// enumerating each component through the engine's recursive set query and
// traversing one component at a time.
func BuildConnectivity(ctx context.Context, tx *sql.Tx, prefix string, memoryGBytes int) error {
	log.Infof("computing graph connectivity...")

	var linkCount int64
	if err := tx.QueryRowContext(ctx,
		"SELECT count(1) FROM "+prefix+"gfa1_link").Scan(&linkCount); err != nil {
		return IOf(err, "counting links")
	}

	ins, err := newConnectivityWriter(ctx, tx)
	if err != nil {
		return err
	}

	// ~48 bytes per directed adjacency entry, two per link
	budget := int64(memoryGBytes)
	if budget <= 0 {
		budget = 1
	}
	budget *= 1 << 30
	var lookup func(int64) (int64, error)
	if linkCount*96 <= budget {
		lookup, err = buildInMemory(ctx, tx, prefix, ins)
	} else {
		log.Warnf("adjacency for %s links exceeds memory budget; using on-disk traversal",
			formatCount(linkCount))
		lookup, err = buildComponentwise(ctx, tx, prefix, ins)
	}
	if err != nil {
		return err
	}
	return buildWalkConnectivity(ctx, tx, prefix, ins, lookup)
}

type connectivityWriter struct {
	conn   *sql.Stmt
	bicomp *sql.Stmt
	walk   *sql.Stmt
}

func newConnectivityWriter(ctx context.Context, tx *sql.Tx) (*connectivityWriter, error) {
	var w connectivityWriter
	var err error
	if w.conn, err = tx.PrepareContext(ctx,
		"INSERT INTO gfa1_connectivity(segment_id, component_id, is_cutpoint) VALUES(?, ?, ?)"); err != nil {
		return nil, IOf(err, "preparing connectivity insert")
	}
	if w.bicomp, err = tx.PrepareContext(ctx,
		"INSERT INTO gfa1_biconnectivity(segment_id, bicomponent_min, bicomponent_max) VALUES(?, ?, ?)"); err != nil {
		return nil, IOf(err, "preparing biconnectivity insert")
	}
	if w.walk, err = tx.PrepareContext(ctx,
		"INSERT INTO gfa1_walk_connectivity(walk_id, component_id) VALUES(?, ?)"); err != nil {
		return nil, IOf(err, "preparing walk connectivity insert")
	}
	return &w, nil
}

// buildInMemory loads the whole undirected adjacency, then traverses the
// DFS forest over segments in ascending id order. Returns a component
// lookup for the walk pass.
func buildInMemory(ctx context.Context, tx *sql.Tx, prefix string, ins *connectivityWriter) (func(int64) (int64, error), error) {
	adj, err := loadAdjacency(ctx, tx,
		"SELECT from_segment, to_segment FROM "+prefix+"gfa1_link")
	if err != nil {
		return nil, err
	}
	roots := make([]int64, 0, len(adj))
	for v := range adj {
		roots = append(roots, v)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	component := make(map[int64]int64, len(adj))
	for _, root := range roots {
		if _, visited := component[root]; visited {
			continue
		}
		res := componentDFS(root, func(v int64) []int64 { return adj[v] })
		for _, v := range res.vertices {
			component[v] = root
		}
		if err := res.write(ctx, ins, root); err != nil {
			return nil, err
		}
	}
	return func(seg int64) (int64, error) {
		if c, ok := component[seg]; ok {
			return c, nil
		}
		return seg, nil // singleton
	}, nil
}

// buildComponentwise is the memory-constrained fallback: the member set of
// each component comes from a recursive set query, and only one
// component's adjacency is resident at a time.
func buildComponentwise(ctx context.Context, tx *sql.Tx, prefix string, ins *connectivityWriter) (func(int64) (int64, error), error) {
	if _, err := tx.ExecContext(ctx,
		"CREATE TABLE temp.conn_visited(segment_id INTEGER PRIMARY KEY)"); err != nil {
		return nil, IOf(err, "creating visited table")
	}
	visitedQ, err := tx.PrepareContext(ctx,
		"SELECT 1 FROM temp.conn_visited WHERE segment_id = ?")
	if err != nil {
		return nil, IOf(err, "preparing visited lookup")
	}
	markVisited, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO temp.conn_visited(segment_id) VALUES(?)")
	if err != nil {
		return nil, IOf(err, "preparing visited insert")
	}
	membersQ, err := tx.PrepareContext(ctx, `
		WITH RECURSIVE connected(v) AS (
		    SELECT ?1
		    UNION
		    SELECT CASE WHEN l.from_segment = connected.v THEN l.to_segment ELSE l.from_segment END
		      FROM `+prefix+`gfa1_link l JOIN connected
		        ON connected.v IN (l.from_segment, l.to_segment)
		)
		SELECT v FROM connected`)
	if err != nil {
		return nil, IOf(err, "preparing component query")
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT segment_id FROM "+prefix+"gfa1_segment_meta ORDER BY segment_id")
	if err != nil {
		return nil, IOf(err, "scanning segments")
	}
	var allSegments []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, IOf(err, "scanning segments")
		}
		allSegments = append(allSegments, id)
	}
	if err := rows.Err(); err != nil {
		return nil, IOf(err, "scanning segments")
	}
	_ = rows.Close()

	for _, root := range allSegments {
		var one int
		err := visitedQ.QueryRowContext(ctx, root).Scan(&one)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return nil, IOf(err, "visited lookup")
		}
		members, err := queryInt64s(ctx, membersQ, root)
		if err != nil {
			return nil, err
		}
		for _, v := range members {
			if _, err := markVisited.ExecContext(ctx, v); err != nil {
				return nil, IOf(err, "marking visited")
			}
		}
		if len(members) < 2 {
			continue
		}
		adj, err := componentAdjacency(ctx, tx, prefix, members)
		if err != nil {
			return nil, err
		}
		res := componentDFS(root, func(v int64) []int64 { return adj[v] })
		if err := res.write(ctx, ins, root); err != nil {
			return nil, err
		}
	}

	lookupStmt, err := tx.PrepareContext(ctx,
		"SELECT component_id FROM gfa1_connectivity WHERE segment_id = ?")
	if err != nil {
		return nil, IOf(err, "preparing component lookup")
	}
	return func(seg int64) (int64, error) {
		var c int64
		err := lookupStmt.QueryRowContext(ctx, seg).Scan(&c)
		if err == sql.ErrNoRows {
			return seg, nil
		}
		if err != nil {
			return 0, IOf(err, "component lookup")
		}
		return c, nil
	}, nil
}

func loadAdjacency(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (map[int64][]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, IOf(err, "loading links")
	}
	defer func() { _ = rows.Close() }()
	adj := make(map[int64][]int64)
	for rows.Next() {
		var from, to int64
		if err := rows.Scan(&from, &to); err != nil {
			return nil, IOf(err, "loading links")
		}
		if from == to {
			continue
		}
		adj[from] = append(adj[from], to)
		adj[to] = append(adj[to], from)
	}
	if err := rows.Err(); err != nil {
		return nil, IOf(err, "loading links")
	}
	for v, ns := range adj {
		adj[v] = dedupeSorted(ns)
	}
	return adj, nil
}

func componentAdjacency(ctx context.Context, tx *sql.Tx, prefix string, members []int64) (map[int64][]int64, error) {
	if _, err := tx.ExecContext(ctx, `
		DROP TABLE IF EXISTS temp.cc_members;
		CREATE TABLE temp.cc_members(segment_id INTEGER PRIMARY KEY)`); err != nil {
		return nil, IOf(err, "creating member table")
	}
	insMember, err := tx.PrepareContext(ctx,
		"INSERT INTO temp.cc_members(segment_id) VALUES(?)")
	if err != nil {
		return nil, IOf(err, "filling member table")
	}
	for _, v := range members {
		if _, err := insMember.ExecContext(ctx, v); err != nil {
			return nil, IOf(err, "filling member table")
		}
	}
	return loadAdjacency(ctx, tx, `
		SELECT from_segment, to_segment FROM `+prefix+`gfa1_link
		 WHERE from_segment IN (SELECT segment_id FROM temp.cc_members)`)
}

func dedupeSorted(ns []int64) []int64 {
	sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	out := ns[:0]
	var prev int64
	for i, n := range ns {
		if i == 0 || n != prev {
			out = append(out, n)
		}
		prev = n
	}
	return out
}

// dfsResult is one connected component's traversal outcome.
type dfsResult struct {
	vertices []int64 // in discovery order
	cutpoint map[int64]bool
	bicomps  [][]int64 // distinct vertex sets
}

// componentDFS runs one iterative depth-first search from root, computing
// discovery/low timestamps, cutpoints (low[child] >= disc[v]; the root iff
// it has two or more tree children), and biconnected components via the
// classic edge stack.
func componentDFS(root int64, neighbors func(int64) []int64) *dfsResult {
	res := &dfsResult{cutpoint: make(map[int64]bool)}
	disc := make(map[int64]int)
	low := make(map[int64]int)

	type frame struct {
		v      int64
		parent int64
		next   int // cursor into neighbors(v)
	}
	var edgeStack [][2]int64
	timer := 0
	rootChildren := 0

	stack := []frame{{v: root, parent: root}}
	disc[root] = timer
	low[root] = timer
	timer++
	res.vertices = append(res.vertices, root)

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		ns := neighbors(f.v)
		if f.next < len(ns) {
			w := ns[f.next]
			f.next++
			if w == f.parent && f.v != root {
				continue
			}
			if w == f.v {
				continue
			}
			if dw, seen := disc[w]; !seen {
				edgeStack = append(edgeStack, [2]int64{f.v, w})
				disc[w] = timer
				low[w] = timer
				timer++
				res.vertices = append(res.vertices, w)
				if f.v == root {
					rootChildren++
				}
				stack = append(stack, frame{v: w, parent: f.v})
			} else if dw < disc[f.v] {
				// back edge
				edgeStack = append(edgeStack, [2]int64{f.v, w})
				if dw < low[f.v] {
					low[f.v] = dw
				}
			}
			continue
		}
		// finished v; propagate low to parent and maybe close a bicomp
		stack = stack[:len(stack)-1]
		if f.v == root {
			continue
		}
		p := f.parent
		if low[f.v] < low[p] {
			low[p] = low[f.v]
		}
		if low[f.v] >= disc[p] {
			// pop the biconnected component rooted at edge (p, v)
			seen := make(map[int64]bool)
			for len(edgeStack) > 0 {
				e := edgeStack[len(edgeStack)-1]
				edgeStack = edgeStack[:len(edgeStack)-1]
				seen[e[0]] = true
				seen[e[1]] = true
				if e[0] == p && e[1] == f.v {
					break
				}
			}
			comp := make([]int64, 0, len(seen))
			for v := range seen {
				comp = append(comp, v)
			}
			sort.Slice(comp, func(i, j int) bool { return comp[i] < comp[j] })
			res.bicomps = append(res.bicomps, comp)
			if p != root {
				res.cutpoint[p] = true
			}
		}
	}
	res.cutpoint[root] = rootChildren > 1
	return res
}

// write records one component's rows. Components need two or more
// vertices to appear at all; 2-vertex components (isolated edges)
// additionally get no biconnectivity rows.
func (res *dfsResult) write(ctx context.Context, ins *connectivityWriter, componentID int64) error {
	if len(res.vertices) < 2 {
		return nil
	}
	ordered := append([]int64(nil), res.vertices...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	for _, v := range ordered {
		cut := 0
		if res.cutpoint[v] {
			cut = 1
		}
		if _, err := ins.conn.ExecContext(ctx, v, componentID, cut); err != nil {
			return IOf(err, "inserting connectivity")
		}
	}
	if len(res.vertices) == 2 {
		return nil
	}
	for _, comp := range res.bicomps {
		if len(comp) < 2 {
			continue
		}
		bmin, bmax := comp[0], comp[len(comp)-1]
		for _, v := range comp {
			if _, err := ins.bicomp.ExecContext(ctx, v, bmin, bmax); err != nil {
				return IOf(err, "inserting biconnectivity")
			}
		}
	}
	return nil
}

// buildWalkConnectivity records, per walk, the distinct components its
// steps touch; steps on singleton segments contribute the segment's own
// id.
func buildWalkConnectivity(ctx context.Context, tx *sql.Tx, prefix string, ins *connectivityWriter, lookup func(int64) (int64, error)) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT walk_id, steps_jsarray FROM "+prefix+"gfa1_walk_steps ORDER BY walk_id")
	if err != nil {
		return IOf(err, "scanning walks")
	}
	defer func() { _ = rows.Close() }()

	type walkRow struct {
		id    int64
		steps string
	}
	var walks []walkRow
	for rows.Next() {
		var w walkRow
		if err := rows.Scan(&w.id, &w.steps); err != nil {
			return IOf(err, "scanning walks")
		}
		walks = append(walks, w)
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "scanning walks")
	}
	_ = rows.Close()

	for _, w := range walks {
		steps, err := DecodeWalkSteps(w.steps)
		if err != nil {
			return Internalf("walk %d: %v", w.id, err)
		}
		comps := make(map[int64]bool)
		for _, st := range steps {
			c, err := lookup(st.Segment)
			if err != nil {
				return err
			}
			comps[c] = true
		}
		ordered := make([]int64, 0, len(comps))
		for c := range comps {
			ordered = append(ordered, c)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
		for _, c := range ordered {
			if _, err := ins.walk.ExecContext(ctx, w.id, c); err != nil {
				return IOf(err, "inserting walk connectivity")
			}
		}
	}
	return nil
}

func queryInt64s(ctx context.Context, stmt *sql.Stmt, args ...interface{}) ([]int64, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, IOf(err, "query")
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, IOf(err, "query")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, IOf(err, "query")
	}
	return out, nil
}
