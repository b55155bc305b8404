package gfab

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"hash"
	"io"

	"github.com/gfabase/gfabase/internal/gfa"
	"github.com/gfabase/gfabase/internal/log"
	"github.com/gfabase/gfabase/internal/twobit"
)

// LoadOptions configure a GFA1 → .gfab import.
type LoadOptions struct {
	Compress       int
	MemoryGBytes   int
	NoConnectivity bool
}

// Load streams GFA1 text from src into a fresh .gfab at gfabPath. All base
// tables are written in one transaction; indexes and derived connectivity
// follow in a second.
func Load(ctx context.Context, src io.Reader, gfabPath string, opts LoadOptions) error {
	db, err := CreateDB(ctx, gfabPath, StoreOptions{Compress: opts.Compress, MemoryGBytes: opts.MemoryGBytes})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	hasher := &prefixHasher{r: src, h: sha256.New(), remaining: 64 << 10}
	reader, err := gfa.NewReader(hasher)
	if err != nil {
		return IOf(err, "reading input")
	}
	defer func() { _ = reader.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return IOf(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := CreateTables(ctx, tx, ""); err != nil {
		return err
	}
	// Metadata goes through temp hold tables and is copied into the main
	// file only after all the (typically much larger) sequence blobs, so
	// it lands contiguously instead of interspersed.
	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE temp.segment_meta_hold(
		    segment_id INTEGER PRIMARY KEY, name TEXT,
		    sequence_length INTEGER, tags_json TEXT);
		CREATE TABLE temp.segment_mapping_hold(
		    segment_id INTEGER NOT NULL, refseq_name TEXT NOT NULL,
		    refseq_begin INTEGER NOT NULL, refseq_end INTEGER NOT NULL)`); err != nil {
		return IOf(err, "creating hold tables")
	}

	ld, err := newLoader(ctx, tx)
	if err != nil {
		return err
	}

	log.Infof("processing GFA1 records...")
	for {
		fields, line, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return IOf(err, "reading input")
		}
		if err := ld.dispatch(ctx, fields, line); err != nil {
			return err
		}
	}
	if ld.segCount == 0 {
		return EmptyInputf("no segments in GFA input")
	}

	log.Infof("writing segment metadata...")
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO gfa1_segment_meta(segment_id, name, sequence_length, tags_json)
		    SELECT segment_id, name, sequence_length, tags_json
		    FROM temp.segment_meta_hold ORDER BY segment_id;
		INSERT INTO gfa1_segment_mapping(segment_id, refseq_name, refseq_begin, refseq_end)
		    SELECT segment_id, refseq_name, refseq_begin, refseq_end
		    FROM temp.segment_mapping_hold ORDER BY segment_id`); err != nil {
		return IOf(err, "copying metadata")
	}

	if err := ld.writeHeader(ctx, hex.EncodeToString(hasher.h.Sum(nil)), opts.Compress); err != nil {
		return err
	}
	log.Infof("insertions complete")
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
	log.Infof("flushing %s ...", gfabPath)
	if err := tx2.Commit(); err != nil {
		return IOf(err, "committing")
	}

	return Summary(ctx, db)
}

// prefixHasher hashes the first `remaining` bytes passing through it; the
// digest identifies the input in the header tags.
type prefixHasher struct {
	r         io.Reader
	h         hash.Hash
	remaining int64
}

func (p *prefixHasher) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.remaining > 0 {
		k := int64(n)
		if k > p.remaining {
			k = p.remaining
		}
		p.h.Write(b[:k])
		p.remaining -= k
	}
	return n, err
}

// loader carries the streaming pass's prepared statements and transient
// name → id maps.
type loader struct {
	tx        *sql.Tx
	segNames  *nameIndex
	pathNames *nameIndex
	defined   map[int64]bool
	nextSeg   int64
	nextPath  int64
	nextWalk  int64
	segCount  int64

	headerTags gfa.Tags

	insMetaHold    *sql.Stmt
	updMetaHold    *sql.Stmt
	insSequence    *sql.Stmt
	insMappingHold *sql.Stmt
	insLink        *sql.Stmt
	insContainment *sql.Stmt
	insPath        *sql.Stmt
	insPathElement *sql.Stmt
	insWalk        *sql.Stmt
	insWalkSteps   *sql.Stmt

	warnedTypes map[string]bool
}

func newLoader(ctx context.Context, tx *sql.Tx) (*loader, error) {
	ld := &loader{
		tx:          tx,
		segNames:    newNameIndex(tx, "segment_names"),
		pathNames:   newNameIndex(tx, "path_names"),
		defined:     make(map[int64]bool),
		headerTags:  gfa.Tags{},
		warnedTypes: make(map[string]bool),
	}
	prepared := []struct {
		stmt **sql.Stmt
		sql  string
	}{
		{&ld.insMetaHold, "INSERT INTO temp.segment_meta_hold(segment_id, name, sequence_length, tags_json) VALUES(?, ?, ?, ?)"},
		{&ld.updMetaHold, "UPDATE temp.segment_meta_hold SET sequence_length = ?, tags_json = ? WHERE segment_id = ?"},
		{&ld.insSequence, "INSERT INTO gfa1_segment_sequence(segment_id, sequence_twobit) VALUES(?, ?)"},
		{&ld.insMappingHold, "INSERT INTO temp.segment_mapping_hold(segment_id, refseq_name, refseq_begin, refseq_end) VALUES(?, ?, ?, ?)"},
		{&ld.insLink, "INSERT INTO gfa1_link(from_segment, from_reverse, to_segment, to_reverse, cigar, tags_json) VALUES(?, ?, ?, ?, ?, ?)"},
		{&ld.insContainment, "INSERT INTO gfa1_containment(container_segment, container_reverse, contained_segment, contained_reverse, position, cigar, tags_json) VALUES(?, ?, ?, ?, ?, ?, ?)"},
		{&ld.insPath, "INSERT INTO gfa1_path(path_id, name, tags_json) VALUES(?, ?, ?)"},
		{&ld.insPathElement, "INSERT INTO gfa1_path_element(path_id, ordinal, segment_id, reverse, cigar_vs_previous) VALUES(?, ?, ?, ?, ?)"},
		{&ld.insWalk, "INSERT INTO gfa1_walk(walk_id, sample, hap_idx, refseq_name, refseq_begin, refseq_end, min_segment_id, max_segment_id, tags_json) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)"},
		{&ld.insWalkSteps, "INSERT INTO gfa1_walk_steps(walk_id, steps_jsarray) VALUES(?, ?)"},
	}
	for _, p := range prepared {
		stmt, err := tx.PrepareContext(ctx, p.sql)
		if err != nil {
			return nil, IOf(err, "preparing statements")
		}
		*p.stmt = stmt
	}
	return ld, nil
}

func (ld *loader) dispatch(ctx context.Context, fields []string, line int) error {
	switch fields[0] {
	case "H":
		return ld.header(fields, line)
	case "S":
		return ld.segment(ctx, fields, line)
	case "L":
		return ld.link(ctx, fields, line)
	case "C":
		return ld.containment(ctx, fields, line)
	case "P":
		return ld.path(ctx, fields, line)
	case "W":
		return ld.walk(ctx, fields, line)
	default:
		if !ld.warnedTypes[fields[0]] {
			ld.warnedTypes[fields[0]] = true
			log.Warnf("skipping unsupported GFA record type %q (line %d)", fields[0], line)
		}
		return nil
	}
}

func (ld *loader) header(fields []string, line int) error {
	h, err := gfa.ParseHeader(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	for k, v := range h.Tags {
		ld.headerTags[k] = v
	}
	return nil
}

// resolveSegment maps a segment token to its id, assigning the next dense
// id and inserting a placeholder meta row on first sight.
func (ld *loader) resolveSegment(ctx context.Context, name string) (int64, bool, error) {
	if id, ok, err := ld.segNames.Get(ctx, name); err != nil || ok {
		return id, true, err
	}
	ld.nextSeg++
	id := ld.nextSeg
	if err := ld.segNames.Put(ctx, name, id); err != nil {
		return 0, false, err
	}
	if _, err := ld.insMetaHold.ExecContext(ctx, id, name, nil, nil); err != nil {
		return 0, false, IOf(err, "inserting segment")
	}
	return id, false, nil
}

func (ld *loader) segment(ctx context.Context, fields []string, line int) error {
	rec, err := gfa.ParseSegment(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	id, existed, err := ld.resolveSegment(ctx, rec.Name)
	if err != nil {
		return err
	}
	if existed && ld.defined[id] {
		return DuplicateSegmentf(line, "segment %q defined twice", rec.Name)
	}
	ld.defined[id] = true
	ld.segCount++

	// LN:i gets a dedicated column; keep it out of tags_json but make
	// sure it agrees with the sequence when both are present.
	tags := rec.Tags
	ln, hasLN := tags.Int("LN:i")
	if hasLN {
		delete(tags, "LN:i")
	}
	var seqLen interface{}
	switch {
	case rec.Sequence != "" && hasLN && ln != int64(len(rec.Sequence)):
		return Malformedf(line, "segment %q has inconsistent sequence length and LN tag", rec.Name)
	case rec.Sequence != "":
		seqLen = int64(len(rec.Sequence))
	case hasLN:
		seqLen = ln
	}

	tagsJSON, err := tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}
	// the placeholder row exists either way; fill it in
	if _, err := ld.updMetaHold.ExecContext(ctx, seqLen, nullable(tagsJSON), id); err != nil {
		return IOf(err, "updating segment")
	}

	if rec.Sequence != "" {
		if _, err := ld.insSequence.ExecContext(ctx, id, twobit.Encode([]byte(rec.Sequence))); err != nil {
			return IOf(err, "inserting sequence")
		}
	}

	// rGFA tags place the segment on a linear reference
	if sn, ok := tags.Str("SN:Z"); ok {
		if so, ok := tags.Int("SO:i"); ok {
			if n, known := seqLen.(int64); known {
				if _, err := ld.insMappingHold.ExecContext(ctx, id, sn, so, so+n); err != nil {
					return IOf(err, "inserting mapping")
				}
			}
		}
	}
	if rr, ok := tags.Str("rr:Z"); ok {
		refseq, begin, end, err := parseRefRange(rr, false)
		if err != nil {
			return Malformedf(line, "segment %q has malformed rr:Z tag: %v", rec.Name, err)
		}
		if _, err := ld.insMappingHold.ExecContext(ctx, id, refseq, begin, end); err != nil {
			return IOf(err, "inserting mapping")
		}
	}
	return nil
}

func (ld *loader) link(ctx context.Context, fields []string, line int) error {
	rec, err := gfa.ParseLink(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	from, _, err := ld.resolveSegment(ctx, rec.From)
	if err != nil {
		return err
	}
	to, _, err := ld.resolveSegment(ctx, rec.To)
	if err != nil {
		return err
	}
	tagsJSON, err := rec.Tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}
	if _, err := ld.insLink.ExecContext(ctx,
		from, rec.FromReverse, to, rec.ToReverse,
		nullable(rec.Cigar), nullable(tagsJSON)); err != nil {
		return IOf(err, "inserting link")
	}
	return nil
}

func (ld *loader) containment(ctx context.Context, fields []string, line int) error {
	rec, err := gfa.ParseContainment(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	container, _, err := ld.resolveSegment(ctx, rec.Container)
	if err != nil {
		return err
	}
	contained, _, err := ld.resolveSegment(ctx, rec.Contained)
	if err != nil {
		return err
	}
	tagsJSON, err := rec.Tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}
	if _, err := ld.insContainment.ExecContext(ctx,
		container, rec.ContainerReverse, contained, rec.ContainedReverse,
		rec.Position, nullable(rec.Cigar), nullable(tagsJSON)); err != nil {
		return IOf(err, "inserting containment")
	}
	return nil
}

func (ld *loader) path(ctx context.Context, fields []string, line int) error {
	rec, err := gfa.ParsePath(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	if _, ok, err := ld.pathNames.Get(ctx, rec.Name); err != nil {
		return err
	} else if ok {
		return Malformedf(line, "path %q defined twice", rec.Name)
	}
	ld.nextPath++
	pathID := ld.nextPath
	if err := ld.pathNames.Put(ctx, rec.Name, pathID); err != nil {
		return err
	}

	tagsJSON, err := rec.Tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}
	if _, err := ld.insPath.ExecContext(ctx, pathID, rec.Name, nullable(tagsJSON)); err != nil {
		return IOf(err, "inserting path")
	}
	for ord, step := range rec.Steps {
		segID, _, err := ld.resolveSegment(ctx, step.Segment)
		if err != nil {
			return err
		}
		var cigar interface{}
		if ord > 0 && rec.Overlaps != nil {
			cigar = rec.Overlaps[ord-1]
		}
		if _, err := ld.insPathElement.ExecContext(ctx,
			pathID, ord, segID, step.Reverse, cigar); err != nil {
			return IOf(err, "inserting path element")
		}
	}
	return nil
}

func (ld *loader) walk(ctx context.Context, fields []string, line int) error {
	rec, err := gfa.ParseWalk(fields)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	steps := make([]WalkStep, len(rec.Steps))
	for i, st := range rec.Steps {
		segID, _, err := ld.resolveSegment(ctx, st.Segment)
		if err != nil {
			return err
		}
		steps[i] = WalkStep{Segment: segID, Reverse: st.Reverse}
	}
	jsarray, minID, maxID, err := EncodeWalkSteps(steps)
	if err != nil {
		return Malformedf(line, "%v", err)
	}
	tagsJSON, err := rec.Tags.JSON()
	if err != nil {
		return Internalf("encoding tags: %v", err)
	}
	ld.nextWalk++
	if _, err := ld.insWalk.ExecContext(ctx,
		ld.nextWalk, rec.Sample, rec.HapIndex, rec.RefName, rec.RefBegin, rec.RefEnd,
		minID, maxID, nullable(tagsJSON)); err != nil {
		return IOf(err, "inserting walk")
	}
	if _, err := ld.insWalkSteps.ExecContext(ctx, ld.nextWalk, jsarray); err != nil {
		return IOf(err, "inserting walk steps")
	}
	return nil
}

func (ld *loader) writeHeader(ctx context.Context, inputHash string, compress int) error {
	ld.headerTags["PG:Z"] = ProgramTag()
	ld.headerTags["ih:Z"] = inputHash
	if compress < 0 {
		compress = 0
	} else if compress > 22 {
		compress = 22
	}
	ld.headerTags["zl:i"] = int64(compress)
	tagsJSON, err := ld.headerTags.JSON()
	if err != nil {
		return Internalf("encoding header tags: %v", err)
	}
	if _, err := ld.tx.ExecContext(ctx,
		"INSERT INTO gfa1_header(tags_json) VALUES(?)", tagsJSON); err != nil {
		return IOf(err, "inserting header")
	}
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
