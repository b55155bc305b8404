package gfab

import (
	"context"
	"database/sql"
	"strings"

	"github.com/gfabase/gfabase/internal/log"
)

// The .gfab schema. Statements are rendered through renderSQL so the same
// DDL serves the main schema and an attached input schema; the {{prefix}}
// placeholder is replaced with a vetted schema prefix, never user input.
const schemaDDL = `
CREATE TABLE {{prefix}}gfa1_header(
    tags_json TEXT NOT NULL
);

CREATE TABLE {{prefix}}gfa1_segment_meta(
    segment_id INTEGER PRIMARY KEY,
    name TEXT,
    sequence_length INTEGER,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_segment_sequence(
    segment_id INTEGER PRIMARY KEY,
    sequence_twobit BLOB NOT NULL
);

CREATE TABLE {{prefix}}gfa1_link(
    from_segment INTEGER NOT NULL,
    from_reverse INTEGER NOT NULL,
    to_segment INTEGER NOT NULL,
    to_reverse INTEGER NOT NULL,
    cigar TEXT,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_containment(
    container_segment INTEGER NOT NULL,
    container_reverse INTEGER NOT NULL,
    contained_segment INTEGER NOT NULL,
    contained_reverse INTEGER NOT NULL,
    position INTEGER NOT NULL,
    cigar TEXT,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_path(
    path_id INTEGER PRIMARY KEY,
    name TEXT,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_path_element(
    path_id INTEGER NOT NULL,
    ordinal INTEGER NOT NULL,
    segment_id INTEGER NOT NULL,
    reverse INTEGER NOT NULL,
    cigar_vs_previous TEXT,
    PRIMARY KEY(path_id, ordinal)
) WITHOUT ROWID;

CREATE TABLE {{prefix}}gfa1_walk(
    walk_id INTEGER PRIMARY KEY,
    sample TEXT NOT NULL,
    hap_idx INTEGER NOT NULL,
    refseq_name TEXT NOT NULL,
    refseq_begin INTEGER NOT NULL,
    refseq_end INTEGER NOT NULL,
    min_segment_id INTEGER NOT NULL,
    max_segment_id INTEGER NOT NULL,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_walk_steps(
    walk_id INTEGER PRIMARY KEY,
    steps_jsarray TEXT NOT NULL
);

CREATE TABLE {{prefix}}gfa1_segment_mapping(
    segment_id INTEGER NOT NULL,
    refseq_name TEXT NOT NULL,
    refseq_begin INTEGER NOT NULL,
    refseq_end INTEGER NOT NULL,
    cigar TEXT,
    tags_json TEXT
);

CREATE TABLE {{prefix}}gfa1_connectivity(
    segment_id INTEGER PRIMARY KEY,
    component_id INTEGER NOT NULL,
    is_cutpoint INTEGER NOT NULL
);

CREATE TABLE {{prefix}}gfa1_biconnectivity(
    segment_id INTEGER NOT NULL,
    bicomponent_min INTEGER NOT NULL,
    bicomponent_max INTEGER NOT NULL
);

CREATE TABLE {{prefix}}gfa1_walk_connectivity(
    walk_id INTEGER NOT NULL,
    component_id INTEGER NOT NULL
);
`

// Secondary indexes, created only after bulk load so insertion stays
// append-only.
const indexDDL = `
CREATE UNIQUE INDEX {{prefix}}gfa1_segment_meta_name ON gfa1_segment_meta(name) WHERE name IS NOT NULL;
CREATE INDEX {{prefix}}gfa1_link_from_to ON gfa1_link(from_segment, to_segment);
CREATE INDEX {{prefix}}gfa1_link_to_from ON gfa1_link(to_segment, from_segment);
CREATE INDEX {{prefix}}gfa1_containment_container ON gfa1_containment(container_segment);
CREATE INDEX {{prefix}}gfa1_containment_contained ON gfa1_containment(contained_segment);
CREATE UNIQUE INDEX {{prefix}}gfa1_path_name ON gfa1_path(name) WHERE name IS NOT NULL;
CREATE INDEX {{prefix}}gfa1_path_element_segment ON gfa1_path_element(segment_id);
CREATE INDEX {{prefix}}gfa1_walk_sample ON gfa1_walk(sample, refseq_name);
CREATE INDEX {{prefix}}gfa1_segment_mapping_segment ON gfa1_segment_mapping(segment_id);
CREATE INDEX {{prefix}}gfa1_connectivity_component ON gfa1_connectivity(component_id);
CREATE INDEX {{prefix}}gfa1_biconnectivity_segment ON gfa1_biconnectivity(segment_id);
CREATE INDEX {{prefix}}gfa1_biconnectivity_component ON gfa1_biconnectivity(bicomponent_min, bicomponent_max);
`

func renderSQL(ddl, prefix string) string {
	return strings.ReplaceAll(ddl, "{{prefix}}", prefix)
}

// Execer is the slice of database/sql shared by *sql.DB, *sql.Tx, and
// *sql.Conn that the schema and copy routines need.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CreateTables applies the .gfab schema under the given prefix.
func CreateTables(ctx context.Context, ex Execer, prefix string) error {
	for _, stmt := range splitStatements(renderSQL(schemaDDL, prefix)) {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return IOf(err, "creating tables")
		}
	}
	log.Debugf("created GFA1 tables")
	return nil
}

// CreateIndexes builds the secondary indexes and the genomic-range indexes
// over mappings and walks, then refreshes planner statistics.
func CreateIndexes(ctx context.Context, ex Execer, prefix string) error {
	log.Infof("indexing:")
	stmts := splitStatements(renderSQL(indexDDL, prefix))
	stmts = append(stmts,
		rangeIndexSQL(prefix, "gfa1_segment_mapping"),
		rangeIndexSQL(prefix, "gfa1_walk"))
	for _, stmt := range stmts {
		name, _, _ := strings.Cut(stmt, " ON")
		log.Infof("\t%s ...", name)
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return IOf(err, "creating index")
		}
	}
	log.Infof("\tANALYZE ...")
	if _, err := ex.ExecContext(ctx, "PRAGMA analysis_limit = 1000"); err != nil {
		return IOf(err, "analyze")
	}
	// only this schema: an attached read-only input must not be written
	schema := strings.TrimSuffix(prefix, ".")
	if schema == "" {
		schema = "main"
	}
	if _, err := ex.ExecContext(ctx, "ANALYZE "+schema); err != nil {
		return IOf(err, "analyze")
	}
	return nil
}

func splitStatements(ddl string) []string {
	var stmts []string
	for _, s := range strings.Split(ddl, ";") {
		s = strings.TrimSpace(s)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
