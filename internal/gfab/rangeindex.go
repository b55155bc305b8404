package gfab

import "fmt"

// The genomic-range index over a (refseq_name, refseq_begin, refseq_end)
// table. Realized as a composite B-tree index plus an overlap predicate:
// half-open ranges [begin, end) on the same sequence overlap the query
// [qbegin, qend) iff begin < qend AND end > qbegin. The composite index
// narrows the scan to one refseq and a begin prefix, which is what the
// query resolver needs for a handful of ranges per invocation.

// rangeIndexSQL returns the create-index statement for a mapped table.
func rangeIndexSQL(prefix, table string) string {
	return fmt.Sprintf(
		"CREATE INDEX %s%s_gri ON %s(refseq_name, refseq_begin, refseq_end)",
		prefix, table, table)
}

// rangeOverlapSQL returns a query for the rowids of a mapped table
// overlapping [?2, ?3) on refseq ?1.
func rangeOverlapSQL(prefix, table string) string {
	return fmt.Sprintf(
		`SELECT _rowid_ FROM %s%s
		  WHERE refseq_name = ?1 AND refseq_begin < ?3 AND refseq_end > ?2`,
		prefix, table)
}
