package gfab

import (
	"context"
	"database/sql"
	"fmt"
)

// nameIndex is the loader's transient name → id map. It is an in-memory
// hash until cardinality passes spillThreshold (large pangenomes carry
// millions of segment names), after which entries move to a temp table and
// lookups go through the engine.
type nameIndex struct {
	m         map[string]int64
	threshold int
	table     string
	tx        *sql.Tx
	get       *sql.Stmt
	put       *sql.Stmt
}

const spillThreshold = 4 << 20

func newNameIndex(tx *sql.Tx, table string) *nameIndex {
	return &nameIndex{
		m:         make(map[string]int64),
		threshold: spillThreshold,
		table:     table,
		tx:        tx,
	}
}

func (ni *nameIndex) Get(ctx context.Context, name string) (int64, bool, error) {
	if ni.m != nil {
		id, ok := ni.m[name]
		return id, ok, nil
	}
	var id int64
	err := ni.get.QueryRowContext(ctx, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, IOf(err, "name lookup")
	}
	return id, true, nil
}

func (ni *nameIndex) Put(ctx context.Context, name string, id int64) error {
	if ni.m != nil {
		ni.m[name] = id
		if len(ni.m) > ni.threshold {
			return ni.spill(ctx)
		}
		return nil
	}
	if _, err := ni.put.ExecContext(ctx, name, id); err != nil {
		return IOf(err, "name insert")
	}
	return nil
}

func (ni *nameIndex) spill(ctx context.Context) error {
	ddl := fmt.Sprintf(
		"CREATE TABLE temp.%s(name TEXT PRIMARY KEY, id INTEGER NOT NULL) WITHOUT ROWID",
		ni.table)
	if _, err := ni.tx.ExecContext(ctx, ddl); err != nil {
		return IOf(err, "spilling name index")
	}
	var err error
	if ni.get, err = ni.tx.PrepareContext(ctx, fmt.Sprintf(
		"SELECT id FROM temp.%s WHERE name = ?", ni.table)); err != nil {
		return IOf(err, "spilling name index")
	}
	if ni.put, err = ni.tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO temp.%s(name, id) VALUES(?, ?)", ni.table)); err != nil {
		return IOf(err, "spilling name index")
	}
	for name, id := range ni.m {
		if _, err := ni.put.ExecContext(ctx, name, id); err != nil {
			return IOf(err, "spilling name index")
		}
	}
	ni.m = nil
	return nil
}
