// Package gfab implements the .gfab store: loading GFA1 text into an
// indexed SQLite file, connectivity analysis, subgraph extraction, PAF
// mapping import, and GFA1 emission.
package gfab

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/gfabase/gfabase/internal/debug"
	"github.com/gfabase/gfabase/internal/log"
)

// ApplicationID marks a SQLite file as .gfab ("gfab" in ASCII).
const ApplicationID = 0x67616266

// SchemaVersion is written to PRAGMA user_version.
const SchemaVersion = 1

// StoreOptions tune the underlying engine per invocation.
type StoreOptions struct {
	// Compress is the storage compression aggressiveness (0..22). The
	// container codec is outside this package; the level is clamped,
	// recorded in the header tags, and forwarded to the engine as page
	// sizing.
	Compress int
	// MemoryGBytes caps the engine's page cache.
	MemoryGBytes int
}

func (o StoreOptions) cacheKiB() int {
	g := o.MemoryGBytes
	if g <= 0 {
		g = 1
	}
	return g * 1024 * 1024
}

// setupWASMCache persists the engine's compiled WASM module under the user
// cache directory so process startup skips recompilation.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "gfabase", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

func openPool(connStr string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, IOf(err, "opening database")
	}
	// One invocation is single-threaded, and temp tables plus attached
	// schemas must all live on the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, IOf(err, "opening database")
	}
	return db, nil
}

// CreateDB creates a fresh .gfab at path, deleting any existing file, and
// stamps the application id. Durability pragmas are relaxed: the loader
// owns the file until its transactions commit, and a crash just leaves
// a partial file to re-create.
func CreateDB(ctx context.Context, path string, opts StoreOptions) (*sql.DB, error) {
	if err := deleteExistingFile(path); err != nil {
		return nil, err
	}
	connStr := "file:" + path +
		"?_pragma=journal_mode(MEMORY)&_pragma=synchronous(OFF)&_pragma=foreign_keys(OFF)"
	db, err := openPool(connStr)
	if err != nil {
		return nil, err
	}
	pragmas := []string{
		// page_size must precede the first write
		fmt.Sprintf("PRAGMA page_size = %d", pageSize(opts.Compress)),
		fmt.Sprintf("PRAGMA application_id = %d", ApplicationID),
		fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion),
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.cacheKiB()),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, IOf(err, "configuring database")
		}
	}
	debug.Logf("created %s (page_size=%d)", path, pageSize(opts.Compress))
	return db, nil
}

// pageSize picks larger pages at higher compression levels; big pages are
// what downstream container codecs act on.
func pageSize(compress int) int {
	if compress <= 0 {
		return 4096
	}
	return 65536
}

// OpenDB opens an existing .gfab, validating the application identifier
// and schema version. Read-only opens are immutable snapshots.
func OpenDB(ctx context.Context, path string, writable bool, opts StoreOptions) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, IOf(err, "opening %s", path)
	}
	var connStr string
	if writable {
		connStr = "file:" + path +
			"?_pragma=busy_timeout(30000)&_pragma=foreign_keys(OFF)&_pragma=synchronous(OFF)"
	} else {
		connStr = "file:" + path + "?mode=ro&immutable=1"
	}
	db, err := openPool(connStr)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.cacheKiB())); err != nil {
		_ = db.Close()
		return nil, IOf(err, "configuring database")
	}
	if err := checkGfab(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func checkGfab(ctx context.Context, db *sql.DB, path string) error {
	var appID int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID); err != nil {
		return IOf(err, "reading %s", path)
	}
	if appID != ApplicationID {
		return Incompatiblef("%s isn't .gfab format (or corrupt)", path)
	}
	var userVersion int64
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&userVersion); err != nil {
		return IOf(err, "reading %s", path)
	}
	if userVersion > SchemaVersion {
		return Incompatiblef("%s has schema version %d, this build supports up to %d",
			path, userVersion, SchemaVersion)
	}
	if _, err := CheckGfabVersion(ctx, db, ""); err != nil {
		return err
	}
	return nil
}

// AttachInput attaches the source .gfab read-only as the "input" schema.
func AttachInput(ctx context.Context, db *sql.DB, path string) error {
	uri := "file:" + path + "?mode=ro&immutable=1"
	if _, err := db.ExecContext(ctx, "ATTACH DATABASE ? AS input", uri); err != nil {
		return IOf(err, "attaching %s", path)
	}
	var appID int64
	if err := db.QueryRowContext(ctx, "PRAGMA input.application_id").Scan(&appID); err != nil {
		return IOf(err, "reading %s", path)
	}
	if appID != ApplicationID {
		return Incompatiblef("%s isn't .gfab format (or corrupt)", path)
	}
	if _, err := CheckGfabVersion(ctx, db, "input."); err != nil {
		return err
	}
	return nil
}

func deleteExistingFile(path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		log.Warnf("deleted existing file %s", path)
		return nil
	case os.IsNotExist(err):
		return nil
	default:
		return IOf(err, "deleting %s", path)
	}
}

// Summary logs per-table row counts and sweeps referential integrity.
func Summary(ctx context.Context, db Execer) error {
	log.Infof("tables & row counts:")
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return IOf(err, "listing tables")
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return IOf(err, "listing tables")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return IOf(err, "listing tables")
	}
	_ = rows.Close()
	for _, table := range tables {
		var ct int64
		if err := db.QueryRowContext(ctx,
			"SELECT count(1) FROM "+table).Scan(&ct); err != nil {
			return IOf(err, "counting %s", table)
		}
		log.Infof("\t%s\t%s", table, formatCount(ct))
	}

	var fkTable string
	var fkRowid sql.NullInt64
	err = db.QueryRowContext(ctx, "PRAGMA foreign_key_check").Scan(&fkTable, &fkRowid)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		// the pragma returns a 4-column row; a scan-shape error still
		// means a violation was reported
		return Internalf("foreign key integrity violation")
	default:
		return Internalf("foreign key integrity violation in %s rowid %d", fkTable, fkRowid.Int64)
	}
}
