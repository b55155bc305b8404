package gfab

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is this build's semver, stamped into every .gfab it writes (the
// header PG:Z tag) and checked on open.
const Version = "0.6.0"

// minGfabVersion is the oldest writer whose files this build reads.
const minGfabVersion = "v0.5.0"

// ProgramTag is the header tag value identifying the writer.
func ProgramTag() string {
	return "gfabase-v" + Version
}

// CheckGfabVersion reads the writer version from the header of the given
// schema ("" or "input.") and verifies this build can read the file.
func CheckGfabVersion(ctx context.Context, db Execer, prefix string) (string, error) {
	var pg sql.NullString
	err := db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT json_extract(tags_json, '$."PG:Z"') FROM %sgfa1_header LIMIT 1`,
		prefix)).Scan(&pg)
	if err == sql.ErrNoRows || (err == nil && !pg.Valid) {
		return "", Incompatiblef("file carries no gfabase version tag (not .gfab, or corrupt)")
	}
	if err != nil {
		return "", Incompatiblef("file carries no gfabase header (not .gfab, or corrupt)")
	}
	v, ok := strings.CutPrefix(pg.String, "gfabase-")
	if !ok || !semver.IsValid(v) {
		return "", Incompatiblef("unrecognized writer %q", pg.String)
	}
	if semver.Major(v) != semver.Major("v"+Version) ||
		semver.Compare(v, minGfabVersion) < 0 || semver.Compare(v, "v"+Version) > 0 {
		return "", Incompatiblef("written by %s; this build requires %s <= version <= v%s",
			pg.String, minGfabVersion, Version)
	}
	return v, nil
}
