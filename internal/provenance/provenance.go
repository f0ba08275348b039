// Package provenance records a SQLite-backed audit trail of fetches: which
// remote and ref were fetched, what commit it resolved to, and how many
// objects and deltas the pack carried. It is consulted only for logging and
// "minigit log --provenance"-style introspection, never for correctness.
package provenance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mustafaquraish/minigit/internal/giterrors"
)

type DB struct {
	db *sql.DB
}

// Record is one completed fetch, ready to be appended to the log.
type Record struct {
	RemoteURL   string
	RefName     string
	Hash        string
	FetchedAt   time.Time
	ObjectCount int
	DeltaCount  int
}

// Open opens (creating if absent) the provenance database at dsn, a file
// path per modernc.org/sqlite's DSN convention.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "open provenance database", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, giterrors.Wrap(giterrors.IOError, fmt.Sprintf("pragma %s", pragma), err)
		}
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return giterrors.Wrap(giterrors.IOError, "migrate provenance schema", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS fetches (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	remote_url TEXT NOT NULL,
	ref_name TEXT NOT NULL,
	hash TEXT NOT NULL,
	fetched_at DATETIME NOT NULL,
	object_count INTEGER NOT NULL,
	delta_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetches_remote_ref ON fetches(remote_url, ref_name);
`

// Append inserts one fetch record.
func (d *DB) Append(ctx context.Context, r Record) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO fetches (remote_url, ref_name, hash, fetched_at, object_count, delta_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RemoteURL, r.RefName, r.Hash, r.FetchedAt, r.ObjectCount, r.DeltaCount)
	if err != nil {
		return giterrors.Wrap(giterrors.IOError, "append provenance record", err)
	}
	return nil
}

// Last returns the most recent fetch recorded for (remoteURL, refName), if
// any.
func (d *DB) Last(ctx context.Context, remoteURL, refName string) (Record, bool, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT remote_url, ref_name, hash, fetched_at, object_count, delta_count
		 FROM fetches WHERE remote_url = ? AND ref_name = ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		remoteURL, refName)

	var r Record
	if err := row.Scan(&r.RemoteURL, &r.RefName, &r.Hash, &r.FetchedAt, &r.ObjectCount, &r.DeltaCount); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, giterrors.Wrap(giterrors.IOError, "query last provenance record", err)
	}
	return r, true, nil
}

// History returns every fetch recorded for remoteURL, most recent first.
func (d *DB) History(ctx context.Context, remoteURL string) ([]Record, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT remote_url, ref_name, hash, fetched_at, object_count, delta_count
		 FROM fetches WHERE remote_url = ? ORDER BY fetched_at DESC`,
		remoteURL)
	if err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "query provenance history", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RemoteURL, &r.RefName, &r.Hash, &r.FetchedAt, &r.ObjectCount, &r.DeltaCount); err != nil {
			return nil, giterrors.Wrap(giterrors.IOError, "scan provenance history row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, giterrors.Wrap(giterrors.IOError, "iterate provenance history", err)
	}
	return out, nil
}
