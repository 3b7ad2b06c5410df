package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// PGStore persists the snapshot in Postgres, for deployments where a local
// data directory is undesirable. It holds the same shape as the JSON file:
// one row per selected channel and one row per tracker.
type PGStore struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS guild_channels (
    guild_id   TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS guild_trackers (
    guild_id TEXT NOT NULL,
    login    TEXT NOT NULL,
    template TEXT NOT NULL,
    PRIMARY KEY (guild_id, login)
);`

// NewPGStore opens the database, verifies connectivity, and applies the
// idempotent schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PGStore{db: db}, nil
}

func (p *PGStore) Close() error { return p.db.Close() }

func (p *PGStore) Load(ctx context.Context) (Snapshot, error) {
	snap := EmptySnapshot()
	rows, err := p.db.QueryContext(ctx, `SELECT guild_id, channel_id FROM guild_channels`)
	if err != nil {
		return snap, fmt.Errorf("load channels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g, ch string
		if err := rows.Scan(&g, &ch); err != nil {
			return snap, fmt.Errorf("scan channel row: %w", err)
		}
		snap.Selected[g] = ch
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("iterate channel rows: %w", err)
	}

	trows, err := p.db.QueryContext(ctx, `SELECT guild_id, login, template FROM guild_trackers ORDER BY guild_id, login`)
	if err != nil {
		return snap, fmt.Errorf("load trackers: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var g, login, tmpl string
		if err := trows.Scan(&g, &login, &tmpl); err != nil {
			return snap, fmt.Errorf("scan tracker row: %w", err)
		}
		if snap.Trackers[g] == nil {
			snap.Trackers[g] = map[string]string{}
		}
		snap.Trackers[g][login] = tmpl
	}
	if err := trows.Err(); err != nil {
		return snap, fmt.Errorf("iterate tracker rows: %w", err)
	}
	return snap, nil
}

// Save replaces the stored configuration with the snapshot in one transaction.
// The tables are tiny (bounded by the per-guild tracker limit), so a full
// rewrite is simpler and safer than diffing.
func (p *PGStore) Save(ctx context.Context, snap Snapshot) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM guild_channels`); err != nil {
		return fmt.Errorf("clear channels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM guild_trackers`); err != nil {
		return fmt.Errorf("clear trackers: %w", err)
	}
	for g, ch := range snap.Selected {
		if _, err := tx.ExecContext(ctx, `INSERT INTO guild_channels (guild_id, channel_id) VALUES ($1, $2)`, g, ch); err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
	}
	for g, trackers := range snap.Trackers {
		for login, tmpl := range trackers {
			if _, err := tx.ExecContext(ctx, `INSERT INTO guild_trackers (guild_id, login, template) VALUES ($1, $2, $3)`, g, login, tmpl); err != nil {
				return fmt.Errorf("insert tracker: %w", err)
			}
		}
	}
	return tx.Commit()
}
