// Package postgres persists state snapshots for the upgrade save/restore
// contract: the full store contents are written as one encoded blob on
// shutdown and read back bit-for-bit on the next boot. There is no
// row-per-entity schema on purpose — the tables live in memory and the
// snapshot is a pure save/restore pair with no transformation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const snapshotName = "marketplace"

type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

// Init creates the snapshot table when it does not exist yet.
func (r *SnapshotRepo) Init(ctx context.Context) error {
	const op = "postgres.SnapshotRepo.Init"

	_, err := r.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS state_snapshots (
			name     text PRIMARY KEY,
			data     bytea NOT NULL,
			saved_at timestamptz NOT NULL
		)`,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Save overwrites the snapshot blob.
func (r *SnapshotRepo) Save(ctx context.Context, data []byte) error {
	const op = "postgres.SnapshotRepo.Save"

	_, err := r.pool.Exec(ctx,
		`INSERT INTO state_snapshots (name, data, saved_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET data = $2, saved_at = $3`,
		snapshotName, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Load returns the stored blob, or ok=false when no snapshot was ever saved.
func (r *SnapshotRepo) Load(ctx context.Context) ([]byte, bool, error) {
	const op = "postgres.SnapshotRepo.Load"

	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT data FROM state_snapshots WHERE name = $1`,
		snapshotName,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s:%w", op, err)
	}

	return data, true, nil
}
