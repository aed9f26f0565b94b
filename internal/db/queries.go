package db

import (
	"context"
	"database/sql"
	"time"
)

// Queries bundles the handwritten SQL for the game_states table. It is
// bound either to the base connection or to an open transaction via the
// shared DBTX interface.
type Queries struct {
	db DBTX
}

// NewQueries binds a query set to the given connection or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// StateRow describes one persisted state blob, as listed by ListStates.
type StateRow struct {
	// Kind is the component type the blob belongs to.
	Kind string

	// ID is the durable state id (the owning actor's id).
	ID int64

	// Size is the blob length in bytes.
	Size int64

	// UpdatedAt is the time of the last upsert.
	UpdatedAt time.Time
}

// UpsertState inserts or replaces the serialized state for (kind, id).
func (q *Queries) UpsertState(ctx context.Context, kind string, id int64,
	data []byte) error {

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO game_states (kind, id, data, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (kind, id) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		kind, id, data,
	)

	return err
}

// GetState reads the serialized state for (kind, id). Returns
// sql.ErrNoRows when no row exists.
func (q *Queries) GetState(ctx context.Context, kind string,
	id int64) ([]byte, error) {

	var data []byte
	err := q.db.QueryRowContext(ctx, `
		SELECT data FROM game_states WHERE kind = ? AND id = ?`,
		kind, id,
	).Scan(&data)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// ListStates returns metadata for every persisted blob of the given
// kind, or for all kinds when kind is empty.
func (q *Queries) ListStates(ctx context.Context,
	kind string) ([]StateRow, error) {

	query := `
		SELECT kind, id, length(data), updated_at
		FROM game_states`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY kind, id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateRow
	for rows.Next() {
		var row StateRow
		err := rows.Scan(
			&row.Kind, &row.ID, &row.Size, &row.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		out = append(out, row)
	}

	return out, rows.Err()
}

// CountStates returns the total number of persisted blobs.
func (q *Queries) CountStates(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM game_states`,
	).Scan(&count)

	return count, err
}

// Ensure *sql.DB and *sql.Tx both satisfy the query source interface.
var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
