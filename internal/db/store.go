package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roasbeef/gamecore/internal/state"
)

// StateStore wraps the BaseDB with transaction support and implements
// the runtime's state.Store interface: an object-addressed upsert/load
// sink keyed by (component kind, state id). Writes ride the retrying
// transaction executor, so transient busy/locked errors surface as save
// failures only once its retries are exhausted.
type StateStore struct {
	*BaseDB

	// txExecutor handles transactional operations with automatic
	// retry.
	txExecutor *TransactionExecutor[*Queries]

	log *slog.Logger
}

// NewStateStore creates a new StateStore instance wrapping the given
// database connection.
func NewStateStore(db *sql.DB, log *slog.Logger) *StateStore {
	baseDB := NewBaseDB(db)

	// Create query creator function for transaction executor.
	createQuery := func(tx *sql.Tx) *Queries {
		return NewQueries(tx)
	}

	return &StateStore{
		BaseDB: baseDB,
		txExecutor: NewTransactionExecutor(
			baseDB, createQuery, log,
		),
		log: log,
	}
}

// ExecTx executes the given function within a database transaction with
// automatic retry on serialization errors.
func (s *StateStore) ExecTx(ctx context.Context, txOptions TxOptions,
	txBody func(*Queries) error,
) error {
	return s.txExecutor.ExecTx(ctx, txOptions, txBody)
}

// Upsert writes the serialized state bytes for (kind, id), inserting or
// replacing as needed.
//
// NOTE: This implements the state.Store interface.
func (s *StateStore) Upsert(ctx context.Context, kind string, id int64,
	data []byte) error {

	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	err := s.ExecTx(ctx, WriteTxOption(), func(q *Queries) error {
		return q.UpsertState(ctx, kind, id, data)
	})
	if err != nil {
		return fmt.Errorf("upsert state %s/%d: %w", kind, id, err)
	}

	return nil
}

// LoadByID reads the serialized state bytes for (kind, id). The boolean
// reports whether a row existed.
//
// NOTE: This implements the state.Store interface.
func (s *StateStore) LoadByID(ctx context.Context, kind string,
	id int64) ([]byte, bool, error) {

	ctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	data, err := s.Queries.GetState(ctx, kind, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil

	case err != nil:
		return nil, false, fmt.Errorf("load state %s/%d: %w", kind,
			id, MapSQLError(err))
	}

	return data, true, nil
}

// Close closes the underlying database connection.
func (s *StateStore) Close() error {
	return s.BaseDB.DB.Close()
}

// Ensure StateStore implements the runtime's store interface at compile
// time.
var _ state.Store = (*StateStore)(nil)
