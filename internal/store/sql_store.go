package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/db"
)

type dialect string

const (
	dialectPostgres dialect = "postgres"
	dialectSQLite   dialect = "sqlite"
)

// sqlStore implements Store over an executor. Inside a transaction begin is
// nil and ex is the transaction.
type sqlStore struct {
	ex      executor
	dialect dialect
	begin   func(ctx context.Context) (txExecutor, db.Copier, error)
	// copier is set for Postgres and enables COPY for quarantine batches.
	copier db.Copier
}

func (s *sqlStore) inTx() bool { return s.begin == nil }

// WithTx runs fn inside one transaction, committing when fn returns nil.
func (s *sqlStore) WithTx(ctx context.Context, fn func(Store) error) (err error) {
	if s.inTx() {
		return fn(s)
	}

	tx, copier, err := s.begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "%s: begin tx", s.dialect)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.rollback(ctx); rbErr != nil {
			zap.L().Debug("store: rollback", zap.String("dialect", string(s.dialect)), zap.Error(rbErr))
		}
	}()

	if err = fn(&sqlStore{ex: tx, dialect: s.dialect, copier: copier}); err != nil {
		return err
	}
	if err = tx.commit(ctx); err != nil {
		return eris.Wrapf(err, "%s: commit tx", s.dialect)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	var one int
	err := s.ex.queryRow(ctx, "SELECT 1").Scan(&one)
	return eris.Wrapf(err, "%s: ping", s.dialect)
}

// Migrate and Close are overridden by the pool-owning stores.
func (s *sqlStore) Migrate(context.Context) error { return ErrInTx }
func (s *sqlStore) Close() error                 { return nil }

// wrap prefixes a driver error with the dialect, e.g. "sqlite: get team".
func (s *sqlStore) wrap(err error, action string) error {
	if err == nil {
		return nil
	}
	return eris.Wrapf(err, "%s: %s", s.dialect, action)
}

// one scans a single row, turning an empty result into found=false.
func one(err error) (found bool, _ error) {
	if err == errNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
