package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/db"
	"github.com/sells-group/teamresolve/internal/model"
)

var quarantineCopyColumns = []string{"id", "batch_id", "reason_code", "detail", "payload", "created_at"}

func (s *sqlStore) prepareQuarantine(r *model.QuarantinedRecord) error {
	if !r.Reason.Valid() {
		return eris.Errorf("store: invalid quarantine reason %q", r.Reason)
	}
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = nowFunc()
	}
	if len(r.Payload) == 0 {
		r.Payload = []byte("{}")
	}
	return nil
}

func (s *sqlStore) AppendQuarantine(ctx context.Context, r *model.QuarantinedRecord) error {
	if err := s.prepareQuarantine(r); err != nil {
		return err
	}
	_, err := s.ex.exec(ctx,
		`INSERT INTO quarantine (id, batch_id, reason_code, detail, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.BatchID, string(r.Reason), r.Detail, string(r.Payload), r.CreatedAt,
	)
	return s.wrap(err, "insert quarantine")
}

// AppendQuarantineBatch writes rs in one round trip: COPY on Postgres, one
// transaction on SQLite.
func (s *sqlStore) AppendQuarantineBatch(ctx context.Context, rs []model.QuarantinedRecord) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	for i := range rs {
		if err := s.prepareQuarantine(&rs[i]); err != nil {
			return 0, err
		}
	}

	if s.copier != nil {
		rows := make([][]any, len(rs))
		for i, r := range rs {
			rows[i] = []any{r.ID, r.BatchID, string(r.Reason), r.Detail, string(r.Payload), r.CreatedAt}
		}
		return db.CopyFrom(ctx, s.copier, "quarantine", quarantineCopyColumns, rows)
	}

	var n int64
	err := s.WithTx(ctx, func(tx Store) error {
		for i := range rs {
			if err := tx.AppendQuarantine(ctx, &rs[i]); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqlStore) ListQuarantine(ctx context.Context, f model.QuarantineFilter) ([]model.QuarantinedRecord, error) {
	query := `SELECT id, batch_id, reason_code, detail, payload, created_at FROM quarantine WHERE 1 = 1`
	var args []any
	if f.Reason != "" {
		args = append(args, string(f.Reason))
		query += fmt.Sprintf(" AND reason_code = $%d", len(args))
	}
	if f.BatchID != "" {
		args = append(args, f.BatchID)
		query += fmt.Sprintf(" AND batch_id = $%d", len(args))
	}
	if f.AfterID != "" {
		args = append(args, f.AfterID)
		query += fmt.Sprintf(" AND id > $%d", len(args))
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.ex.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, "list quarantine")
	}
	defer rows.Close()

	var out []model.QuarantinedRecord
	for rows.Next() {
		var r model.QuarantinedRecord
		var payload []byte
		if err := rows.Scan(&r.ID, &r.BatchID, &r.Reason, &r.Detail, &payload, &r.CreatedAt); err != nil {
			return nil, s.wrap(err, "scan quarantine")
		}
		r.Payload = payload
		out = append(out, r)
	}
	return out, s.wrap(rows.Err(), "list quarantine")
}

// CountQuarantineByReason counts records per reason, optionally for one batch.
func (s *sqlStore) CountQuarantineByReason(ctx context.Context, batchID string) (map[model.QuarantineReason]int, error) {
	query := `SELECT reason_code, COUNT(*) FROM quarantine`
	var args []any
	if batchID != "" {
		query += ` WHERE batch_id = $1`
		args = append(args, batchID)
	}
	query += ` GROUP BY reason_code`

	rows, err := s.ex.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, "count quarantine")
	}
	defer rows.Close()

	out := make(map[model.QuarantineReason]int)
	for rows.Next() {
		var reason model.QuarantineReason
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, s.wrap(err, "scan quarantine count")
		}
		out[reason] = n
	}
	return out, s.wrap(rows.Err(), "count quarantine")
}

func (s *sqlStore) DeleteQuarantine(ctx context.Context, id string) (bool, error) {
	n, err := s.ex.exec(ctx, `DELETE FROM quarantine WHERE id = $1`, id)
	if err != nil {
		return false, s.wrap(err, "delete quarantine "+id)
	}
	return n == 1, nil
}
