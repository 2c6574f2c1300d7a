package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

const reviewColumns = `id, batch_id, provider, alias_key, record, candidates, top_score, status,
	resolved_master_id, resolver, resolution_note, resolved_at, created_at`

func scanReview(r rowScanner) (model.ReviewQueueEntry, error) {
	var e model.ReviewQueueEntry
	var record, candidates []byte
	if err := r.Scan(&e.ID, &e.BatchID, &e.Provider, &e.AliasKey, &record, &candidates, &e.TopScore,
		&e.Status, &e.ResolvedMasterID, &e.Resolver, &e.ResolutionNote, &e.ResolvedAt, &e.CreatedAt); err != nil {
		return e, err
	}
	if err := json.Unmarshal(record, &e.Record); err != nil {
		return e, eris.Wrap(err, "unmarshal review record")
	}
	if len(candidates) > 0 {
		if err := json.Unmarshal(candidates, &e.Candidates); err != nil {
			return e, eris.Wrap(err, "unmarshal review candidates")
		}
	}
	return e, nil
}

// InsertPendingReview queues e unless a pending entry already exists for its
// provider and alias key. It reports whether this call created the row.
func (s *sqlStore) InsertPendingReview(ctx context.Context, e *model.ReviewQueueEntry) (bool, error) {
	if e.ID == "" {
		e.ID = newID()
	}
	e.Status = model.ReviewPending
	e.CreatedAt = nowFunc()
	if e.Candidates == nil {
		e.Candidates = []model.Candidate{}
	}

	record, err := json.Marshal(e.Record)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal review record")
	}
	candidates, err := json.Marshal(e.Candidates)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal review candidates")
	}

	n, err := s.ex.exec(ctx,
		`INSERT INTO review_queue (id, batch_id, provider, alias_key, record, candidates, top_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT DO NOTHING`,
		e.ID, e.BatchID, e.Provider, e.AliasKey, string(record), string(candidates), e.TopScore,
		string(e.Status), e.CreatedAt,
	)
	if err != nil {
		return false, s.wrap(err, "insert review")
	}
	return n == 1, nil
}

func (s *sqlStore) getReview(ctx context.Context, action, where string, args ...any) (*model.ReviewQueueEntry, error) {
	e, err := scanReview(s.ex.queryRow(ctx, `SELECT `+reviewColumns+` FROM review_queue WHERE `+where, args...))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, action)
	}
	return &e, nil
}

func (s *sqlStore) GetReview(ctx context.Context, id string) (*model.ReviewQueueEntry, error) {
	return s.getReview(ctx, "get review "+id, `id = $1`, id)
}

func (s *sqlStore) GetPendingReview(ctx context.Context, provider, aliasKey string) (*model.ReviewQueueEntry, error) {
	return s.getReview(ctx, "get pending review", `provider = $1 AND alias_key = $2 AND status = $3`,
		provider, aliasKey, string(model.ReviewPending))
}

func (s *sqlStore) GetLatestRejectedReview(ctx context.Context, provider, aliasKey string) (*model.ReviewQueueEntry, error) {
	return s.getReview(ctx, "get rejected review",
		`provider = $1 AND alias_key = $2 AND status = $3 ORDER BY id DESC LIMIT 1`,
		provider, aliasKey, string(model.ReviewRejected))
}

// ListReviews pages through entries in creation order. Status defaults to pending.
func (s *sqlStore) ListReviews(ctx context.Context, f model.ReviewFilter) ([]model.ReviewQueueEntry, error) {
	status := f.Status
	if status == "" {
		status = model.ReviewPending
	}
	query := `SELECT ` + reviewColumns + ` FROM review_queue WHERE status = $1`
	args := []any{string(status)}

	if f.Provider != "" {
		args = append(args, f.Provider)
		query += fmt.Sprintf(" AND provider = $%d", len(args))
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
		return nil, s.wrap(err, "list reviews")
	}
	defer rows.Close()

	var out []model.ReviewQueueEntry
	for rows.Next() {
		e, err := scanReview(rows)
		if err != nil {
			return nil, s.wrap(err, "scan review")
		}
		out = append(out, e)
	}
	return out, s.wrap(rows.Err(), "list reviews")
}

// ResolveReview moves a pending entry to status. It reports false when the
// entry was no longer pending.
func (s *sqlStore) ResolveReview(ctx context.Context, id string, status model.ReviewStatus, masterID *string, resolver, note string, at time.Time) (bool, error) {
	n, err := s.ex.exec(ctx,
		`UPDATE review_queue SET status = $1, resolved_master_id = $2, resolver = $3, resolution_note = $4, resolved_at = $5
		WHERE id = $6 AND status = $7`,
		string(status), masterID, resolver, note, at.UTC(), id, string(model.ReviewPending),
	)
	if err != nil {
		return false, s.wrap(err, "resolve review "+id)
	}
	return n == 1, nil
}
