package store

import (
	"context"
	"fmt"

	"github.com/sells-group/teamresolve/internal/model"
)

const mergeColumns = `id, deprecated_id, canonical_id, justification, automatic, status, proposed_by, proposed_at,
	preview_aliases, preview_games, executed_by, executed_at, reverted_by, reverted_at`

func scanMerge(r rowScanner) (model.MergeRecord, error) {
	var m model.MergeRecord
	err := r.Scan(&m.ID, &m.DeprecatedID, &m.CanonicalID, &m.Justification, &m.Automatic, &m.Status,
		&m.ProposedBy, &m.ProposedAt, &m.PreviewAliases, &m.PreviewGames, &m.ExecutedBy, &m.ExecutedAt,
		&m.RevertedBy, &m.RevertedAt)
	return m, err
}

func (s *sqlStore) CreateMerge(ctx context.Context, m *model.MergeRecord) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Status == "" {
		m.Status = model.MergeProposed
	}
	m.ProposedAt = nowFunc()
	_, err := s.ex.exec(ctx,
		`INSERT INTO merge_records (`+mergeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		m.ID, m.DeprecatedID, m.CanonicalID, m.Justification, m.Automatic, string(m.Status), m.ProposedBy,
		m.ProposedAt, m.PreviewAliases, m.PreviewGames, m.ExecutedBy, m.ExecutedAt, m.RevertedBy, m.RevertedAt,
	)
	return s.wrap(err, "insert merge")
}

func (s *sqlStore) GetMerge(ctx context.Context, id string) (*model.MergeRecord, error) {
	m, err := scanMerge(s.ex.queryRow(ctx, `SELECT `+mergeColumns+` FROM merge_records WHERE id = $1`, id))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get merge "+id)
	}
	return &m, nil
}

func (s *sqlStore) ListMerges(ctx context.Context, f MergeFilter) ([]model.MergeRecord, error) {
	query := `SELECT ` + mergeColumns + ` FROM merge_records WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.TeamID != "" {
		args = append(args, f.TeamID)
		query += fmt.Sprintf(" AND (deprecated_id = $%d OR canonical_id = $%d)", len(args), len(args))
	}
	if f.AfterID != "" {
		args = append(args, f.AfterID)
		query += fmt.Sprintf(" AND id > $%d", len(args))
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.ex.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, "list merges")
	}
	defer rows.Close()

	var out []model.MergeRecord
	for rows.Next() {
		m, err := scanMerge(rows)
		if err != nil {
			return nil, s.wrap(err, "scan merge")
		}
		out = append(out, m)
	}
	return out, s.wrap(rows.Err(), "list merges")
}

// UpdateMerge persists the lifecycle columns of m.
func (s *sqlStore) UpdateMerge(ctx context.Context, m *model.MergeRecord) error {
	n, err := s.ex.exec(ctx,
		`UPDATE merge_records SET status = $1, executed_by = $2, executed_at = $3, reverted_by = $4, reverted_at = $5,
		preview_aliases = $6, preview_games = $7 WHERE id = $8`,
		string(m.Status), m.ExecutedBy, m.ExecutedAt, m.RevertedBy, m.RevertedAt,
		m.PreviewAliases, m.PreviewGames, m.ID,
	)
	if err != nil {
		return s.wrap(err, "update merge "+m.ID)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMergeAuditItem records a prior value. A repeated item keeps the first.
func (s *sqlStore) AddMergeAuditItem(ctx context.Context, item model.MergeAuditItem) error {
	_, err := s.ex.exec(ctx,
		`INSERT INTO merge_audit_items (merge_id, kind, ref, old_value, new_value) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (merge_id, kind, ref) DO NOTHING`,
		item.MergeID, string(item.Kind), item.Ref, item.OldValue, item.NewValue,
	)
	return s.wrap(err, "insert merge audit item")
}

func (s *sqlStore) ListMergeAuditItems(ctx context.Context, mergeID string) ([]model.MergeAuditItem, error) {
	rows, err := s.ex.query(ctx,
		`SELECT merge_id, kind, ref, old_value, new_value FROM merge_audit_items WHERE merge_id = $1 ORDER BY kind, ref`,
		mergeID,
	)
	if err != nil {
		return nil, s.wrap(err, "list merge audit items")
	}
	defer rows.Close()

	var out []model.MergeAuditItem
	for rows.Next() {
		var it model.MergeAuditItem
		if err := rows.Scan(&it.MergeID, &it.Kind, &it.Ref, &it.OldValue, &it.NewValue); err != nil {
			return nil, s.wrap(err, "scan merge audit item")
		}
		out = append(out, it)
	}
	return out, s.wrap(rows.Err(), "list merge audit items")
}

func (s *sqlStore) UpsertMergeAudit(ctx context.Context, a *model.MergeAudit) error {
	_, err := s.ex.exec(ctx,
		`INSERT INTO merge_audits (merge_id, aliases_moved, games_moved, pointers_rewritten, executed_at, reverted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (merge_id) DO UPDATE SET aliases_moved = excluded.aliases_moved, games_moved = excluded.games_moved,
		pointers_rewritten = excluded.pointers_rewritten, executed_at = excluded.executed_at, reverted_at = excluded.reverted_at`,
		a.MergeID, a.AliasesMoved, a.GamesMoved, a.PointersRewritten, a.ExecutedAt, a.RevertedAt,
	)
	return s.wrap(err, "upsert merge audit")
}

func (s *sqlStore) GetMergeAudit(ctx context.Context, mergeID string) (*model.MergeAudit, error) {
	var a model.MergeAudit
	err := s.ex.queryRow(ctx,
		`SELECT merge_id, aliases_moved, games_moved, pointers_rewritten, executed_at, reverted_at FROM merge_audits WHERE merge_id = $1`,
		mergeID,
	).Scan(&a.MergeID, &a.AliasesMoved, &a.GamesMoved, &a.PointersRewritten, &a.ExecutedAt, &a.RevertedAt)
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get merge audit "+mergeID)
	}
	return &a, nil
}
