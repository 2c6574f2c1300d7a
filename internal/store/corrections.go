package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

const correctionColumns = `id, game_uid, correction_type, original, corrected, status, reason, proposed_by, proposed_at,
	approved_by, approved_at, reverted_by, reverted_at`

func scanCorrection(r rowScanner) (model.GameCorrection, error) {
	var c model.GameCorrection
	var original, corrected []byte
	if err := r.Scan(&c.ID, &c.GameUID, &c.Type, &original, &corrected, &c.Status, &c.Reason, &c.ProposedBy,
		&c.ProposedAt, &c.ApprovedBy, &c.ApprovedAt, &c.RevertedBy, &c.RevertedAt); err != nil {
		return c, err
	}
	if len(original) > 0 {
		c.Original = &model.GameFields{}
		if err := json.Unmarshal(original, c.Original); err != nil {
			return c, eris.Wrap(err, "unmarshal correction original")
		}
	}
	if err := json.Unmarshal(corrected, &c.Corrected); err != nil {
		return c, eris.Wrap(err, "unmarshal correction corrected")
	}
	return c, nil
}

func marshalFields(f *model.GameFields) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal game fields")
	}
	return string(b), nil
}

func (s *sqlStore) CreateCorrection(ctx context.Context, c *model.GameCorrection) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Status == "" {
		c.Status = model.CorrectionPending
	}
	c.ProposedAt = nowFunc()
	original, err := marshalFields(c.Original)
	if err != nil {
		return err
	}
	corrected, err := marshalFields(&c.Corrected)
	if err != nil {
		return err
	}
	_, err = s.ex.exec(ctx,
		`INSERT INTO game_corrections (`+correctionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.GameUID, string(c.Type), original, corrected, string(c.Status), c.Reason, c.ProposedBy,
		c.ProposedAt, c.ApprovedBy, c.ApprovedAt, c.RevertedBy, c.RevertedAt,
	)
	return s.wrap(err, "insert correction")
}

func (s *sqlStore) GetCorrection(ctx context.Context, id string) (*model.GameCorrection, error) {
	c, err := scanCorrection(s.ex.queryRow(ctx, `SELECT `+correctionColumns+` FROM game_corrections WHERE id = $1`, id))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get correction "+id)
	}
	return &c, nil
}

func (s *sqlStore) ListCorrections(ctx context.Context, f CorrectionFilter) ([]model.GameCorrection, error) {
	query := `SELECT ` + correctionColumns + ` FROM game_corrections WHERE 1 = 1`
	var args []any
	if f.GameUID != "" {
		args = append(args, f.GameUID)
		query += fmt.Sprintf(" AND game_uid = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.AfterID != "" {
		args = append(args, f.AfterID)
		query += fmt.Sprintf(" AND id > $%d", len(args))
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.ex.query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(err, "list corrections")
	}
	defer rows.Close()

	var out []model.GameCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, s.wrap(err, "scan correction")
		}
		out = append(out, c)
	}
	return out, s.wrap(rows.Err(), "list corrections")
}

// UpdateCorrection persists the lifecycle columns and original snapshot of c.
func (s *sqlStore) UpdateCorrection(ctx context.Context, c *model.GameCorrection) error {
	original, err := marshalFields(c.Original)
	if err != nil {
		return err
	}
	n, err := s.ex.exec(ctx,
		`UPDATE game_corrections SET status = $1, original = $2, approved_by = $3, approved_at = $4,
		reverted_by = $5, reverted_at = $6 WHERE id = $7`,
		string(c.Status), original, c.ApprovedBy, c.ApprovedAt, c.RevertedBy, c.RevertedAt, c.ID,
	)
	if err != nil {
		return s.wrap(err, "update correction "+c.ID)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
