package store

import (
	"context"
	"fmt"

	"github.com/sells-group/teamresolve/internal/model"
)

const aliasColumns = `id, provider, provider_team_id, master_id, match_method, confidence, review_status, created_at, updated_at`

func scanAlias(r rowScanner) (model.TeamAlias, error) {
	var a model.TeamAlias
	err := r.Scan(&a.ID, &a.Provider, &a.ProviderTeamID, &a.MasterID, &a.Method, &a.Confidence,
		&a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (s *sqlStore) GetAlias(ctx context.Context, provider, providerTeamID string) (*model.TeamAlias, error) {
	a, err := scanAlias(s.ex.queryRow(ctx,
		`SELECT `+aliasColumns+` FROM team_aliases WHERE provider = $1 AND provider_team_id = $2`,
		provider, providerTeamID,
	))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get alias "+provider+"/"+providerTeamID)
	}
	return &a, nil
}

// InsertAliasIfAbsent writes a only if no alias holds its key yet. It reports
// whether this call created the row.
func (s *sqlStore) InsertAliasIfAbsent(ctx context.Context, a *model.TeamAlias) (bool, error) {
	if a.ID == "" {
		a.ID = newID()
	}
	now := nowFunc()
	a.CreatedAt, a.UpdatedAt = now, now
	n, err := s.ex.exec(ctx,
		`INSERT INTO team_aliases (`+aliasColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, provider_team_id) DO NOTHING`,
		a.ID, a.Provider, a.ProviderTeamID, a.MasterID, string(a.Method), a.Confidence,
		string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return false, s.wrap(err, "insert alias")
	}
	return n == 1, nil
}

// CompareAndSetAlias replaces the mapping of a key only while it still points
// at expectedMaster.
func (s *sqlStore) CompareAndSetAlias(ctx context.Context, provider, providerTeamID, expectedMaster string, next model.TeamAlias) (bool, error) {
	n, err := s.ex.exec(ctx,
		`UPDATE team_aliases SET master_id = $1, match_method = $2, confidence = $3, review_status = $4, updated_at = $5
		WHERE provider = $6 AND provider_team_id = $7 AND master_id = $8`,
		next.MasterID, string(next.Method), next.Confidence, string(next.Status), nowFunc(),
		provider, providerTeamID, expectedMaster,
	)
	if err != nil {
		return false, s.wrap(err, "cas alias "+provider+"/"+providerTeamID)
	}
	return n == 1, nil
}

// CompareAndSetAliasMaster moves one alias between masters, leaving method and
// status as they are.
func (s *sqlStore) CompareAndSetAliasMaster(ctx context.Context, aliasID, fromMaster, toMaster string) (bool, error) {
	n, err := s.ex.exec(ctx,
		`UPDATE team_aliases SET master_id = $1, updated_at = $2 WHERE id = $3 AND master_id = $4`,
		toMaster, nowFunc(), aliasID, fromMaster,
	)
	if err != nil {
		return false, s.wrap(err, "repoint alias "+aliasID)
	}
	return n == 1, nil
}

func (s *sqlStore) ListAliasesByMaster(ctx context.Context, masterID, afterID string, limit int) ([]model.TeamAlias, error) {
	rows, err := s.ex.query(ctx,
		`SELECT `+aliasColumns+` FROM team_aliases WHERE master_id = $1 AND id > $2 ORDER BY id LIMIT $3`,
		masterID, afterID, listLimit(limit),
	)
	if err != nil {
		return nil, s.wrap(err, "list aliases")
	}
	defer rows.Close()

	var out []model.TeamAlias
	for rows.Next() {
		a, err := scanAlias(rows)
		if err != nil {
			return nil, s.wrap(err, "scan alias")
		}
		out = append(out, a)
	}
	return out, s.wrap(rows.Err(), "list aliases")
}

func (s *sqlStore) CountAliasesByMaster(ctx context.Context, masterID string) (int, error) {
	var n int
	err := s.ex.queryRow(ctx, `SELECT COUNT(*) FROM team_aliases WHERE master_id = $1`, masterID).Scan(&n)
	return n, s.wrap(err, "count aliases")
}

// ProviderClubKeys reports which of clubKeys already have an approved alias
// from provider pointing at a master of that club.
func (s *sqlStore) ProviderClubKeys(ctx context.Context, provider string, clubKeys []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(clubKeys) == 0 {
		return out, nil
	}
	args := []any{provider, string(model.ReviewApproved)}
	for _, k := range clubKeys {
		args = append(args, k)
	}
	rows, err := s.ex.query(ctx, fmt.Sprintf(
		`SELECT DISTINCT m.club_key FROM team_aliases a JOIN master_teams m ON m.id = a.master_id
		WHERE a.provider = $1 AND a.review_status = $2 AND m.club_key IN (%s)`,
		placeholders(3, len(clubKeys))), args...)
	if err != nil {
		return nil, s.wrap(err, "provider club keys")
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, s.wrap(err, "scan club key")
		}
		out[k] = true
	}
	return out, s.wrap(rows.Err(), "provider club keys")
}
