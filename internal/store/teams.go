package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/teamresolve/internal/model"
)

func (s *sqlStore) UpsertProvider(ctx context.Context, p model.Provider) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = nowFunc()
	}
	_, err := s.ex.exec(ctx,
		`INSERT INTO providers (code, name, reuses_club_ids, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO UPDATE SET name = excluded.name, reuses_club_ids = excluded.reuses_club_ids`,
		p.Code, p.Name, p.ReusesClubIDs, p.CreatedAt,
	)
	return s.wrap(err, "upsert provider "+p.Code)
}

func (s *sqlStore) GetProvider(ctx context.Context, code string) (*model.Provider, error) {
	var p model.Provider
	err := s.ex.queryRow(ctx,
		`SELECT code, name, reuses_club_ids, created_at FROM providers WHERE code = $1`, code,
	).Scan(&p.Code, &p.Name, &p.ReusesClubIDs, &p.CreatedAt)
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get provider "+code)
	}
	return &p, nil
}

func (s *sqlStore) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := s.ex.query(ctx, `SELECT code, name, reuses_club_ids, created_at FROM providers ORDER BY code`)
	if err != nil {
		return nil, s.wrap(err, "list providers")
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.Code, &p.Name, &p.ReusesClubIDs, &p.CreatedAt); err != nil {
			return nil, s.wrap(err, "scan provider")
		}
		out = append(out, p)
	}
	return out, s.wrap(rows.Err(), "list providers")
}

const teamColumns = `id, team_name, club_name, club_key, age, gender, region, deprecated, merged_into, created_at, updated_at`

func scanTeam(r rowScanner) (model.MasterTeam, error) {
	var t model.MasterTeam
	err := r.Scan(&t.ID, &t.TeamName, &t.ClubName, &t.ClubKey, &t.Age, &t.Gender, &t.Region,
		&t.Deprecated, &t.MergedInto, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (s *sqlStore) queryTeams(ctx context.Context, action, q string, args ...any) ([]model.MasterTeam, error) {
	rows, err := s.ex.query(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err, action)
	}
	defer rows.Close()

	var out []model.MasterTeam
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, s.wrap(err, "scan team")
		}
		out = append(out, t)
	}
	return out, s.wrap(rows.Err(), action)
}

// CreateTeam inserts t, assigning an id and timestamps when unset.
func (s *sqlStore) CreateTeam(ctx context.Context, t *model.MasterTeam) error {
	if t.ID == "" {
		t.ID = newID()
	}
	now := nowFunc()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	_, err := s.ex.exec(ctx,
		`INSERT INTO master_teams (`+teamColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.TeamName, t.ClubName, t.ClubKey, t.Age, string(t.Gender), t.Region,
		t.Deprecated, t.MergedInto, t.CreatedAt, t.UpdatedAt,
	)
	return s.wrap(err, "insert team")
}

func (s *sqlStore) GetTeam(ctx context.Context, id string) (*model.MasterTeam, error) {
	t, err := scanTeam(s.ex.queryRow(ctx, `SELECT `+teamColumns+` FROM master_teams WHERE id = $1`, id))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get team "+id)
	}
	return &t, nil
}

// ListCandidates returns live teams in the query's gender and age block.
func (s *sqlStore) ListCandidates(ctx context.Context, q CandidateQuery) ([]model.MasterTeam, error) {
	query := `SELECT ` + teamColumns + ` FROM master_teams WHERE deprecated = FALSE AND gender = $1`
	args := []any{string(q.Gender)}

	var ageConds []string
	if len(q.Ages) > 0 {
		ageConds = append(ageConds, fmt.Sprintf("age IN (%s)", placeholders(len(args)+1, len(q.Ages))))
		for _, a := range q.Ages {
			args = append(args, a)
		}
	}
	if q.IncludeUnknownAge {
		ageConds = append(ageConds, "age = ''")
	}
	if len(ageConds) > 0 {
		query += " AND (" + strings.Join(ageConds, " OR ") + ")"
	}
	if q.ClubPrefix != "" {
		args = append(args, likePrefix(q.ClubPrefix))
		query += fmt.Sprintf(" AND club_key LIKE $%d", len(args))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY club_key, id LIMIT $%d", len(args))

	return s.queryTeams(ctx, "list candidates", query, args...)
}

// ListTeams pages through master teams in id order.
func (s *sqlStore) ListTeams(ctx context.Context, f model.TeamFilter) ([]model.MasterTeam, error) {
	query := `SELECT ` + teamColumns + ` FROM master_teams WHERE 1 = 1`
	var args []any

	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}
	if !f.IncludeDeprecated {
		query += " AND deprecated = FALSE"
	}
	if f.Age != "" {
		add("age = $%d", f.Age)
	}
	if f.Gender != "" {
		add("gender = $%d", string(f.Gender))
	}
	if f.Region != "" {
		add("region = $%d", f.Region)
	}
	if f.AfterID != "" {
		add("id > $%d", f.AfterID)
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	return s.queryTeams(ctx, "list teams", query, args...)
}

func (s *sqlStore) ListTeamsMergedInto(ctx context.Context, id string) ([]model.MasterTeam, error) {
	return s.queryTeams(ctx, "list teams merged into "+id,
		`SELECT `+teamColumns+` FROM master_teams WHERE merged_into = $1 ORDER BY id`, id)
}

// DeprecateTeam marks a live team as merged into canonicalID.
func (s *sqlStore) DeprecateTeam(ctx context.Context, id, canonicalID string) error {
	n, err := s.ex.exec(ctx,
		`UPDATE master_teams SET deprecated = TRUE, merged_into = $1, updated_at = $2 WHERE id = $3 AND deprecated = FALSE`,
		canonicalID, nowFunc(), id,
	)
	if err != nil {
		return s.wrap(err, "deprecate team "+id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreTeam clears the deprecation of a merged team.
func (s *sqlStore) RestoreTeam(ctx context.Context, id string) error {
	n, err := s.ex.exec(ctx,
		`UPDATE master_teams SET deprecated = FALSE, merged_into = NULL, updated_at = $1 WHERE id = $2 AND deprecated = TRUE`,
		nowFunc(), id,
	)
	if err != nil {
		return s.wrap(err, "restore team "+id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMergedInto repoints an already deprecated team.
func (s *sqlStore) SetMergedInto(ctx context.Context, id, target string) error {
	n, err := s.ex.exec(ctx,
		`UPDATE master_teams SET merged_into = $1, updated_at = $2 WHERE id = $3 AND deprecated = TRUE`,
		target, nowFunc(), id,
	)
	if err != nil {
		return s.wrap(err, "set merged_into "+id)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func likePrefix(p string) string {
	r := strings.NewReplacer(`%`, ``, `_`, ``)
	return r.Replace(p) + "%"
}
