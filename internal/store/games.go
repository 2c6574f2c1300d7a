package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

const gameColumns = `game_uid, provider, home_team_id, away_team_id, game_date, home_score, away_score,
	natural_key, source, batch_id, is_immutable, unlock_ref, created_at, updated_at`

func scanGame(r rowScanner) (model.GameRecord, error) {
	var g model.GameRecord
	err := r.Scan(&g.GameUID, &g.Provider, &g.HomeTeamID, &g.AwayTeamID, &g.GameDate, &g.HomeScore,
		&g.AwayScore, &g.NaturalKey, &g.Source, &g.BatchID, &g.IsImmutable, &g.UnlockRef,
		&g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (s *sqlStore) queryGames(ctx context.Context, action, q string, args ...any) ([]model.GameRecord, error) {
	rows, err := s.ex.query(ctx, q, args...)
	if err != nil {
		return nil, s.wrap(err, action)
	}
	defer rows.Close()

	var out []model.GameRecord
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, s.wrap(err, "scan game")
		}
		out = append(out, g)
	}
	return out, s.wrap(rows.Err(), action)
}

// InsertGameIfAbsent writes g unless its game_uid exists. It reports whether
// this call created the row.
func (s *sqlStore) InsertGameIfAbsent(ctx context.Context, g *model.GameRecord) (bool, error) {
	now := nowFunc()
	g.CreatedAt, g.UpdatedAt = now, now
	g.UnlockRef = nil
	n, err := s.ex.exec(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (game_uid) DO NOTHING`,
		g.GameUID, g.Provider, g.HomeTeamID, g.AwayTeamID, g.GameDate, g.HomeScore, g.AwayScore,
		g.NaturalKey, g.Source, g.BatchID, g.IsImmutable, g.UnlockRef, g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return false, s.wrap(err, "insert game")
	}
	return n == 1, nil
}

func (s *sqlStore) GetGame(ctx context.Context, uid string) (*model.GameRecord, error) {
	g, err := scanGame(s.ex.queryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE game_uid = $1`, uid))
	found, err := one(err)
	if err != nil || !found {
		return nil, s.wrap(err, "get game "+uid)
	}
	return &g, nil
}

func (s *sqlStore) FindGamesByNaturalKey(ctx context.Context, key string) ([]model.GameRecord, error) {
	return s.queryGames(ctx, "find games by natural key",
		`SELECT `+gameColumns+` FROM games WHERE natural_key = $1 ORDER BY game_uid`, key)
}

// ListGamesByTeam pages through games with teamID on either side.
func (s *sqlStore) ListGamesByTeam(ctx context.Context, teamID, afterUID string, limit int) ([]model.GameRecord, error) {
	return s.queryGames(ctx, "list games by team",
		`SELECT `+gameColumns+` FROM games WHERE (home_team_id = $1 OR away_team_id = $1) AND game_uid > $2
		ORDER BY game_uid LIMIT $3`,
		teamID, afterUID, listLimit(limit))
}

func (s *sqlStore) CountGamesByTeam(ctx context.Context, teamID string) (int, error) {
	var n int
	err := s.ex.queryRow(ctx,
		`SELECT COUNT(*) FROM games WHERE home_team_id = $1 OR away_team_id = $1`, teamID,
	).Scan(&n)
	return n, s.wrap(err, "count games")
}

// ListGames is the downstream graph query. Age, gender and region filter on
// the home side's master team.
func (s *sqlStore) ListGames(ctx context.Context, f model.GameFilter) ([]model.GameRecord, error) {
	cols := make([]string, 0, 14)
	for _, c := range strings.Split(gameColumns, ",") {
		cols = append(cols, "g."+strings.TrimSpace(c))
	}
	query := `SELECT ` + strings.Join(cols, ", ") + ` FROM games g JOIN master_teams h ON h.id = g.home_team_id WHERE 1 = 1`
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+cond, len(args))
	}
	if f.Age != "" {
		add("h.age = $%d", f.Age)
	}
	if f.Gender != "" {
		add("h.gender = $%d", string(f.Gender))
	}
	if f.Region != "" {
		add("h.region = $%d", f.Region)
	}
	if f.TeamID != "" {
		args = append(args, f.TeamID)
		query += fmt.Sprintf(" AND (g.home_team_id = $%d OR g.away_team_id = $%d)", len(args), len(args))
	}
	if f.FinalizedOnly {
		query += " AND g.is_immutable = TRUE"
	}
	if f.AfterUID != "" {
		add("g.game_uid > $%d", f.AfterUID)
	}
	args = append(args, listLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY g.game_uid LIMIT $%d", len(args))

	return s.queryGames(ctx, "list games", query, args...)
}

// UnlockGame opens a finalized game for one audited write. The database
// rejects refs that do not name an open correction or merge.
func (s *sqlStore) UnlockGame(ctx context.Context, uid, ref string) error {
	n, err := s.ex.exec(ctx,
		`UPDATE games SET is_immutable = FALSE, unlock_ref = $1, updated_at = $2 WHERE game_uid = $3`,
		ref, nowFunc(), uid,
	)
	if err != nil {
		return s.wrap(err, "unlock game "+uid)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateGameFields writes the set fields of f to an unlocked game.
func (s *sqlStore) UpdateGameFields(ctx context.Context, uid string, f model.GameFields) error {
	if f.Empty() {
		return nil
	}
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.HomeTeamID != nil {
		set("home_team_id", *f.HomeTeamID)
	}
	if f.AwayTeamID != nil {
		set("away_team_id", *f.AwayTeamID)
	}
	if f.GameDate != nil {
		set("game_date", *f.GameDate)
	}
	if f.HomeScore != nil {
		set("home_score", *f.HomeScore)
	}
	if f.AwayScore != nil {
		set("away_score", *f.AwayScore)
	}
	set("updated_at", nowFunc())
	args = append(args, uid)

	n, err := s.ex.exec(ctx, fmt.Sprintf(
		`UPDATE games SET %s WHERE game_uid = $%d AND is_immutable = FALSE`,
		strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return s.wrap(err, "update game "+uid)
	}
	if n == 1 {
		return nil
	}

	g, err := s.GetGame(ctx, uid)
	if err != nil {
		return err
	}
	if g == nil {
		return ErrNotFound
	}
	return eris.Wrapf(ErrGameImmutable, "update game %s", uid)
}

func (s *sqlStore) RelockGame(ctx context.Context, uid string) error {
	n, err := s.ex.exec(ctx,
		`UPDATE games SET is_immutable = TRUE, unlock_ref = NULL, updated_at = $1 WHERE game_uid = $2`,
		nowFunc(), uid,
	)
	if err != nil {
		return s.wrap(err, "relock game "+uid)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const heldColumns = `id, batch_id, game_uid, payload, home_review_id, away_review_id, created_at`

// InsertHeldGameIfAbsent holds h unless a hold for its game uid exists.
func (s *sqlStore) InsertHeldGameIfAbsent(ctx context.Context, h *model.HeldGame) (bool, error) {
	if h.GameUID == "" {
		return false, eris.New("store: held game needs a game uid")
	}
	if h.ID == "" {
		h.ID = newID()
	}
	h.CreatedAt = nowFunc()
	payload, err := json.Marshal(h.Row)
	if err != nil {
		return false, eris.Wrap(err, "store: marshal held row")
	}
	n, err := s.ex.exec(ctx,
		`INSERT INTO held_games (`+heldColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_uid) DO NOTHING`,
		h.ID, h.BatchID, h.GameUID, string(payload), h.HomeReviewID, h.AwayReviewID, h.CreatedAt,
	)
	if err != nil {
		return false, s.wrap(err, "insert held game")
	}
	return n > 0, nil
}

func (s *sqlStore) ListHeldGamesByReview(ctx context.Context, reviewID string) ([]model.HeldGame, error) {
	rows, err := s.ex.query(ctx,
		`SELECT `+heldColumns+` FROM held_games WHERE home_review_id = $1 OR away_review_id = $1 ORDER BY id`,
		reviewID,
	)
	if err != nil {
		return nil, s.wrap(err, "list held games")
	}
	defer rows.Close()

	var out []model.HeldGame
	for rows.Next() {
		var h model.HeldGame
		var payload []byte
		if err := rows.Scan(&h.ID, &h.BatchID, &h.GameUID, &payload, &h.HomeReviewID, &h.AwayReviewID, &h.CreatedAt); err != nil {
			return nil, s.wrap(err, "scan held game")
		}
		if err := json.Unmarshal(payload, &h.Row); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal held row")
		}
		out = append(out, h)
	}
	return out, s.wrap(rows.Err(), "list held games")
}

func (s *sqlStore) DeleteHeldGame(ctx context.Context, id string) error {
	_, err := s.ex.exec(ctx, `DELETE FROM held_games WHERE id = $1`, id)
	return s.wrap(err, "delete held game "+id)
}
