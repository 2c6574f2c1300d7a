package model

import "time"

// FeedSide is one team's columns in an upstream row.
type FeedSide struct {
	ProviderTeamID string `json:"provider_team_id"`
	TeamName       string `json:"team_name"`
	ClubName       string `json:"club_name,omitempty"`
	AgeGroup       string `json:"age_group,omitempty"`
	Gender         string `json:"gender"`
	Division       string `json:"division,omitempty"`
	State          string `json:"state,omitempty"`
}

// FeedRow is one raw game row from ingestion. Team is the home side.
type FeedRow struct {
	Provider  string   `json:"provider"`
	Team      FeedSide `json:"team"`
	Opponent  FeedSide `json:"opponent"`
	GameDate  string   `json:"game_date"`
	HomeScore string   `json:"home_score"`
	AwayScore string   `json:"away_score"`
	Source    string   `json:"source,omitempty"`
	Line      int      `json:"line,omitempty"`
}

// Record returns side as a ProviderTeamRecord of the row's provider.
func (r FeedRow) Record(side FeedSide) ProviderTeamRecord {
	return ProviderTeamRecord{
		Provider:       r.Provider,
		ProviderTeamID: side.ProviderTeamID,
		TeamName:       side.TeamName,
		ClubName:       side.ClubName,
		AgeGroup:       side.AgeGroup,
		Gender:         side.Gender,
		Division:       side.Division,
		State:          side.State,
	}
}

// GameRecord is an imported result between two master teams.
type GameRecord struct {
	GameUID     string    `json:"game_uid" db:"game_uid"`
	Provider    string    `json:"provider" db:"provider"`
	HomeTeamID  string    `json:"home_team_id" db:"home_team_id"`
	AwayTeamID  string    `json:"away_team_id" db:"away_team_id"`
	GameDate    string    `json:"game_date" db:"game_date"`
	HomeScore   int       `json:"home_score" db:"home_score"`
	AwayScore   int       `json:"away_score" db:"away_score"`
	NaturalKey  string    `json:"natural_key" db:"natural_key"`
	Source      string    `json:"source,omitempty" db:"source"`
	BatchID     string    `json:"batch_id,omitempty" db:"batch_id"`
	IsImmutable bool      `json:"is_immutable" db:"is_immutable"`
	UnlockRef   *string   `json:"unlock_ref,omitempty" db:"unlock_ref"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// GameFields is a partial set of correctable game values. Nil fields are untouched.
type GameFields struct {
	HomeTeamID *string `json:"home_team_id,omitempty"`
	AwayTeamID *string `json:"away_team_id,omitempty"`
	GameDate   *string `json:"game_date,omitempty"`
	HomeScore  *int    `json:"home_score,omitempty"`
	AwayScore  *int    `json:"away_score,omitempty"`
}

// Empty reports whether no field is set.
func (f GameFields) Empty() bool {
	return f.HomeTeamID == nil && f.AwayTeamID == nil && f.GameDate == nil &&
		f.HomeScore == nil && f.AwayScore == nil
}

// Snapshot captures g's current values for the fields set in f.
func (f GameFields) Snapshot(g *GameRecord) GameFields {
	var s GameFields
	if f.HomeTeamID != nil {
		s.HomeTeamID = ptr(g.HomeTeamID)
	}
	if f.AwayTeamID != nil {
		s.AwayTeamID = ptr(g.AwayTeamID)
	}
	if f.GameDate != nil {
		s.GameDate = ptr(g.GameDate)
	}
	if f.HomeScore != nil {
		s.HomeScore = ptr(g.HomeScore)
	}
	if f.AwayScore != nil {
		s.AwayScore = ptr(g.AwayScore)
	}
	return s
}

// ApplyTo writes the set fields onto g.
func (f GameFields) ApplyTo(g *GameRecord) {
	if f.HomeTeamID != nil {
		g.HomeTeamID = *f.HomeTeamID
	}
	if f.AwayTeamID != nil {
		g.AwayTeamID = *f.AwayTeamID
	}
	if f.GameDate != nil {
		g.GameDate = *f.GameDate
	}
	if f.HomeScore != nil {
		g.HomeScore = *f.HomeScore
	}
	if f.AwayScore != nil {
		g.AwayScore = *f.AwayScore
	}
}

// MatchedBy reports whether every set field already equals g's value.
func (f GameFields) MatchedBy(g *GameRecord) bool {
	if f.HomeTeamID != nil && *f.HomeTeamID != g.HomeTeamID {
		return false
	}
	if f.AwayTeamID != nil && *f.AwayTeamID != g.AwayTeamID {
		return false
	}
	if f.GameDate != nil && *f.GameDate != g.GameDate {
		return false
	}
	if f.HomeScore != nil && *f.HomeScore != g.HomeScore {
		return false
	}
	if f.AwayScore != nil && *f.AwayScore != g.AwayScore {
		return false
	}
	return true
}

func ptr[T any](v T) *T { return &v }

// GameFilter narrows the downstream game graph query. Age and Gender match
// the home team.
type GameFilter struct {
	Age           string
	Gender        Gender
	Region        string
	TeamID        string
	FinalizedOnly bool
	AfterUID      string
	Limit         int
}

// HeldGame is a valid row waiting on review of one or both sides.
type HeldGame struct {
	ID           string    `json:"id" db:"id"`
	BatchID      string    `json:"batch_id" db:"batch_id"`
	// GameUID is the uid the row imports under; one hold per uid.
	GameUID      string    `json:"game_uid" db:"game_uid"`
	Row          FeedRow   `json:"row" db:"row"`
	HomeReviewID *string   `json:"home_review_id,omitempty" db:"home_review_id"`
	AwayReviewID *string   `json:"away_review_id,omitempty" db:"away_review_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
