// Package model defines the team identity, game, review and audit types shared by every package.
package model

import (
	"strings"
	"time"
)

// Gender is the normalized team gender.
type Gender string

// Gender values.
const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// ParseGender maps provider spellings onto a Gender. The second return is
// false for empty or unrecognized input.
func ParseGender(s string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "boys", "boy", "b", "men":
		return GenderMale, true
	case "f", "female", "girls", "girl", "g", "women":
		return GenderFemale, true
	}
	return "", false
}

// MatchMethod records how an alias was established.
type MatchMethod string

// Match methods.
const (
	MethodDirectID    MatchMethod = "direct_id"
	MethodAliasSuffix MatchMethod = "alias_suffix"
	MethodFuzzyAuto   MatchMethod = "fuzzy_auto"
	MethodManual      MatchMethod = "manual"
)

// Valid reports whether m is a known match method.
func (m MatchMethod) Valid() bool {
	switch m {
	case MethodDirectID, MethodAliasSuffix, MethodFuzzyAuto, MethodManual:
		return true
	}
	return false
}

// ReviewStatus is shared by aliases and review queue entries.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// Valid reports whether s is a known review status.
func (s ReviewStatus) Valid() bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewRejected
}

// Provider is an external data source with its own team identifiers.
type Provider struct {
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
	// ReusesClubIDs marks providers that assign one id to every age and
	// division split of a club.
	ReusesClubIDs bool      `json:"reuses_club_ids" db:"reuses_club_ids"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ProviderTeamRecord is one side of an incoming feed row. It is never persisted as-is.
type ProviderTeamRecord struct {
	Provider       string `json:"provider"`
	ProviderTeamID string `json:"provider_team_id"`
	TeamName       string `json:"team_name"`
	ClubName       string `json:"club_name,omitempty"`
	AgeGroup       string `json:"age_group,omitempty"`
	Gender         string `json:"gender"`
	Division       string `json:"division,omitempty"`
	State          string `json:"state,omitempty"`
}

// MasterTeam is the canonical, provider-independent team.
type MasterTeam struct {
	ID         string    `json:"id" db:"id"`
	TeamName   string    `json:"team_name" db:"team_name"`
	ClubName   string    `json:"club_name" db:"club_name"`
	ClubKey    string    `json:"club_key" db:"club_key"`
	Age        string    `json:"age,omitempty" db:"age"`
	Gender     Gender    `json:"gender" db:"gender"`
	Region     string    `json:"region,omitempty" db:"region"`
	Deprecated bool      `json:"deprecated" db:"deprecated"`
	MergedInto *string   `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TeamAlias maps a provider's team id onto a master team.
type TeamAlias struct {
	ID             string       `json:"id" db:"id"`
	Provider       string       `json:"provider" db:"provider"`
	ProviderTeamID string       `json:"provider_team_id" db:"provider_team_id"`
	MasterID       string       `json:"master_id" db:"master_id"`
	Method         MatchMethod  `json:"match_method" db:"match_method"`
	Confidence     float64      `json:"confidence" db:"confidence"`
	Status         ReviewStatus `json:"review_status" db:"review_status"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// Usable reports whether the alias may resolve a record without review.
func (a *TeamAlias) Usable() bool {
	return a != nil && a.Status == ReviewApproved
}

// TeamFilter narrows the downstream team graph query.
type TeamFilter struct {
	Age               string
	Gender            Gender
	Region            string
	IncludeDeprecated bool
	AfterID           string
	Limit             int
}
