package model

import "time"

// ScoreComponent is one weighted input to a confidence score.
type ScoreComponent struct {
	Name         string  `json:"name"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// ScoreBreakdown explains a confidence score.
type ScoreBreakdown struct {
	Total          float64          `json:"total"`
	Components     []ScoreComponent `json:"components"`
	ExactAgreement bool             `json:"exact_agreement"`
	Missing        []string         `json:"missing,omitempty"`
}

// Candidate is a ranked master team suggestion for a review entry.
type Candidate struct {
	MasterID  string         `json:"master_id"`
	TeamName  string         `json:"team_name"`
	ClubName  string         `json:"club_name"`
	Age       string         `json:"age,omitempty"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// ReviewQueueEntry holds an ambiguous match for human adjudication.
type ReviewQueueEntry struct {
	ID               string             `json:"id" db:"id"`
	BatchID          string             `json:"batch_id,omitempty" db:"batch_id"`
	Provider         string             `json:"provider" db:"provider"`
	AliasKey         string             `json:"alias_key" db:"alias_key"`
	Record           ProviderTeamRecord `json:"record" db:"record"`
	Candidates       []Candidate        `json:"candidates" db:"candidates"`
	TopScore         float64            `json:"top_score" db:"top_score"`
	Status           ReviewStatus       `json:"status" db:"status"`
	ResolvedMasterID *string            `json:"resolved_master_id,omitempty" db:"resolved_master_id"`
	Resolver         string             `json:"resolver,omitempty" db:"resolver"`
	ResolutionNote   string             `json:"resolution_note,omitempty" db:"resolution_note"`
	ResolvedAt       *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
}

// Top returns the highest-ranked candidate, or nil.
func (e *ReviewQueueEntry) Top() *Candidate {
	if len(e.Candidates) == 0 {
		return nil
	}
	return &e.Candidates[0]
}

// ReviewFilter narrows a review queue listing.
type ReviewFilter struct {
	Status   ReviewStatus
	Provider string
	BatchID  string
	AfterID  string
	Limit    int
}
