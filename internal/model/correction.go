package model

import "time"

// CorrectionStatus is the lifecycle of a GameCorrection.
type CorrectionStatus string

// Correction statuses.
const (
	CorrectionPending  CorrectionStatus = "pending"
	CorrectionApproved CorrectionStatus = "approved"
	CorrectionRejected CorrectionStatus = "rejected"
	CorrectionReverted CorrectionStatus = "reverted"
)

// CorrectionType classifies which fields a correction touches.
type CorrectionType string

// Correction types.
const (
	CorrectionScore CorrectionType = "score"
	CorrectionDate  CorrectionType = "date"
	CorrectionTeam  CorrectionType = "team"
	CorrectionMulti CorrectionType = "multi"
)

// Valid reports whether t is a known correction type.
func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionScore, CorrectionDate, CorrectionTeam, CorrectionMulti:
		return true
	}
	return false
}

// InferCorrectionType picks the narrowest type covering f.
func InferCorrectionType(f GameFields) CorrectionType {
	var kinds []CorrectionType
	if f.HomeScore != nil || f.AwayScore != nil {
		kinds = append(kinds, CorrectionScore)
	}
	if f.GameDate != nil {
		kinds = append(kinds, CorrectionDate)
	}
	if f.HomeTeamID != nil || f.AwayTeamID != nil {
		kinds = append(kinds, CorrectionTeam)
	}
	if len(kinds) == 1 {
		return kinds[0]
	}
	return CorrectionMulti
}

// GameCorrection is a proposed edit to an otherwise immutable game.
type GameCorrection struct {
	ID         string           `json:"id" db:"id"`
	GameUID    string           `json:"game_uid" db:"game_uid"`
	Type       CorrectionType   `json:"correction_type" db:"correction_type"`
	Original   *GameFields      `json:"original,omitempty" db:"original"`
	Corrected  GameFields       `json:"corrected" db:"corrected"`
	Status     CorrectionStatus `json:"status" db:"status"`
	Reason     string           `json:"reason,omitempty" db:"reason"`
	ProposedBy string           `json:"proposed_by" db:"proposed_by"`
	ProposedAt time.Time        `json:"proposed_at" db:"proposed_at"`
	ApprovedBy string           `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt *time.Time       `json:"approved_at,omitempty" db:"approved_at"`
	RevertedBy string           `json:"reverted_by,omitempty" db:"reverted_by"`
	RevertedAt *time.Time       `json:"reverted_at,omitempty" db:"reverted_at"`
}
