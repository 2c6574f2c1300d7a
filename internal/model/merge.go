package model

import "time"

// MergeStatus is the lifecycle of a MergeRecord.
type MergeStatus string

// Merge statuses.
const (
	MergeProposed MergeStatus = "proposed"
	MergeExecuted MergeStatus = "executed"
	MergeReverted MergeStatus = "reverted"
)

// MergeRecord is the directed edge deprecated -> canonical.
type MergeRecord struct {
	ID            string      `json:"id" db:"id"`
	DeprecatedID  string      `json:"deprecated_id" db:"deprecated_id"`
	CanonicalID   string      `json:"canonical_id" db:"canonical_id"`
	Justification string      `json:"justification" db:"justification"`
	Automatic     bool        `json:"automatic" db:"automatic"`
	Status        MergeStatus `json:"status" db:"status"`
	ProposedBy    string      `json:"proposed_by" db:"proposed_by"`
	ProposedAt    time.Time   `json:"proposed_at" db:"proposed_at"`
	// Preview counts taken at proposal time.
	PreviewAliases int        `json:"preview_aliases" db:"preview_aliases"`
	PreviewGames   int        `json:"preview_games" db:"preview_games"`
	ExecutedBy     string     `json:"executed_by,omitempty" db:"executed_by"`
	ExecutedAt     *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	RevertedBy     string     `json:"reverted_by,omitempty" db:"reverted_by"`
	RevertedAt     *time.Time `json:"reverted_at,omitempty" db:"reverted_at"`
}

// MergeAudit records the rows a merge execution touched.
type MergeAudit struct {
	MergeID           string     `json:"merge_id" db:"merge_id"`
	AliasesMoved      int        `json:"aliases_moved" db:"aliases_moved"`
	GamesMoved        int        `json:"games_moved" db:"games_moved"`
	PointersRewritten int        `json:"pointers_rewritten" db:"pointers_rewritten"`
	ExecutedAt        time.Time  `json:"executed_at" db:"executed_at"`
	RevertedAt        *time.Time `json:"reverted_at,omitempty" db:"reverted_at"`
}

// AuditItemKind identifies what a MergeAuditItem captured.
type AuditItemKind string

// Audit item kinds.
const (
	AuditAlias    AuditItemKind = "alias"
	AuditGameHome AuditItemKind = "game_home"
	AuditGameAway AuditItemKind = "game_away"
	AuditPointer  AuditItemKind = "pointer"
)

// MergeAuditItem is one captured pre-merge value. Ref is an alias id, a
// game_uid or a team id depending on Kind.
type MergeAuditItem struct {
	MergeID  string        `json:"merge_id" db:"merge_id"`
	Kind     AuditItemKind `json:"kind" db:"kind"`
	Ref      string        `json:"ref" db:"ref"`
	OldValue string        `json:"old_value" db:"old_value"`
	NewValue string        `json:"new_value" db:"new_value"`
}
