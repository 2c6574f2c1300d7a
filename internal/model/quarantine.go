package model

import (
	"encoding/json"
	"time"
)

// QuarantineReason is the closed taxonomy of quarantine causes.
type QuarantineReason string

// Quarantine reasons.
const (
	ReasonMissingScore         QuarantineReason = "missing_score"
	ReasonMissingIdentityField QuarantineReason = "missing_identity_field"
	ReasonInvalidDateFormat    QuarantineReason = "invalid_date_format"
	ReasonDuplicate            QuarantineReason = "duplicate"
	ReasonAgeMismatch          QuarantineReason = "age_mismatch"
	ReasonOther                QuarantineReason = "other"
)

// QuarantineReasons lists every reason in taxonomy order.
var QuarantineReasons = []QuarantineReason{
	ReasonMissingScore,
	ReasonMissingIdentityField,
	ReasonInvalidDateFormat,
	ReasonDuplicate,
	ReasonAgeMismatch,
	ReasonOther,
}

// Valid reports whether r is in the taxonomy.
func (r QuarantineReason) Valid() bool {
	for _, q := range QuarantineReasons {
		if r == q {
			return true
		}
	}
	return false
}

// QuarantinedRecord is a row held back instead of being dropped or guessed at.
type QuarantinedRecord struct {
	ID        string           `json:"id" db:"id"`
	BatchID   string           `json:"batch_id,omitempty" db:"batch_id"`
	Reason    QuarantineReason `json:"reason_code" db:"reason_code"`
	Detail    string           `json:"detail,omitempty" db:"detail"`
	Payload   json.RawMessage  `json:"payload" db:"payload"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// QuarantineFilter narrows a quarantine listing.
type QuarantineFilter struct {
	Reason  QuarantineReason
	BatchID string
	AfterID string
	Limit   int
}
