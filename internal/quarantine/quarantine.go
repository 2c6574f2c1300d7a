// Package quarantine holds rows that failed validation or resolution, keyed by
// a closed reason taxonomy, until an operator deals with them.
package quarantine

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

var (
	// ErrInvalidReason is returned for reason codes outside the taxonomy.
	ErrInvalidReason = eris.New("quarantine: invalid reason")
	// ErrNotFound is returned when deleting an unknown record.
	ErrNotFound = eris.New("quarantine: not found")
)

// ParseReason maps a reason code onto the taxonomy.
func ParseReason(s string) (model.QuarantineReason, error) {
	r := model.QuarantineReason(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", eris.Wrapf(ErrInvalidReason, "%q", s)
	}
	return r, nil
}

// Filter narrows a listing.
type Filter struct {
	Reason  model.QuarantineReason
	BatchID string
	AfterID string
	Limit   int
}

// ReasonCount is one row of Counts.
type ReasonCount struct {
	Reason model.QuarantineReason `json:"reason_code"`
	Count  int                    `json:"count"`
}

// Counts aggregates a batch (or everything) by reason.
type Counts struct {
	BatchID  string                         `json:"batch_id,omitempty"`
	ByReason map[model.QuarantineReason]int `json:"by_reason"`
	// Ranked lists reasons with at least one record, most common first.
	Ranked []ReasonCount `json:"ranked"`
	Total  int           `json:"total"`
}

// Service appends, queries and deletes quarantined records.
type Service struct {
	store store.Store
}

// New creates a Service over st.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Append quarantines payload under reason. Payloads that are not already
// JSON are marshaled.
func (s *Service) Append(ctx context.Context, batchID string, reason model.QuarantineReason, detail string, payload any) (*model.QuarantinedRecord, error) {
	if !reason.Valid() {
		return nil, eris.Wrapf(ErrInvalidReason, "%q", reason)
	}
	raw, err := encode(payload)
	if err != nil {
		return nil, err
	}
	r := &model.QuarantinedRecord{BatchID: batchID, Reason: reason, Detail: detail, Payload: raw}
	if err := s.store.AppendQuarantine(ctx, r); err != nil {
		return nil, eris.Wrap(err, "quarantine: append")
	}
	zap.L().Debug("row quarantined",
		zap.String("component", "quarantine"),
		zap.String("batch_id", batchID),
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
	)
	return r, nil
}

// AppendBatch writes rs in one round trip.
func (s *Service) AppendBatch(ctx context.Context, rs []model.QuarantinedRecord) (int64, error) {
	for _, r := range rs {
		if !r.Reason.Valid() {
			return 0, eris.Wrapf(ErrInvalidReason, "%q", r.Reason)
		}
	}
	n, err := s.store.AppendQuarantineBatch(ctx, rs)
	return n, eris.Wrap(err, "quarantine: append batch")
}

// List returns records matching f in insertion order.
func (s *Service) List(ctx context.Context, f Filter) ([]model.QuarantinedRecord, error) {
	if f.Reason != "" && !f.Reason.Valid() {
		return nil, eris.Wrapf(ErrInvalidReason, "%q", f.Reason)
	}
	out, err := s.store.ListQuarantine(ctx, model.QuarantineFilter{
		Reason: f.Reason, BatchID: f.BatchID, AfterID: f.AfterID, Limit: f.Limit,
	})
	return out, eris.Wrap(err, "quarantine: list")
}

// Counts aggregates records by reason. An empty batchID counts everything.
func (s *Service) Counts(ctx context.Context, batchID string) (Counts, error) {
	by, err := s.store.CountQuarantineByReason(ctx, batchID)
	if err != nil {
		return Counts{}, eris.Wrap(err, "quarantine: counts")
	}
	return rank(batchID, by), nil
}

// Delete removes a record. Only operators call this.
func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.store.DeleteQuarantine(ctx, id)
	if err != nil {
		return eris.Wrap(err, "quarantine: delete")
	}
	if !ok {
		return eris.Wrapf(ErrNotFound, "record %s", id)
	}
	zap.L().Info("quarantine record deleted", zap.String("component", "quarantine"), zap.String("id", id))
	return nil
}

func rank(batchID string, by map[model.QuarantineReason]int) Counts {
	c := Counts{BatchID: batchID, ByReason: make(map[model.QuarantineReason]int, len(model.QuarantineReasons))}
	for _, r := range model.QuarantineReasons {
		n := by[r]
		c.ByReason[r] = n
		c.Total += n
		if n > 0 {
			c.Ranked = append(c.Ranked, ReasonCount{Reason: r, Count: n})
		}
	}
	// Stable keeps taxonomy order among equal counts.
	sort.SliceStable(c.Ranked, func(i, j int) bool { return c.Ranked[i].Count > c.Ranked[j].Count })
	return c
}

func encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if json.Valid(p) {
			return p, nil
		}
	case []byte:
		if json.Valid(p) {
			return json.RawMessage(p), nil
		}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "quarantine: marshal payload")
	}
	return b, nil
}
