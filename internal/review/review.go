// Package review lets operators approve or reject queued matches.
package review

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/store"
)

var (
	// ErrNotFound is returned for unknown entry or team ids.
	ErrNotFound = eris.New("review: not found")
	// ErrInvalidState is returned when an entry cannot move to the requested status.
	ErrInvalidState = eris.New("review: invalid state")
	// ErrInvalidDecision is returned for malformed approval requests.
	ErrInvalidDecision = eris.New("review: invalid decision")
)

// DetailRejected is the quarantine detail written on rejection.
const DetailRejected = "review_rejected"

// GameReleaser re-resolves games held on a review entry once it is decided.
type GameReleaser interface {
	ReleaseHeld(ctx context.Context, entryID string) error
}

// Decision approves an entry to an existing master or to a new one.
type Decision struct {
	MasterID string            `json:"master_id,omitempty"`
	NewTeam  *model.MasterTeam `json:"new_team,omitempty"`
	Resolver string            `json:"resolver"`
	Note     string            `json:"note,omitempty"`
}

// Service manages the review queue.
type Service struct {
	store    store.Store
	norm     *normalize.Normalizer
	cfg      config.ReviewConfig
	releaser GameReleaser
	now      func() time.Time
}

// New creates a Service. norm describes records approved as new teams and
// falls back to the default bounds when nil. releaser may be nil.
func New(st store.Store, norm *normalize.Normalizer, cfg config.ReviewConfig, releaser GameReleaser) *Service {
	if norm == nil {
		norm = normalize.New(normalize.DefaultOptions())
	}
	return &Service{
		store:    st,
		norm:     norm,
		cfg:      cfg,
		releaser: releaser,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// List returns entries matching f, pending ones by default.
func (s *Service) List(ctx context.Context, f model.ReviewFilter) ([]model.ReviewQueueEntry, error) {
	entries, err := s.store.ListReviews(ctx, f)
	return entries, eris.Wrap(err, "review: list")
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id string) (*model.ReviewQueueEntry, error) {
	e, err := s.store.GetReview(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "review: get")
	}
	if e == nil {
		return nil, eris.Wrapf(ErrNotFound, "review entry %s", id)
	}
	return e, nil
}

// Approve maps the entry's alias key to the decided master team. Approving
// an approved entry to the same team is a no-op.
func (s *Service) Approve(ctx context.Context, id string, dec Decision) (*model.ReviewQueueEntry, error) {
	log := zap.L().With(zap.String("component", "review"), zap.String("review_id", id))

	if err := dec.validate(); err != nil {
		return nil, err
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch e.Status {
	case model.ReviewApproved:
		if dec.NewTeam == nil && e.ResolvedMasterID != nil && *e.ResolvedMasterID == dec.MasterID {
			return e, nil
		}
		return nil, eris.Wrapf(ErrInvalidState, "entry %s already approved", id)
	case model.ReviewRejected:
		return nil, eris.Wrapf(ErrInvalidState, "entry %s was rejected", id)
	}

	var target string
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		target, err = s.targetTeam(ctx, tx, e, dec)
		if err != nil {
			return err
		}
		if err := s.writeAlias(ctx, tx, e, target); err != nil {
			return err
		}
		ok, err := tx.ResolveReview(ctx, e.ID, model.ReviewApproved, &target, dec.Resolver, dec.Note, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrInvalidState, "entry %s resolved concurrently", id)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: approve")
	}
	log.Info("review approved", zap.String("master_id", target), zap.String("resolver", dec.Resolver))

	if err := s.release(ctx, e.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Reject closes the entry without a mapping and quarantines the record.
// Later resolutions of the same key are quarantined as previously rejected.
func (s *Service) Reject(ctx context.Context, id, resolver, note string) (*model.ReviewQueueEntry, error) {
	if strings.TrimSpace(resolver) == "" {
		return nil, eris.Wrap(ErrInvalidDecision, "resolver is required")
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch e.Status {
	case model.ReviewRejected:
		return e, nil
	case model.ReviewApproved:
		return nil, eris.Wrapf(ErrInvalidState, "entry %s already approved", id)
	}

	payload, err := json.Marshal(e.Record)
	if err != nil {
		return nil, eris.Wrap(err, "review: marshal record")
	}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		ok, err := tx.ResolveReview(ctx, e.ID, model.ReviewRejected, nil, resolver, note, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return eris.Wrapf(ErrInvalidState, "entry %s resolved concurrently", id)
		}
		return tx.AppendQuarantine(ctx, &model.QuarantinedRecord{
			BatchID: e.BatchID,
			Reason:  model.ReasonOther,
			Detail:  DetailRejected,
			Payload: payload,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "review: reject")
	}
	zap.L().Info("review rejected",
		zap.String("component", "review"),
		zap.String("review_id", id),
		zap.String("resolver", resolver),
	)

	if err := s.release(ctx, e.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) release(ctx context.Context, entryID string) error {
	if s.releaser == nil {
		return nil
	}
	return eris.Wrap(s.releaser.ReleaseHeld(ctx, entryID), "review: release held games")
}

func (s *Service) targetTeam(ctx context.Context, tx store.Store, e *model.ReviewQueueEntry, dec Decision) (string, error) {
	if dec.NewTeam != nil {
		t := *dec.NewTeam
		t.ID = ""
		// A mismatch was already ruled out when the entry was queued; keep the
		// name's age if the descriptor still reports one.
		d, _ := matcher.Describe(s.norm, e.Record)
		if t.TeamName == "" {
			t.TeamName = strings.Join(strings.Fields(e.Record.TeamName), " ")
		}
		if t.ClubName == "" {
			t.ClubName = d.Club
		}
		if t.ClubKey == "" {
			t.ClubKey = normalize.ClubKey(t.ClubName)
		}
		if t.Gender == "" {
			t.Gender, _ = model.ParseGender(e.Record.Gender)
		}
		if !t.Gender.Valid() {
			return "", eris.Wrap(ErrInvalidDecision, "new team needs a gender")
		}
		if t.Age == "" {
			t.Age = d.AgeString()
		}
		if t.Region == "" {
			t.Region = strings.ToUpper(strings.TrimSpace(e.Record.State))
		}
		t.Deprecated, t.MergedInto = false, nil
		if err := tx.CreateTeam(ctx, &t); err != nil {
			return "", err
		}
		return t.ID, nil
	}

	team, err := tx.GetTeam(ctx, dec.MasterID)
	if err != nil {
		return "", err
	}
	if team == nil {
		return "", eris.Wrapf(ErrNotFound, "master team %s", dec.MasterID)
	}
	if team.Deprecated {
		return "", eris.Wrapf(ErrInvalidState, "master team %s is deprecated", dec.MasterID)
	}
	return team.ID, nil
}

// writeAlias inserts the manual alias, or swaps an existing one onto target.
func (s *Service) writeAlias(ctx context.Context, tx store.Store, e *model.ReviewQueueEntry, target string) error {
	next := model.TeamAlias{
		Provider:       e.Provider,
		ProviderTeamID: e.AliasKey,
		MasterID:       target,
		Method:         model.MethodManual,
		Confidence:     1,
		Status:         model.ReviewApproved,
	}
	inserted, err := tx.InsertAliasIfAbsent(ctx, &next)
	if err != nil || inserted {
		return err
	}

	cur, err := tx.GetAlias(ctx, e.Provider, e.AliasKey)
	if err != nil {
		return err
	}
	if cur == nil {
		return eris.Wrapf(ErrInvalidState, "alias %s/%s vanished", e.Provider, e.AliasKey)
	}
	swapped, err := tx.CompareAndSetAlias(ctx, e.Provider, e.AliasKey, cur.MasterID, next)
	if err != nil {
		return err
	}
	if !swapped {
		return eris.Wrapf(ErrInvalidState, "alias %s/%s changed concurrently", e.Provider, e.AliasKey)
	}
	return nil
}

func (d Decision) validate() error {
	if strings.TrimSpace(d.Resolver) == "" {
		return eris.Wrap(ErrInvalidDecision, "resolver is required")
	}
	if (d.MasterID == "") == (d.NewTeam == nil) {
		return eris.Wrap(ErrInvalidDecision, "exactly one of master_id or new_team is required")
	}
	return nil
}
