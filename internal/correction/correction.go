// Package correction keeps the ledger of edits to finalized games. Every
// change is proposed first, applied under an unlock reference, and can be
// reverted to the captured original.
package correction

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

var (
	// ErrNotFound is returned for unknown corrections, games or teams.
	ErrNotFound = eris.New("correction: not found")
	// ErrInvalidState is returned when a correction cannot move to the requested status.
	ErrInvalidState = eris.New("correction: invalid state")
	// ErrInvalidProposal is returned for corrections that change nothing or
	// reference unusable teams.
	ErrInvalidProposal = eris.New("correction: invalid proposal")
)

// UnlockRef is the unlock_ref a correction writes on its game.
func UnlockRef(id string) string { return "correction:" + id }

// Proposal asks to change fields of one game.
type Proposal struct {
	GameUID    string               `json:"game_uid"`
	Type       model.CorrectionType `json:"correction_type,omitempty"`
	Corrected  model.GameFields     `json:"corrected"`
	ProposedBy string               `json:"proposed_by"`
	Reason     string               `json:"reason,omitempty"`
}

// Ledger proposes, applies and reverts game corrections.
type Ledger struct {
	store store.Store
	now   func() time.Time
}

// New creates a Ledger over st.
func New(st store.Store) *Ledger {
	return &Ledger{
		store: st,
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Get returns one correction.
func (l *Ledger) Get(ctx context.Context, id string) (*model.GameCorrection, error) {
	c, err := l.store.GetCorrection(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "correction: get")
	}
	if c == nil {
		return nil, eris.Wrapf(ErrNotFound, "correction %s", id)
	}
	return c, nil
}

// List returns corrections matching f.
func (l *Ledger) List(ctx context.Context, f store.CorrectionFilter) ([]model.GameCorrection, error) {
	out, err := l.store.ListCorrections(ctx, f)
	return out, eris.Wrap(err, "correction: list")
}

// Propose records a pending correction. Fields equal to the game's current
// values are dropped; a proposal left with nothing to change is rejected.
func (l *Ledger) Propose(ctx context.Context, p Proposal) (*model.GameCorrection, error) {
	if strings.TrimSpace(p.ProposedBy) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "proposed_by is required")
	}
	if p.Type != "" && !p.Type.Valid() {
		return nil, eris.Wrapf(ErrInvalidProposal, "unknown correction type %q", p.Type)
	}

	g, err := l.store.GetGame(ctx, p.GameUID)
	if err != nil {
		return nil, eris.Wrap(err, "correction: get game")
	}
	if g == nil {
		return nil, eris.Wrapf(ErrNotFound, "game %s", p.GameUID)
	}

	changed := diff(p.Corrected, g)
	if changed.Empty() {
		return nil, eris.Wrap(ErrInvalidProposal, "correction changes no field")
	}
	if err := l.checkFields(ctx, l.store, changed, g); err != nil {
		return nil, err
	}

	typ := p.Type
	if typ == "" {
		typ = model.InferCorrectionType(changed)
	}
	c := &model.GameCorrection{
		GameUID:    g.GameUID,
		Type:       typ,
		Corrected:  changed,
		Status:     model.CorrectionPending,
		Reason:     p.Reason,
		ProposedBy: p.ProposedBy,
	}
	if err := l.store.CreateCorrection(ctx, c); err != nil {
		return nil, eris.Wrap(err, "correction: create")
	}

	zap.L().Info("correction proposed",
		zap.String("component", "correction"),
		zap.String("correction_id", c.ID),
		zap.String("game_uid", g.GameUID),
		zap.String("type", string(typ)),
	)
	return c, nil
}

// Apply writes a pending correction to its game and marks it approved.
// Applying an approved correction returns it unchanged.
func (l *Ledger) Apply(ctx context.Context, id, approver string) (*model.GameCorrection, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "approver is required")
	}
	var out *model.GameCorrection
	applied := false
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		c, g, err := l.load(ctx, tx, id)
		if err != nil {
			return err
		}
		switch c.Status {
		case model.CorrectionApproved:
			out = c
			return nil
		case model.CorrectionRejected, model.CorrectionReverted:
			return eris.Wrapf(ErrInvalidState, "correction %s is %s", id, c.Status)
		}

		if err := l.checkFields(ctx, tx, c.Corrected, g); err != nil {
			return err
		}
		if c.Original == nil {
			snap := c.Corrected.Snapshot(g)
			c.Original = &snap
		}
		if err := write(ctx, tx, g, UnlockRef(c.ID), c.Corrected); err != nil {
			return err
		}

		now := l.now()
		c.Status = model.CorrectionApproved
		c.ApprovedBy = approver
		c.ApprovedAt = &now
		if err := tx.UpdateCorrection(ctx, c); err != nil {
			return eris.Wrap(err, "correction: mark approved")
		}
		out = c
		applied = true
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "correction: apply")
	}
	if applied {
		zap.L().Info("correction applied",
			zap.String("component", "correction"),
			zap.String("correction_id", out.ID),
			zap.String("game_uid", out.GameUID),
			zap.String("approver", approver),
		)
	}
	return out, nil
}

// Reject closes a pending correction without touching its game. Rejecting
// a rejected correction returns it unchanged.
func (l *Ledger) Reject(ctx context.Context, id, approver string) (*model.GameCorrection, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "approver is required")
	}
	var out *model.GameCorrection
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		c, err := tx.GetCorrection(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return eris.Wrapf(ErrNotFound, "correction %s", id)
		}
		switch c.Status {
		case model.CorrectionRejected:
			out = c
			return nil
		case model.CorrectionApproved, model.CorrectionReverted:
			return eris.Wrapf(ErrInvalidState, "correction %s is %s", id, c.Status)
		}
		now := l.now()
		c.Status = model.CorrectionRejected
		c.ApprovedBy = approver
		c.ApprovedAt = &now
		out = c
		return tx.UpdateCorrection(ctx, c)
	})
	return out, eris.Wrap(err, "correction: reject")
}

// Revert restores the captured original values of an approved correction.
// Reverting a reverted correction returns it unchanged.
func (l *Ledger) Revert(ctx context.Context, id, actor string) (*model.GameCorrection, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "actor is required")
	}
	var out *model.GameCorrection
	err := l.store.WithTx(ctx, func(tx store.Store) error {
		c, g, err := l.load(ctx, tx, id)
		if err != nil {
			return err
		}
		switch c.Status {
		case model.CorrectionReverted:
			out = c
			return nil
		case model.CorrectionPending, model.CorrectionRejected:
			return eris.Wrapf(ErrInvalidState, "correction %s is %s", id, c.Status)
		}
		if c.Original == nil {
			return eris.Wrapf(ErrInvalidState, "correction %s has no original snapshot", id)
		}

		restore, err := l.followMerges(ctx, tx, *c.Original, g)
		if err != nil {
			return err
		}

		// The unlock trigger accepts the reference only while the
		// correction is still approved, so the game is written first.
		if err := write(ctx, tx, g, UnlockRef(c.ID), restore); err != nil {
			return err
		}
		now := l.now()
		c.Status = model.CorrectionReverted
		c.RevertedBy = actor
		c.RevertedAt = &now
		out = c
		return tx.UpdateCorrection(ctx, c)
	})
	if err != nil {
		return nil, eris.Wrap(err, "correction: revert")
	}
	zap.L().Info("correction reverted",
		zap.String("component", "correction"),
		zap.String("correction_id", id),
		zap.String("actor", actor),
	)
	return out, nil
}

func (l *Ledger) load(ctx context.Context, tx store.Store, id string) (*model.GameCorrection, *model.GameRecord, error) {
	c, err := tx.GetCorrection(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, eris.Wrapf(ErrNotFound, "correction %s", id)
	}
	g, err := tx.GetGame(ctx, c.GameUID)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, eris.Wrapf(ErrNotFound, "game %s", c.GameUID)
	}
	return c, g, nil
}

// checkFields rejects team references to missing or deprecated teams, a
// game against itself, and negative scores.
func (l *Ledger) checkFields(ctx context.Context, st store.Store, f model.GameFields, g *model.GameRecord) error {
	for _, id := range []*string{f.HomeTeamID, f.AwayTeamID} {
		if id == nil {
			continue
		}
		t, err := st.GetTeam(ctx, *id)
		if err != nil {
			return eris.Wrap(err, "correction: get team")
		}
		if t == nil {
			return eris.Wrapf(ErrNotFound, "team %s", *id)
		}
		if t.Deprecated {
			return eris.Wrapf(ErrInvalidProposal, "team %s is merged into %s", t.ID, *t.MergedInto)
		}
	}
	after := *g
	f.ApplyTo(&after)
	if after.HomeTeamID == after.AwayTeamID {
		return eris.Wrap(ErrInvalidProposal, "home and away teams must differ")
	}
	if after.HomeScore < 0 || after.AwayScore < 0 {
		return eris.Wrap(ErrInvalidProposal, "scores must not be negative")
	}
	return nil
}

// followMerges maps original team ids that were merged away since the
// correction was applied onto their canonical team. Merges never chain, so
// one lookup per side is enough.
func (l *Ledger) followMerges(ctx context.Context, st store.Store, f model.GameFields, g *model.GameRecord) (model.GameFields, error) {
	for _, id := range []**string{&f.HomeTeamID, &f.AwayTeamID} {
		if *id == nil {
			continue
		}
		t, err := st.GetTeam(ctx, **id)
		if err != nil {
			return f, eris.Wrap(err, "correction: get team")
		}
		if t == nil {
			return f, eris.Wrapf(ErrInvalidState, "original team %s no longer exists", **id)
		}
		if t.Deprecated && t.MergedInto != nil {
			canonical := *t.MergedInto
			*id = &canonical
		}
	}
	after := *g
	f.ApplyTo(&after)
	if after.HomeTeamID == after.AwayTeamID {
		return f, eris.Wrapf(ErrInvalidState, "reverting %s would pit team %s against itself", g.GameUID, after.HomeTeamID)
	}
	return f, nil
}

// diff keeps the fields of f that differ from g.
func diff(f model.GameFields, g *model.GameRecord) model.GameFields {
	var out model.GameFields
	if f.HomeTeamID != nil && *f.HomeTeamID != g.HomeTeamID {
		out.HomeTeamID = f.HomeTeamID
	}
	if f.AwayTeamID != nil && *f.AwayTeamID != g.AwayTeamID {
		out.AwayTeamID = f.AwayTeamID
	}
	if f.GameDate != nil && *f.GameDate != g.GameDate {
		out.GameDate = f.GameDate
	}
	if f.HomeScore != nil && *f.HomeScore != g.HomeScore {
		out.HomeScore = f.HomeScore
	}
	if f.AwayScore != nil && *f.AwayScore != g.AwayScore {
		out.AwayScore = f.AwayScore
	}
	return out
}

// write applies f to g, unlocking a finalized game first. The game is
// locked afterwards either way: a corrected game is final.
func write(ctx context.Context, tx store.Store, g *model.GameRecord, ref string, f model.GameFields) error {
	if f.Empty() {
		return nil
	}
	if g.IsImmutable {
		if err := tx.UnlockGame(ctx, g.GameUID, ref); err != nil {
			return eris.Wrapf(err, "correction: unlock game %s", g.GameUID)
		}
	}
	if err := tx.UpdateGameFields(ctx, g.GameUID, f); err != nil {
		return eris.Wrapf(err, "correction: write game %s", g.GameUID)
	}
	if err := tx.RelockGame(ctx, g.GameUID); err != nil {
		return eris.Wrapf(err, "correction: relock game %s", g.GameUID)
	}
	return nil
}
