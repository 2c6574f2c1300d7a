package importer

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/store"
)

// ReleaseResult counts what happened to the games held on one review entry.
type ReleaseResult struct {
	Imported        int `json:"imported"`
	AlreadyImported int `json:"already_imported"`
	Quarantined     int `json:"quarantined"`
	StillHeld       int `json:"still_held"`
}

// ReleaseHeld re-resolves the games held on entryID. It satisfies the review
// service's releaser hook.
func (j *Job) ReleaseHeld(ctx context.Context, entryID string) error {
	_, err := j.Release(ctx, entryID)
	return err
}

// Release re-resolves the games held on entryID through the direct and
// structural tiers only. A game whose sides are both resolved is imported,
// one with a rejected side is quarantined, and anything else stays held.
func (j *Job) Release(ctx context.Context, entryID string) (ReleaseResult, error) {
	var out ReleaseResult
	held, err := resilience.DoVal(ctx, j.retry("list_held"), func(ctx context.Context) ([]model.HeldGame, error) {
		return j.store.ListHeldGamesByReview(ctx, entryID)
	})
	if err != nil {
		return out, eris.Wrap(err, "importer: list held games")
	}

	for i := range held {
		h := &held[i]
		if err := j.wait(ctx); err != nil {
			return out, err
		}
		if err := j.releaseOne(ctx, h, &out); err != nil {
			return out, err
		}
	}

	if len(held) > 0 {
		zap.L().Info("held games released",
			zap.String("component", "importer"),
			zap.String("review_id", entryID),
			zap.Int("imported", out.Imported),
			zap.Int("already_imported", out.AlreadyImported),
			zap.Int("quarantined", out.Quarantined),
			zap.Int("still_held", out.StillHeld),
		)
	}
	return out, nil
}

func (j *Job) releaseOne(ctx context.Context, h *model.HeldGame, out *ReleaseResult) error {
	fr := h.Row
	code := strings.TrimSpace(fr.Provider)
	p, err := resilience.DoVal(ctx, j.retry("get_provider"), func(ctx context.Context) (*model.Provider, error) {
		return j.store.GetProvider(ctx, code)
	})
	if err != nil {
		return eris.Wrap(err, "importer: get provider")
	}

	var q *model.QuarantinedRecord
	var r *row
	switch {
	case p == nil:
		qr := quarantineRow(h.BatchID, fr, model.ReasonOther, DetailUnknownProvider+": "+code)
		q = &qr
	default:
		var settled bool
		r, q, settled, err = j.lookupRow(ctx, *p, h)
		if err != nil {
			return err
		}
		if !settled {
			out.StillHeld++
			return nil
		}
	}

	return j.store.WithTx(ctx, func(tx store.Store) error {
		if q == nil {
			st, dup, err := j.importGame(ctx, tx, h.BatchID, r)
			if err != nil {
				return err
			}
			switch st {
			case statusImported:
				out.Imported++
			case statusAlready:
				out.AlreadyImported++
			}
			q = dup
		}
		if q != nil {
			if err := tx.AppendQuarantine(ctx, q); err != nil {
				return eris.Wrap(err, "importer: quarantine released game")
			}
			out.Quarantined++
		}
		return eris.Wrap(tx.DeleteHeldGame(ctx, h.ID), "importer: delete held game")
	})
}

// lookupRow resolves both sides of a held row without writing. settled is
// false while either side still waits on review.
func (j *Job) lookupRow(ctx context.Context, p model.Provider, h *model.HeldGame) (*row, *model.QuarantinedRecord, bool, error) {
	fr := h.Row
	fr.Provider = p.Code

	var res [2]matcher.Resolution
	settled := true
	for i, fs := range []model.FeedSide{fr.Team, fr.Opponent} {
		r, ok, err := j.matcher.Lookup(ctx, p, fr.Record(fs))
		if err != nil {
			return nil, nil, false, eris.Wrap(err, "importer: look up held side")
		}
		res[i] = r
		if !ok {
			settled = false
		}
	}
	if q := sideQuarantine(h.BatchID, fr, res[0], res[1]); q != nil {
		return nil, q, true, nil
	}
	if !settled {
		return nil, nil, false, nil
	}

	r := &row{
		feed:     fr,
		provider: p,
		home:     &side{provider: p, key: res[0].AliasKey, res: res[0]},
		away:     &side{provider: p, key: res[1].AliasKey, res: res[1]},
	}
	r.date, _ = quarantine.NormalizeDate(fr.GameDate)
	r.homeScore, _ = quarantine.ParseScore(fr.HomeScore)
	r.awayScore, _ = quarantine.ParseScore(fr.AwayScore)
	return r, nil, true, nil
}
