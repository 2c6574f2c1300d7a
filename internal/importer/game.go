package importer

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/identity"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

type gameStatus int

const (
	statusImported gameStatus = iota
	statusAlready
	statusDuplicate
)

// importGame writes the game for r when both sides resolved. An existing
// game_uid is already imported; a different uid under the same natural key
// is a conflicting report and comes back as a duplicate quarantine.
func (j *Job) importGame(ctx context.Context, st store.Store, batchID string, r *row) (gameStatus, *model.QuarantinedRecord, error) {
	p := r.provider.Code
	uid := r.gameUID()
	nk := identity.NaturalGameKey(p, r.home.key, r.away.key, r.date)

	status := statusImported
	var conflict string
	err := st.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.FindGamesByNaturalKey(ctx, nk)
		if err != nil {
			return err
		}
		for _, g := range existing {
			if g.GameUID == uid {
				status = statusAlready
				return nil
			}
		}
		if len(existing) > 0 {
			status = statusDuplicate
			conflict = existing[0].GameUID
			return nil
		}
		inserted, err := tx.InsertGameIfAbsent(ctx, &model.GameRecord{
			GameUID:     uid,
			Provider:    p,
			HomeTeamID:  r.home.res.MasterID,
			AwayTeamID:  r.away.res.MasterID,
			GameDate:    r.date,
			HomeScore:   r.homeScore,
			AwayScore:   r.awayScore,
			NaturalKey:  nk,
			Source:      r.feed.Source,
			BatchID:     batchID,
			IsImmutable: j.opts.Finalize,
		})
		if err != nil {
			return err
		}
		if !inserted {
			status = statusAlready
		}
		return nil
	})
	if err != nil {
		return 0, nil, eris.Wrapf(err, "importer: import game %s", uid)
	}
	if status == statusDuplicate {
		q := quarantineRow(batchID, r.feed, model.ReasonDuplicate, "conflicts with game "+conflict)
		return status, &q, nil
	}
	return status, nil, nil
}

func (r *row) gameUID() string {
	return identity.GameUID(r.provider.Code, r.home.key, r.away.key, r.date, r.homeScore, r.awayScore)
}

// sideQuarantine returns the quarantine for a row with a quarantined side,
// home first.
func sideQuarantine(batchID string, fr model.FeedRow, home, away matcher.Resolution) *model.QuarantinedRecord {
	for _, s := range []struct {
		label string
		res   matcher.Resolution
	}{{"team", home}, {"opponent", away}} {
		if s.res.Outcome != matcher.OutcomeQuarantined {
			continue
		}
		detail := s.label
		if s.res.Detail != "" {
			detail += ": " + s.res.Detail
		}
		q := quarantineRow(batchID, fr, s.res.Reason, detail)
		return &q
	}
	return nil
}

func quarantineRow(batchID string, fr model.FeedRow, reason model.QuarantineReason, detail string) model.QuarantinedRecord {
	payload, err := json.Marshal(fr)
	if err != nil {
		payload = []byte("{}")
	}
	return model.QuarantinedRecord{BatchID: batchID, Reason: reason, Detail: detail, Payload: payload}
}
