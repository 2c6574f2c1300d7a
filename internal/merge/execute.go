package merge

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/store"
)

// UnlockRef is the unlock_ref a merge writes on the games it repoints.
func UnlockRef(mergeID string) string { return "merge:" + mergeID }

// Execute applies a proposed merge in one transaction. Executing an
// executed merge returns its audit unchanged.
func (c *Coordinator) Execute(ctx context.Context, id, actor string) (*model.MergeAudit, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "actor is required")
	}
	log := zap.L().With(zap.String("component", "merge"), zap.String("merge_id", id))

	var audit *model.MergeAudit
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		m, err := tx.GetMerge(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return eris.Wrapf(ErrNotFound, "merge %s", id)
		}
		switch m.Status {
		case model.MergeExecuted:
			audit, err = tx.GetMergeAudit(ctx, id)
			return err
		case model.MergeReverted:
			return eris.Wrapf(ErrInvalidState, "merge %s was reverted", id)
		}

		dep, can, err := c.pair(ctx, tx, m.DeprecatedID, m.CanonicalID)
		if err != nil {
			return err
		}
		if can.Deprecated {
			return eris.Wrapf(ErrChain, "canonical %s is merged into %s", can.ID, deref(can.MergedInto))
		}
		if dep.Deprecated {
			return eris.Wrapf(ErrInvalidState, "team %s is already deprecated", dep.ID)
		}

		a := &model.MergeAudit{MergeID: m.ID}
		if a.PointersRewritten, err = c.rewritePointers(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.DeprecateTeam(ctx, dep.ID, can.ID); err != nil {
			return eris.Wrap(err, "merge: deprecate")
		}
		if a.AliasesMoved, err = c.moveAliases(ctx, tx, m); err != nil {
			return err
		}
		if a.GamesMoved, err = c.moveGames(ctx, tx, m); err != nil {
			return err
		}

		now := c.now()
		a.ExecutedAt = now
		if err := tx.UpsertMergeAudit(ctx, a); err != nil {
			return err
		}
		m.Status = model.MergeExecuted
		m.ExecutedBy = actor
		m.ExecutedAt = &now
		if err := tx.UpdateMerge(ctx, m); err != nil {
			return err
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "merge: execute")
	}

	log.Info("merge executed",
		zap.Int("aliases_moved", audit.AliasesMoved),
		zap.Int("games_moved", audit.GamesMoved),
		zap.Int("pointers_rewritten", audit.PointersRewritten),
	)
	return audit, nil
}

func (c *Coordinator) rewritePointers(ctx context.Context, tx store.Store, m *model.MergeRecord) (int, error) {
	teams, err := tx.ListTeamsMergedInto(ctx, m.DeprecatedID)
	if err != nil {
		return 0, eris.Wrap(err, "merge: list pointers")
	}
	n := 0
	for _, t := range teams {
		if err := tx.AddMergeAuditItem(ctx, model.MergeAuditItem{
			MergeID: m.ID, Kind: model.AuditPointer, Ref: t.ID,
			OldValue: m.DeprecatedID, NewValue: m.CanonicalID,
		}); err != nil {
			return n, err
		}
		if err := tx.SetMergedInto(ctx, t.ID, m.CanonicalID); err != nil {
			return n, eris.Wrapf(err, "merge: rewrite pointer %s", t.ID)
		}
		n++
	}
	return n, nil
}

func (c *Coordinator) moveAliases(ctx context.Context, tx store.Store, m *model.MergeRecord) (int, error) {
	n := 0
	after := ""
	for {
		page, err := tx.ListAliasesByMaster(ctx, m.DeprecatedID, after, c.pageSize)
		if err != nil {
			return n, eris.Wrap(err, "merge: list aliases")
		}
		for _, al := range page {
			if err := tx.AddMergeAuditItem(ctx, model.MergeAuditItem{
				MergeID: m.ID, Kind: model.AuditAlias, Ref: al.ID,
				OldValue: m.DeprecatedID, NewValue: m.CanonicalID,
			}); err != nil {
				return n, err
			}
			swapped, err := tx.CompareAndSetAliasMaster(ctx, al.ID, m.DeprecatedID, m.CanonicalID)
			if err != nil {
				return n, err
			}
			if swapped {
				n++
			}
		}
		if len(page) < c.pageSize {
			return n, nil
		}
		after = page[len(page)-1].ID
	}
}

func (c *Coordinator) moveGames(ctx context.Context, tx store.Store, m *model.MergeRecord) (int, error) {
	n := 0
	after := ""
	for {
		page, err := tx.ListGamesByTeam(ctx, m.DeprecatedID, after, c.pageSize)
		if err != nil {
			return n, eris.Wrap(err, "merge: list games")
		}
		for i := range page {
			g := &page[i]
			var f model.GameFields
			if g.HomeTeamID == m.DeprecatedID {
				f.HomeTeamID = &m.CanonicalID
				if err := tx.AddMergeAuditItem(ctx, model.MergeAuditItem{
					MergeID: m.ID, Kind: model.AuditGameHome, Ref: g.GameUID,
					OldValue: m.DeprecatedID, NewValue: m.CanonicalID,
				}); err != nil {
					return n, err
				}
			}
			if g.AwayTeamID == m.DeprecatedID {
				f.AwayTeamID = &m.CanonicalID
				if err := tx.AddMergeAuditItem(ctx, model.MergeAuditItem{
					MergeID: m.ID, Kind: model.AuditGameAway, Ref: g.GameUID,
					OldValue: m.DeprecatedID, NewValue: m.CanonicalID,
				}); err != nil {
					return n, err
				}
			}
			if err := writeGame(ctx, tx, g, UnlockRef(m.ID), f); err != nil {
				return n, err
			}
			n++
		}
		if len(page) < c.pageSize {
			return n, nil
		}
		after = page[len(page)-1].GameUID
	}
}

// writeGame applies f to g, unlocking and relocking a finalized game
// around the write.
func writeGame(ctx context.Context, tx store.Store, g *model.GameRecord, ref string, f model.GameFields) error {
	if f.Empty() {
		return nil
	}
	if g.IsImmutable {
		if err := tx.UnlockGame(ctx, g.GameUID, ref); err != nil {
			return eris.Wrapf(err, "merge: unlock game %s", g.GameUID)
		}
	}
	if err := tx.UpdateGameFields(ctx, g.GameUID, f); err != nil {
		return eris.Wrapf(err, "merge: repoint game %s", g.GameUID)
	}
	if g.IsImmutable {
		if err := tx.RelockGame(ctx, g.GameUID); err != nil {
			return eris.Wrapf(err, "merge: relock game %s", g.GameUID)
		}
	}
	return nil
}

// Revert undoes an executed merge. Each audited change is restored only
// while it still holds its post-merge value, so later edits survive.
// Reverting a reverted merge returns its audit unchanged.
func (c *Coordinator) Revert(ctx context.Context, id, actor string) (*model.MergeAudit, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "actor is required")
	}

	var audit *model.MergeAudit
	var restored int
	err := c.store.WithTx(ctx, func(tx store.Store) error {
		m, err := tx.GetMerge(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return eris.Wrapf(ErrNotFound, "merge %s", id)
		}
		switch m.Status {
		case model.MergeReverted:
			audit, err = tx.GetMergeAudit(ctx, id)
			return err
		case model.MergeProposed:
			return eris.Wrapf(ErrInvalidState, "merge %s was never executed", id)
		}

		dep, err := tx.GetTeam(ctx, m.DeprecatedID)
		if err != nil {
			return err
		}
		if dep != nil && dep.Deprecated {
			if err := tx.RestoreTeam(ctx, dep.ID); err != nil {
				return eris.Wrap(err, "merge: restore team")
			}
		}

		items, err := tx.ListMergeAuditItems(ctx, id)
		if err != nil {
			return err
		}
		seen := make(map[string]bool)
		var order []string
		for _, it := range items {
			switch it.Kind {
			case model.AuditPointer:
				t, err := tx.GetTeam(ctx, it.Ref)
				if err != nil {
					return err
				}
				if t == nil || t.MergedInto == nil || *t.MergedInto != it.NewValue {
					continue
				}
				if err := tx.SetMergedInto(ctx, t.ID, it.OldValue); err != nil {
					return eris.Wrapf(err, "merge: restore pointer %s", t.ID)
				}
				restored++
			case model.AuditAlias:
				ok, err := tx.CompareAndSetAliasMaster(ctx, it.Ref, it.NewValue, it.OldValue)
				if err != nil {
					return err
				}
				if ok {
					restored++
				}
			case model.AuditGameHome, model.AuditGameAway:
				if !seen[it.Ref] {
					seen[it.Ref] = true
					order = append(order, it.Ref)
				}
			}
		}

		for _, uid := range order {
			n, err := c.restoreGame(ctx, tx, id, uid, items)
			if err != nil {
				return err
			}
			restored += n
		}

		a, err := tx.GetMergeAudit(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			a = &model.MergeAudit{MergeID: id}
		}
		now := c.now()
		a.RevertedAt = &now
		if err := tx.UpsertMergeAudit(ctx, a); err != nil {
			return err
		}
		m.Status = model.MergeReverted
		m.RevertedBy = actor
		m.RevertedAt = &now
		if err := tx.UpdateMerge(ctx, m); err != nil {
			return err
		}
		audit = a
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "merge: revert")
	}

	zap.L().Info("merge reverted",
		zap.String("component", "merge"),
		zap.String("merge_id", id),
		zap.Int("restored", restored),
	)
	return audit, nil
}

// restoreGame puts back the sides of uid that still point where the merge
// left them.
func (c *Coordinator) restoreGame(ctx context.Context, tx store.Store, mergeID, uid string, items []model.MergeAuditItem) (int, error) {
	g, err := tx.GetGame(ctx, uid)
	if err != nil {
		return 0, err
	}
	if g == nil {
		return 0, nil
	}
	var f model.GameFields
	n := 0
	for _, it := range items {
		if it.Ref != uid {
			continue
		}
		old := it.OldValue
		switch {
		case it.Kind == model.AuditGameHome && g.HomeTeamID == it.NewValue:
			f.HomeTeamID = &old
			n++
		case it.Kind == model.AuditGameAway && g.AwayTeamID == it.NewValue:
			f.AwayTeamID = &old
			n++
		}
	}
	if err := writeGame(ctx, tx, g, UnlockRef(mergeID), f); err != nil {
		return 0, err
	}
	return n, nil
}
