// Package merge folds duplicate master teams into a canonical one with a
// reversible audit trail.
package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/store"
)

var (
	// ErrNotFound is returned for unknown merge or team ids.
	ErrNotFound = eris.New("merge: not found")
	// ErrChain is returned when the canonical team is itself deprecated.
	ErrChain = eris.New("merge: canonical team is deprecated")
	// ErrGuardrail is returned when a merge crosses gender or non-adjacent ages
	// without an operator justification.
	ErrGuardrail = eris.New("merge: guardrail")
	// ErrInvalidState is returned when a merge cannot move to the requested status.
	ErrInvalidState = eris.New("merge: invalid state")
	// ErrInvalidProposal is returned for malformed proposals.
	ErrInvalidProposal = eris.New("merge: invalid proposal")
)

const defaultPageSize = 500

// Proposal asks to fold DeprecatedID into CanonicalID.
type Proposal struct {
	DeprecatedID  string `json:"deprecated_id"`
	CanonicalID   string `json:"canonical_id"`
	Justification string `json:"justification,omitempty"`
	Actor         string `json:"actor"`
	Automatic     bool   `json:"automatic,omitempty"`
}

// Preview counts what executing a merge would move off a team.
type Preview struct {
	Aliases  int `json:"aliases"`
	Games    int `json:"games"`
	Pointers int `json:"pointers"`
}

// Coordinator proposes, executes and reverts merges.
type Coordinator struct {
	store      store.Store
	seasonYear int
	pageSize   int
	now        func() time.Time
}

// New creates a Coordinator. seasonYear converts U<n> ages for the age
// guardrail; zero leaves mixed notations incomparable.
func New(st store.Store, seasonYear int) *Coordinator {
	return &Coordinator{
		store:      st,
		seasonYear: seasonYear,
		pageSize:   defaultPageSize,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Get returns one merge record.
func (c *Coordinator) Get(ctx context.Context, id string) (*model.MergeRecord, error) {
	m, err := c.store.GetMerge(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "merge: get")
	}
	if m == nil {
		return nil, eris.Wrapf(ErrNotFound, "merge %s", id)
	}
	return m, nil
}

// List returns merges matching f.
func (c *Coordinator) List(ctx context.Context, f store.MergeFilter) ([]model.MergeRecord, error) {
	out, err := c.store.ListMerges(ctx, f)
	return out, eris.Wrap(err, "merge: list")
}

// Propose validates p and records a proposed merge with preview counts. An
// open proposal for the same pair is returned unchanged.
func (c *Coordinator) Propose(ctx context.Context, p Proposal) (*model.MergeRecord, error) {
	if p.DeprecatedID == "" || p.CanonicalID == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "deprecated_id and canonical_id are required")
	}
	if p.DeprecatedID == p.CanonicalID {
		return nil, eris.Wrap(ErrInvalidProposal, "a team cannot merge into itself")
	}
	if strings.TrimSpace(p.Actor) == "" {
		return nil, eris.Wrap(ErrInvalidProposal, "actor is required")
	}

	dep, can, err := c.pair(ctx, c.store, p.DeprecatedID, p.CanonicalID)
	if err != nil {
		return nil, err
	}
	if can.Deprecated {
		return nil, eris.Wrapf(ErrChain, "canonical %s is merged into %s", can.ID, deref(can.MergedInto))
	}
	if dep.Deprecated {
		return nil, eris.Wrapf(ErrInvalidState, "team %s is already deprecated", dep.ID)
	}
	if reason := c.guardrail(dep, can); reason != "" {
		if p.Automatic {
			return nil, eris.Wrapf(ErrGuardrail, "automatic merge blocked: %s", reason)
		}
		if strings.TrimSpace(p.Justification) == "" {
			return nil, eris.Wrapf(ErrGuardrail, "%s: justification required", reason)
		}
	}

	open, err := c.store.ListMerges(ctx, store.MergeFilter{Status: model.MergeProposed, TeamID: dep.ID, Limit: 1000})
	if err != nil {
		return nil, eris.Wrap(err, "merge: list open proposals")
	}
	for i := range open {
		if open[i].DeprecatedID == dep.ID && open[i].CanonicalID == can.ID {
			return &open[i], nil
		}
	}

	prev, err := c.Preview(ctx, dep.ID)
	if err != nil {
		return nil, err
	}
	m := &model.MergeRecord{
		DeprecatedID:   dep.ID,
		CanonicalID:    can.ID,
		Justification:  p.Justification,
		Automatic:      p.Automatic,
		ProposedBy:     p.Actor,
		PreviewAliases: prev.Aliases,
		PreviewGames:   prev.Games,
	}
	if err := c.store.CreateMerge(ctx, m); err != nil {
		return nil, eris.Wrap(err, "merge: create")
	}

	zap.L().Info("merge proposed",
		zap.String("component", "merge"),
		zap.String("merge_id", m.ID),
		zap.String("deprecated_id", dep.ID),
		zap.String("canonical_id", can.ID),
		zap.Int("aliases", prev.Aliases),
		zap.Int("games", prev.Games),
	)
	return m, nil
}

// Preview counts aliases, games and merged_into pointers on teamID by
// paging through them.
func (c *Coordinator) Preview(ctx context.Context, teamID string) (Preview, error) {
	var p Preview

	after := ""
	for {
		page, err := c.store.ListAliasesByMaster(ctx, teamID, after, c.pageSize)
		if err != nil {
			return p, eris.Wrap(err, "merge: preview aliases")
		}
		p.Aliases += len(page)
		if len(page) < c.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	after = ""
	for {
		page, err := c.store.ListGamesByTeam(ctx, teamID, after, c.pageSize)
		if err != nil {
			return p, eris.Wrap(err, "merge: preview games")
		}
		p.Games += len(page)
		if len(page) < c.pageSize {
			break
		}
		after = page[len(page)-1].GameUID
	}

	pointers, err := c.store.ListTeamsMergedInto(ctx, teamID)
	if err != nil {
		return p, eris.Wrap(err, "merge: preview pointers")
	}
	p.Pointers = len(pointers)
	return p, nil
}

// Suggest proposes an automatic merge of a and b, keeping the team
// SelectCanonical prefers.
func (c *Coordinator) Suggest(ctx context.Context, aID, bID, actor string) (*model.MergeRecord, error) {
	a, b, err := c.pair(ctx, c.store, aID, bID)
	if err != nil {
		return nil, err
	}
	can := SelectCanonical([]model.MasterTeam{*a, *b})
	dep := a
	if can.ID == a.ID {
		dep = b
	}
	return c.Propose(ctx, Proposal{
		DeprecatedID:  dep.ID,
		CanonicalID:   can.ID,
		Justification: fmt.Sprintf("suggested: %q duplicates %q", dep.TeamName, can.TeamName),
		Actor:         actor,
		Automatic:     true,
	})
}

// SelectCanonical picks the team to keep among duplicates. It prefers a
// name containing the club, then mixed case over all caps, then the longer
// name, then the earliest created, then the lowest id.
func SelectCanonical(teams []model.MasterTeam) model.MasterTeam {
	if len(teams) == 0 {
		return model.MasterTeam{}
	}
	ranked := append([]model.MasterTeam(nil), teams...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ca, cb := namesClub(a), namesClub(b); ca != cb {
			return ca
		}
		if ua, ub := allCaps(a.TeamName), allCaps(b.TeamName); ua != ub {
			return !ua
		}
		if la, lb := utf8.RuneCountInString(strings.TrimSpace(a.TeamName)), utf8.RuneCountInString(strings.TrimSpace(b.TeamName)); la != lb {
			return la > lb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ranked[0]
}

func namesClub(t model.MasterTeam) bool {
	club := normalize.Fold(t.ClubName)
	return club != "" && strings.Contains(normalize.Fold(t.TeamName), club)
}

func allCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

// guardrail returns why dep and can look like different teams, or "".
func (c *Coordinator) guardrail(dep, can *model.MasterTeam) string {
	if dep.Gender != can.Gender {
		return fmt.Sprintf("gender %s vs %s", dep.Gender, can.Gender)
	}
	a, okA := normalize.ParseAge(dep.Age)
	b, okB := normalize.ParseAge(can.Age)
	if !okA || !okB {
		return "age unknown"
	}
	d, ok := normalize.AgeDistance(a, b, c.seasonYear)
	if !ok {
		return fmt.Sprintf("ages %s and %s are not comparable", a, b)
	}
	if d > 1 {
		return fmt.Sprintf("ages %s and %s are %d apart", a, b, d)
	}
	return ""
}

func (c *Coordinator) pair(ctx context.Context, st store.Store, aID, bID string) (*model.MasterTeam, *model.MasterTeam, error) {
	a, err := st.GetTeam(ctx, aID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "merge: get team")
	}
	if a == nil {
		return nil, nil, eris.Wrapf(ErrNotFound, "team %s", aID)
	}
	b, err := st.GetTeam(ctx, bID)
	if err != nil {
		return nil, nil, eris.Wrap(err, "merge: get team")
	}
	if b == nil {
		return nil, nil, eris.Wrapf(ErrNotFound, "team %s", bID)
	}
	return a, b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
