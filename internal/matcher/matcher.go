// Package matcher resolves provider team records to master teams through
// direct, structural and fuzzy tiers.
package matcher

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/teamresolve/internal/identity"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/scorer"
	"github.com/sells-group/teamresolve/internal/store"
)

// ErrAgeMismatch is returned by Describe when a record's age_group and the
// age parsed from its name disagree.
var ErrAgeMismatch = eris.New("matcher: age_group disagrees with team name")

var errAliasTaken = eris.New("matcher: alias key taken")

// Outcome is the terminal state of one resolution.
type Outcome string

// Resolution outcomes.
const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeReview      Outcome = "review"
	OutcomeQuarantined Outcome = "quarantined"
)

// Path records how a resolution was reached, for per-path import counts.
type Path string

// Resolution paths.
const (
	PathTier1       Path = "tier1"
	PathTier2       Path = "tier2"
	PathTier3Auto   Path = "tier3_auto"
	PathCreated     Path = "created"
	PathReview      Path = "review"
	PathQuarantined Path = "quarantined"
)

// DetailPreviouslyRejected marks keys an operator already rejected.
const DetailPreviouslyRejected = "previously_rejected"

// Resolution is the result of resolving one provider team record.
type Resolution struct {
	Outcome       Outcome                `json:"outcome"`
	Path          Path                   `json:"path"`
	MasterID      string                 `json:"master_id,omitempty"`
	AliasKey      string                 `json:"alias_key"`
	ReviewEntryID string                 `json:"review_entry_id,omitempty"`
	Reason        model.QuarantineReason `json:"reason,omitempty"`
	Detail        string                 `json:"detail,omitempty"`
	Breakdown     *model.ScoreBreakdown  `json:"breakdown,omitempty"`
}

// Request is one record to resolve.
type Request struct {
	BatchID  string
	Provider model.Provider
	Record   model.ProviderTeamRecord
}

// Options configures a Matcher.
type Options struct {
	Policy Policy
	// CandidateLimit is K, the number of ranked candidates kept.
	CandidateLimit int
	// PoolLimit caps the candidates read from the store per record.
	PoolLimit int
	Retry     resilience.RetryConfig
}

// Matcher is safe for concurrent use.
type Matcher struct {
	store     store.Store
	norm      *normalize.Normalizer
	scorer    *scorer.Scorer
	policy    Policy
	k         int
	poolLimit int
	retry     resilience.RetryConfig
	group     singleflight.Group
}

// New creates a Matcher.
func New(st store.Store, n *normalize.Normalizer, sc *scorer.Scorer, opts Options) *Matcher {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 5
	}
	if opts.PoolLimit <= 0 {
		opts.PoolLimit = 500
	}
	if len(opts.Policy.Bands) == 0 && opts.Policy.Default == "" {
		opts.Policy = Policy{Default: ActionCreate}
	}
	return &Matcher{
		store:     st,
		norm:      n,
		scorer:    sc,
		policy:    opts.Policy,
		k:         opts.CandidateLimit,
		poolLimit: opts.PoolLimit,
		retry:     opts.Retry,
	}
}

// Normalizer returns the normalizer the matcher describes records with.
func (m *Matcher) Normalizer() *normalize.Normalizer { return m.norm }

// Describe normalizes rec. An age parsed from AgeGroup fills a missing name
// age. When both are present and comparable but differ, the descriptor is
// returned with ErrAgeMismatch.
func Describe(n *normalize.Normalizer, rec model.ProviderTeamRecord) (normalize.Descriptor, error) {
	d := n.Normalize(rec.TeamName, rec.ClubName)
	groupAge, _ := n.ParseAgeGroup(rec.AgeGroup)
	if groupAge == nil {
		return d, nil
	}
	if d.Age == nil {
		d.Age = groupAge
		return d, nil
	}
	if dist, ok := normalize.AgeDistance(d.Age, groupAge, n.SeasonYear()); ok && dist != 0 {
		return d, eris.Wrapf(ErrAgeMismatch, "age_group %s, name %s", groupAge, d.Age)
	}
	return d, nil
}

// Resolve maps rec from provider p to a master team, a pending review entry
// or a quarantine reason.
func (m *Matcher) Resolve(ctx context.Context, p model.Provider, rec model.ProviderTeamRecord) (Resolution, error) {
	return m.ResolveRequest(ctx, Request{Provider: p, Record: rec})
}

// ResolveRequest is Resolve with batch attribution for review entries.
func (m *Matcher) ResolveRequest(ctx context.Context, req Request) (Resolution, error) {
	p, rec := req.Provider, req.Record
	rec.Provider = p.Code

	gender, ok := model.ParseGender(rec.Gender)
	if !ok || strings.TrimSpace(rec.ProviderTeamID) == "" || strings.TrimSpace(rec.TeamName) == "" {
		return quarantined(model.ReasonMissingIdentityField, missingField(rec, ok), ""), nil
	}

	d, err := Describe(m.norm, rec)
	key := identity.AliasKey(p, rec, d)
	if errors.Is(err, ErrAgeMismatch) {
		return quarantined(model.ReasonAgeMismatch, err.Error(), key), nil
	}

	v, err, _ := m.group.Do(p.Code+"\x00"+key, func() (any, error) {
		return m.resolve(ctx, req.BatchID, p, rec, d, gender, key)
	})
	if err != nil {
		return Resolution{}, err
	}
	return v.(Resolution), nil
}

// Lookup resolves rec through the direct and structural tiers only, and
// reports whether the key has a terminal answer: an approved alias or an
// operator rejection. It never writes.
func (m *Matcher) Lookup(ctx context.Context, p model.Provider, rec model.ProviderTeamRecord) (Resolution, bool, error) {
	d, err := Describe(m.norm, rec)
	key := identity.AliasKey(p, rec, d)
	if errors.Is(err, ErrAgeMismatch) {
		return quarantined(model.ReasonAgeMismatch, err.Error(), key), true, nil
	}
	return m.lookup(ctx, p, rec, key)
}

func (m *Matcher) resolve(ctx context.Context, batchID string, p model.Provider, rec model.ProviderTeamRecord, d normalize.Descriptor, gender model.Gender, key string) (Resolution, error) {
	log := zap.L().With(zap.String("component", "matcher"), zap.String("provider", p.Code), zap.String("alias_key", key))

	res, ok, err := m.lookup(ctx, p, rec, key)
	if err != nil || ok {
		return res, err
	}

	pending, err := get(ctx, m, "get_pending_review", func(ctx context.Context) (*model.ReviewQueueEntry, error) {
		return m.store.GetPendingReview(ctx, p.Code, key)
	})
	if err != nil {
		return Resolution{}, eris.Wrap(err, "matcher: pending review")
	}
	if pending != nil {
		log.Debug("reusing pending review", zap.String("review_id", pending.ID))
		return reviewOf(pending), nil
	}

	cands, err := m.rank(ctx, p, scorer.Input{Descriptor: d, Gender: gender})
	if err != nil {
		return Resolution{}, err
	}

	band := m.policy.NoMatch()
	var top *model.Candidate
	if len(cands) > 0 {
		top = &cands[0]
		band = m.policy.Decide(top.Score, top.Breakdown.ExactAgreement)
	}
	log.Debug("tier3 decision",
		zap.Int("candidates", len(cands)),
		zap.String("band", band.Name),
		zap.String("action", string(band.Action)),
	)

	switch band.Action {
	case ActionAccept:
		return m.accept(ctx, p, key, top)
	case ActionReview:
		return m.enqueue(ctx, batchID, p, rec, key, cands)
	case ActionCreate:
		return m.create(ctx, p, rec, d, gender, key)
	default:
		res := quarantined(model.ReasonOther, band.Detail, key)
		if top != nil {
			res.Breakdown = &top.Breakdown
		}
		return res, nil
	}
}

func (m *Matcher) lookup(ctx context.Context, p model.Provider, rec model.ProviderTeamRecord, key string) (Resolution, bool, error) {
	direct := strings.TrimSpace(rec.ProviderTeamID)

	a, err := m.getAlias(ctx, p.Code, direct)
	if err != nil {
		return Resolution{}, false, err
	}
	if a.Usable() {
		return accepted(PathTier1, a.MasterID, key), true, nil
	}
	if a != nil && a.Status == model.ReviewRejected {
		return quarantined(model.ReasonOther, DetailPreviouslyRejected, key), true, nil
	}

	if p.ReusesClubIDs && key != direct {
		a, err := m.getAlias(ctx, p.Code, key)
		if err != nil {
			return Resolution{}, false, err
		}
		if a.Usable() {
			return accepted(PathTier2, a.MasterID, key), true, nil
		}
	}

	rejected, err := get(ctx, m, "get_rejected_review", func(ctx context.Context) (*model.ReviewQueueEntry, error) {
		return m.store.GetLatestRejectedReview(ctx, p.Code, key)
	})
	if err != nil {
		return Resolution{}, false, eris.Wrap(err, "matcher: rejected review")
	}
	if rejected != nil {
		res := quarantined(model.ReasonOther, DetailPreviouslyRejected, key)
		res.ReviewEntryID = rejected.ID
		return res, true, nil
	}
	return Resolution{}, false, nil
}

// rank scores the candidate pool for query and keeps the top K.
func (m *Matcher) rank(ctx context.Context, p model.Provider, query scorer.Input) ([]model.Candidate, error) {
	q := store.CandidateQuery{Gender: query.Gender, Limit: m.poolLimit}
	if query.Descriptor.Age != nil {
		q.Ages = normalize.Neighbors(query.Descriptor.Age, m.norm.SeasonYear())
		q.IncludeUnknownAge = true
	} else {
		q.ClubPrefix = runePrefix(query.Descriptor.ClubKey(), 3)
	}

	teams, err := get(ctx, m, "list_candidates", func(ctx context.Context) ([]model.MasterTeam, error) {
		return m.store.ListCandidates(ctx, q)
	})
	if err != nil {
		return nil, eris.Wrap(err, "matcher: list candidates")
	}
	if len(teams) == 0 {
		return nil, nil
	}

	var clubKeys []string
	seen := make(map[string]bool)
	for _, t := range teams {
		if t.ClubKey != "" && !seen[t.ClubKey] {
			seen[t.ClubKey] = true
			clubKeys = append(clubKeys, t.ClubKey)
		}
	}
	siblings, err := get(ctx, m, "provider_club_keys", func(ctx context.Context) (map[string]bool, error) {
		return m.store.ProviderClubKeys(ctx, p.Code, clubKeys)
	})
	if err != nil {
		return nil, eris.Wrap(err, "matcher: sibling prior")
	}

	cands := make([]model.Candidate, 0, len(teams))
	for _, t := range teams {
		cd := m.norm.Normalize(t.TeamName, t.ClubName)
		cd.Age, _ = normalize.ParseAge(t.Age)
		b := m.scorer.Score(query, scorer.Input{Descriptor: cd, Gender: t.Gender}, siblings[t.ClubKey])
		cands = append(cands, model.Candidate{
			MasterID:  t.ID,
			TeamName:  t.TeamName,
			ClubName:  t.ClubName,
			Age:       t.Age,
			Score:     b.Total,
			Breakdown: b,
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].MasterID < cands[j].MasterID
	})
	if len(cands) > m.k {
		cands = cands[:m.k]
	}
	return cands, nil
}

func (m *Matcher) accept(ctx context.Context, p model.Provider, key string, top *model.Candidate) (Resolution, error) {
	inserted, err := m.store.InsertAliasIfAbsent(ctx, &model.TeamAlias{
		Provider:       p.Code,
		ProviderTeamID: key,
		MasterID:       top.MasterID,
		Method:         model.MethodFuzzyAuto,
		Confidence:     top.Score,
		Status:         model.ReviewApproved,
	})
	if err != nil {
		return Resolution{}, eris.Wrap(err, "matcher: write fuzzy alias")
	}
	if !inserted {
		return m.reread(ctx, p, key)
	}
	res := accepted(PathTier3Auto, top.MasterID, key)
	res.Breakdown = &top.Breakdown
	return res, nil
}

func (m *Matcher) enqueue(ctx context.Context, batchID string, p model.Provider, rec model.ProviderTeamRecord, key string, cands []model.Candidate) (Resolution, error) {
	e := &model.ReviewQueueEntry{
		BatchID:    batchID,
		Provider:   p.Code,
		AliasKey:   key,
		Record:     rec,
		Candidates: cands,
	}
	if len(cands) > 0 {
		e.TopScore = cands[0].Score
	}
	inserted, err := m.store.InsertPendingReview(ctx, e)
	if err != nil {
		return Resolution{}, eris.Wrap(err, "matcher: enqueue review")
	}
	if inserted {
		return reviewOf(e), nil
	}

	existing, err := get(ctx, m, "get_pending_review", func(ctx context.Context) (*model.ReviewQueueEntry, error) {
		return m.store.GetPendingReview(ctx, p.Code, key)
	})
	if err != nil {
		return Resolution{}, eris.Wrap(err, "matcher: reread review")
	}
	if existing != nil {
		return reviewOf(existing), nil
	}
	// The competing entry was resolved between the insert and the reread.
	res, ok, err := m.lookup(ctx, p, rec, key)
	if err != nil {
		return Resolution{}, err
	}
	if !ok {
		return Resolution{}, eris.Errorf("matcher: review for %s/%s resolved without alias", p.Code, key)
	}
	return res, nil
}

func (m *Matcher) create(ctx context.Context, p model.Provider, rec model.ProviderTeamRecord, d normalize.Descriptor, gender model.Gender, key string) (Resolution, error) {
	team := &model.MasterTeam{
		TeamName: strings.Join(strings.Fields(rec.TeamName), " "),
		ClubName: d.Club,
		ClubKey:  d.ClubKey(),
		Age:      d.AgeString(),
		Gender:   gender,
		Region:   strings.ToUpper(strings.TrimSpace(rec.State)),
	}
	method := model.MethodDirectID
	if p.ReusesClubIDs {
		method = model.MethodAliasSuffix
	}

	err := m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateTeam(ctx, team); err != nil {
			return err
		}
		inserted, err := tx.InsertAliasIfAbsent(ctx, &model.TeamAlias{
			Provider:       p.Code,
			ProviderTeamID: key,
			MasterID:       team.ID,
			Method:         method,
			Confidence:     1,
			Status:         model.ReviewApproved,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errAliasTaken
		}
		return nil
	})
	if errors.Is(err, errAliasTaken) {
		return m.reread(ctx, p, key)
	}
	if err != nil {
		return Resolution{}, eris.Wrap(err, "matcher: create team")
	}

	zap.L().Debug("created master team",
		zap.String("component", "matcher"),
		zap.String("master_id", team.ID),
		zap.String("alias_key", key),
	)
	return accepted(PathCreated, team.ID, key), nil
}

// reread returns the mapping a concurrent writer stored under key.
func (m *Matcher) reread(ctx context.Context, p model.Provider, key string) (Resolution, error) {
	a, err := m.getAlias(ctx, p.Code, key)
	if err != nil {
		return Resolution{}, err
	}
	if !a.Usable() {
		return Resolution{}, eris.Errorf("matcher: alias %s/%s conflicted but is not approved", p.Code, key)
	}
	return accepted(PathTier1, a.MasterID, key), nil
}

func (m *Matcher) getAlias(ctx context.Context, provider, id string) (*model.TeamAlias, error) {
	a, err := get(ctx, m, "get_alias", func(ctx context.Context) (*model.TeamAlias, error) {
		return m.store.GetAlias(ctx, provider, id)
	})
	return a, eris.Wrap(err, "matcher: get alias")
}

func get[T any](ctx context.Context, m *Matcher, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg := m.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("matcher", op)
	}
	return resilience.DoVal(ctx, cfg, fn)
}

func accepted(path Path, masterID, key string) Resolution {
	return Resolution{Outcome: OutcomeAccepted, Path: path, MasterID: masterID, AliasKey: key}
}

func quarantined(reason model.QuarantineReason, detail, key string) Resolution {
	return Resolution{Outcome: OutcomeQuarantined, Path: PathQuarantined, Reason: reason, Detail: detail, AliasKey: key}
}

func reviewOf(e *model.ReviewQueueEntry) Resolution {
	res := Resolution{Outcome: OutcomeReview, Path: PathReview, AliasKey: e.AliasKey, ReviewEntryID: e.ID}
	if top := e.Top(); top != nil {
		b := top.Breakdown
		res.Breakdown = &b
	}
	return res
}

func missingField(rec model.ProviderTeamRecord, genderOK bool) string {
	switch {
	case strings.TrimSpace(rec.ProviderTeamID) == "":
		return "provider_team_id"
	case strings.TrimSpace(rec.TeamName) == "":
		return "team_name"
	case !genderOK:
		return "gender"
	}
	return ""
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
