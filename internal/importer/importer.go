// Package importer drives a batch of upstream game rows through validation,
// team resolution and game import, accounting for every row.
package importer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/teamresolve/internal/identity"
	"github.com/sells-group/teamresolve/internal/matcher"
	"github.com/sells-group/teamresolve/internal/model"
	"github.com/sells-group/teamresolve/internal/normalize"
	"github.com/sells-group/teamresolve/internal/quarantine"
	"github.com/sells-group/teamresolve/internal/resilience"
	"github.com/sells-group/teamresolve/internal/store"
)

// Quarantine details written by the importer.
const (
	DetailUnknownProvider = "unknown_provider"
	DetailSameTeam        = "home_equals_away"
)

// Options configures a Job.
type Options struct {
	// Concurrency bounds the partitions resolved at once. Default: 4.
	Concurrency int
	// RowsPerSecond throttles game writes. Zero disables throttling.
	RowsPerSecond float64
	// Finalize imports games as immutable.
	Finalize bool
	Retry    resilience.RetryConfig
}

// Batch is one upstream delivery.
type Batch struct {
	ID   string
	Rows []model.FeedRow
}

// Report accounts for every row of a batch and every distinct team side.
type Report struct {
	BatchID         string                         `json:"batch_id"`
	Rows            int                            `json:"rows"`
	Imported        int                            `json:"imported"`
	AlreadyImported int                            `json:"already_imported"`
	Held            int                            `json:"held"`
	Quarantined     int                            `json:"quarantined"`
	ByReason        map[model.QuarantineReason]int `json:"by_reason"`
	// Sides counts distinct team sides by the path that resolved them.
	Sides   map[matcher.Path]int `json:"sides"`
	Elapsed time.Duration        `json:"elapsed"`
}

// Accounted reports whether every row reached exactly one terminal state.
func (r Report) Accounted() bool {
	return r.Imported+r.AlreadyImported+r.Held+r.Quarantined == r.Rows
}

func newReport(batchID string, rows int) *Report {
	return &Report{
		BatchID:  batchID,
		Rows:     rows,
		ByReason: make(map[model.QuarantineReason]int),
		Sides:    make(map[matcher.Path]int),
	}
}

// Job imports batches. Run may be called concurrently for different batches.
type Job struct {
	store      store.Store
	matcher    *matcher.Matcher
	quarantine *quarantine.Service
	opts       Options
	limiter    *rate.Limiter
}

// New creates a Job.
func New(st store.Store, m *matcher.Matcher, opts Options) *Job {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	j := &Job{store: st, matcher: m, quarantine: quarantine.New(st), opts: opts}
	if opts.RowsPerSecond > 0 {
		burst := int(opts.RowsPerSecond)
		if burst < 1 {
			burst = 1
		}
		j.limiter = rate.NewLimiter(rate.Limit(opts.RowsPerSecond), burst)
	}
	return j
}

// side is one distinct team side of a batch, keyed by provider and alias key.
type side struct {
	provider  model.Provider
	record    model.ProviderTeamRecord
	key       string
	partition string
	res       matcher.Resolution
}

// row is a validated row waiting for its sides to resolve.
type row struct {
	feed      model.FeedRow
	provider  model.Provider
	home      *side
	away      *side
	date      string
	homeScore int
	awayScore int
}

// Run imports b. Row-level problems are quarantined and reported; the
// returned error is reserved for storage failures and cancellation.
func (j *Job) Run(ctx context.Context, b Batch) (Report, error) {
	start := time.Now()
	if b.ID == "" {
		b.ID = uuid.Must(uuid.NewV7()).String()
	}
	log := zap.L().With(zap.String("component", "importer"), zap.String("batch_id", b.ID))
	log.Info("import started", zap.Int("rows", len(b.Rows)))

	rep := newReport(b.ID, len(b.Rows))
	var quarantined []model.QuarantinedRecord

	rows, sides, err := j.prepare(ctx, b, &quarantined)
	if err != nil {
		return *rep, err
	}
	if err := j.resolve(ctx, b.ID, sides); err != nil {
		return *rep, err
	}
	for _, s := range sides {
		rep.Sides[s.res.Path]++
	}

	for _, r := range rows {
		if err := j.wait(ctx); err != nil {
			return *rep, err
		}
		q, err := j.assemble(ctx, b.ID, r, rep)
		if err != nil {
			return *rep, err
		}
		if q != nil {
			quarantined = append(quarantined, *q)
		}
	}

	for _, q := range quarantined {
		rep.Quarantined++
		rep.ByReason[q.Reason]++
	}
	if _, err := j.quarantine.AppendBatch(ctx, quarantined); err != nil {
		return *rep, eris.Wrap(err, "importer: write quarantine")
	}

	rep.Elapsed = time.Since(start)
	log.Info("import complete",
		zap.Int("imported", rep.Imported),
		zap.Int("already_imported", rep.AlreadyImported),
		zap.Int("held", rep.Held),
		zap.Int("quarantined", rep.Quarantined),
		zap.Int("distinct_sides", len(sides)),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return *rep, nil
}

// prepare validates rows, quarantining failures into q, and collects the
// distinct sides of the survivors.
func (j *Job) prepare(ctx context.Context, b Batch, q *[]model.QuarantinedRecord) ([]*row, map[string]*side, error) {
	providers := make(map[string]*model.Provider)
	sides := make(map[string]*side)
	var rows []*row

	norm := j.matcher.Normalizer()
	for _, fr := range b.Rows {
		if reason, detail, ok := quarantine.ValidateRow(fr); !ok {
			*q = append(*q, quarantineRow(b.ID, fr, reason, detail))
			continue
		}

		code := strings.TrimSpace(fr.Provider)
		p, seen := providers[code]
		if !seen {
			var err error
			p, err = resilience.DoVal(ctx, j.retry("get_provider"), func(ctx context.Context) (*model.Provider, error) {
				return j.store.GetProvider(ctx, code)
			})
			if err != nil {
				return nil, nil, eris.Wrap(err, "importer: get provider")
			}
			providers[code] = p
		}
		if p == nil {
			*q = append(*q, quarantineRow(b.ID, fr, model.ReasonOther, DetailUnknownProvider+": "+code))
			continue
		}
		fr.Provider = p.Code

		r := &row{feed: fr, provider: *p}
		r.date, _ = quarantine.NormalizeDate(fr.GameDate)
		r.homeScore, _ = quarantine.ParseScore(fr.HomeScore)
		r.awayScore, _ = quarantine.ParseScore(fr.AwayScore)

		pending, reject := describeSides(norm, b.ID, fr, *p)
		if reject != nil {
			*q = append(*q, *reject)
			continue
		}
		if pending[0].key == pending[1].key {
			*q = append(*q, quarantineRow(b.ID, fr, model.ReasonOther, DetailSameTeam))
			continue
		}
		for i, ps := range pending {
			id := p.Code + "\x00" + ps.key
			s, ok := sides[id]
			if !ok {
				s = ps
				sides[id] = s
			}
			if i == 0 {
				r.home = s
			} else {
				r.away = s
			}
		}
		rows = append(rows, r)
	}
	return rows, sides, nil
}

// describeSides builds the home and opponent sides of fr, or the
// age-mismatch quarantine of the first side that fails.
func describeSides(norm *normalize.Normalizer, batchID string, fr model.FeedRow, p model.Provider) ([2]*side, *model.QuarantinedRecord) {
	var out [2]*side
	for i, part := range []struct {
		label string
		fs    model.FeedSide
	}{{"team", fr.Team}, {"opponent", fr.Opponent}} {
		rec := fr.Record(part.fs)
		d, err := matcher.Describe(norm, rec)
		if errors.Is(err, matcher.ErrAgeMismatch) {
			q := quarantineRow(batchID, fr, model.ReasonAgeMismatch, part.label+": "+err.Error())
			return out, &q
		}
		g, _ := model.ParseGender(rec.Gender)
		out[i] = &side{
			provider:  p,
			record:    rec,
			key:       identity.AliasKey(p, rec, d),
			partition: identity.PartitionKey(p.Code, g, d.AgeString()),
		}
	}
	return out, nil
}

// resolve runs each partition's sides in key order, partitions in parallel.
func (j *Job) resolve(ctx context.Context, batchID string, sides map[string]*side) error {
	parts := make(map[string][]*side)
	for _, s := range sides {
		parts[s.partition] = append(parts[s.partition], s)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.opts.Concurrency)
	for _, list := range parts {
		sort.Slice(list, func(a, b int) bool { return list[a].key < list[b].key })
		g.Go(func() error {
			for _, s := range list {
				res, err := j.matcher.ResolveRequest(gctx, matcher.Request{
					BatchID: batchID, Provider: s.provider, Record: s.record,
				})
				if err != nil {
					return eris.Wrapf(err, "importer: resolve %s/%s", s.provider.Code, s.key)
				}
				s.res = res
			}
			return nil
		})
	}
	return g.Wait()
}

// assemble moves one row to its terminal state. A returned record is a
// quarantine the caller writes with the rest of the batch.
func (j *Job) assemble(ctx context.Context, batchID string, r *row, rep *Report) (*model.QuarantinedRecord, error) {
	home, away := r.home.res, r.away.res

	if q := sideQuarantine(batchID, r.feed, home, away); q != nil {
		return q, nil
	}

	if home.Outcome == matcher.OutcomeReview || away.Outcome == matcher.OutcomeReview {
		h := &model.HeldGame{BatchID: batchID, GameUID: r.gameUID(), Row: r.feed}
		if home.Outcome == matcher.OutcomeReview {
			h.HomeReviewID = &home.ReviewEntryID
		}
		if away.Outcome == matcher.OutcomeReview {
			h.AwayReviewID = &away.ReviewEntryID
		}
		// A rerun of a row that is already held counts as held again.
		if _, err := j.store.InsertHeldGameIfAbsent(ctx, h); err != nil {
			return nil, eris.Wrap(err, "importer: hold game")
		}
		rep.Held++
		return nil, nil
	}

	st, q, err := j.importGame(ctx, j.store, batchID, r)
	if err != nil {
		return nil, err
	}
	switch st {
	case statusImported:
		rep.Imported++
	case statusAlready:
		rep.AlreadyImported++
	}
	return q, nil
}

func (j *Job) wait(ctx context.Context) error {
	if j.limiter == nil {
		return nil
	}
	return eris.Wrap(j.limiter.Wait(ctx), "importer: rate limit wait")
}

func (j *Job) retry(op string) resilience.RetryConfig {
	cfg := j.opts.Retry
	cfg.OnRetry = resilience.RetryLogger("importer", op)
	return cfg
}
