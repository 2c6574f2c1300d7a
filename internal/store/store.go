// Package store persists master teams, aliases, review entries, games and the
// merge, correction and quarantine ledgers. One SQL implementation serves both
// Postgres (pgx) and SQLite (modernc.org/sqlite).
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/teamresolve/internal/model"
)

var (
	// ErrNotFound is returned by writes that target a row that does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrGameImmutable is returned when a field write targets a locked game.
	ErrGameImmutable = eris.New("store: game is immutable")
	// ErrInTx is returned by lifecycle calls made inside WithTx.
	ErrInTx = eris.New("store: not allowed inside a transaction")
)

// CandidateQuery selects fuzzy-match candidates from master_teams.
type CandidateQuery struct {
	Gender            model.Gender
	Ages              []string
	IncludeUnknownAge bool
	ClubPrefix        string
	Limit             int
}

// CorrectionFilter specifies criteria for listing corrections.
type CorrectionFilter struct {
	GameUID string
	Status  model.CorrectionStatus
	AfterID string
	Limit   int
}

// MergeFilter specifies criteria for listing merges.
type MergeFilter struct {
	Status  model.MergeStatus
	TeamID  string
	AfterID string
	Limit   int
}

// Store defines the persistence interface for team identity resolution.
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	// Providers
	UpsertProvider(ctx context.Context, p model.Provider) error
	GetProvider(ctx context.Context, code string) (*model.Provider, error)
	ListProviders(ctx context.Context) ([]model.Provider, error)

	// Master teams
	CreateTeam(ctx context.Context, t *model.MasterTeam) error
	GetTeam(ctx context.Context, id string) (*model.MasterTeam, error)
	ListCandidates(ctx context.Context, q CandidateQuery) ([]model.MasterTeam, error)
	ListTeams(ctx context.Context, f model.TeamFilter) ([]model.MasterTeam, error)
	ListTeamsMergedInto(ctx context.Context, id string) ([]model.MasterTeam, error)
	DeprecateTeam(ctx context.Context, id, canonicalID string) error
	RestoreTeam(ctx context.Context, id string) error
	SetMergedInto(ctx context.Context, id, target string) error

	// Aliases
	GetAlias(ctx context.Context, provider, providerTeamID string) (*model.TeamAlias, error)
	InsertAliasIfAbsent(ctx context.Context, a *model.TeamAlias) (bool, error)
	CompareAndSetAlias(ctx context.Context, provider, providerTeamID, expectedMaster string, next model.TeamAlias) (bool, error)
	CompareAndSetAliasMaster(ctx context.Context, aliasID, fromMaster, toMaster string) (bool, error)
	ListAliasesByMaster(ctx context.Context, masterID, afterID string, limit int) ([]model.TeamAlias, error)
	CountAliasesByMaster(ctx context.Context, masterID string) (int, error)
	ProviderClubKeys(ctx context.Context, provider string, clubKeys []string) (map[string]bool, error)

	// Review queue
	InsertPendingReview(ctx context.Context, e *model.ReviewQueueEntry) (bool, error)
	GetReview(ctx context.Context, id string) (*model.ReviewQueueEntry, error)
	GetPendingReview(ctx context.Context, provider, aliasKey string) (*model.ReviewQueueEntry, error)
	GetLatestRejectedReview(ctx context.Context, provider, aliasKey string) (*model.ReviewQueueEntry, error)
	ListReviews(ctx context.Context, f model.ReviewFilter) ([]model.ReviewQueueEntry, error)
	ResolveReview(ctx context.Context, id string, status model.ReviewStatus, masterID *string, resolver, note string, at time.Time) (bool, error)

	// Games
	InsertGameIfAbsent(ctx context.Context, g *model.GameRecord) (bool, error)
	GetGame(ctx context.Context, uid string) (*model.GameRecord, error)
	FindGamesByNaturalKey(ctx context.Context, key string) ([]model.GameRecord, error)
	ListGamesByTeam(ctx context.Context, teamID, afterUID string, limit int) ([]model.GameRecord, error)
	CountGamesByTeam(ctx context.Context, teamID string) (int, error)
	ListGames(ctx context.Context, f model.GameFilter) ([]model.GameRecord, error)
	UnlockGame(ctx context.Context, uid, ref string) error
	UpdateGameFields(ctx context.Context, uid string, f model.GameFields) error
	RelockGame(ctx context.Context, uid string) error

	// Held games
	InsertHeldGameIfAbsent(ctx context.Context, h *model.HeldGame) (bool, error)
	ListHeldGamesByReview(ctx context.Context, reviewID string) ([]model.HeldGame, error)
	DeleteHeldGame(ctx context.Context, id string) error

	// Merges
	CreateMerge(ctx context.Context, m *model.MergeRecord) error
	GetMerge(ctx context.Context, id string) (*model.MergeRecord, error)
	ListMerges(ctx context.Context, f MergeFilter) ([]model.MergeRecord, error)
	UpdateMerge(ctx context.Context, m *model.MergeRecord) error
	AddMergeAuditItem(ctx context.Context, item model.MergeAuditItem) error
	ListMergeAuditItems(ctx context.Context, mergeID string) ([]model.MergeAuditItem, error)
	UpsertMergeAudit(ctx context.Context, a *model.MergeAudit) error
	GetMergeAudit(ctx context.Context, mergeID string) (*model.MergeAudit, error)

	// Corrections
	CreateCorrection(ctx context.Context, c *model.GameCorrection) error
	GetCorrection(ctx context.Context, id string) (*model.GameCorrection, error)
	ListCorrections(ctx context.Context, f CorrectionFilter) ([]model.GameCorrection, error)
	UpdateCorrection(ctx context.Context, c *model.GameCorrection) error

	// Quarantine
	AppendQuarantine(ctx context.Context, r *model.QuarantinedRecord) error
	AppendQuarantineBatch(ctx context.Context, rs []model.QuarantinedRecord) (int64, error)
	ListQuarantine(ctx context.Context, f model.QuarantineFilter) ([]model.QuarantinedRecord, error)
	CountQuarantineByReason(ctx context.Context, batchID string) (map[model.QuarantineReason]int, error)
	DeleteQuarantine(ctx context.Context, id string) (bool, error)

	// WithTx runs fn inside one transaction. fn must only use the Store it is
	// given. Nested calls reuse the outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// nowFunc is microsecond-truncated so timestamps survive a Postgres round trip.
var nowFunc = func() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// newID returns a time-ordered id so id order follows insertion order.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > 1000 {
		return 1000
	}
	return n
}
