package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Import.Concurrency)
	assert.True(t, cfg.Import.Finalize)
	assert.Equal(t, 2000, cfg.Normalize.MinBirthYear)
	assert.Equal(t, 2025, cfg.Normalize.MaxBirthYear)
	assert.InDelta(t, 0.95, cfg.Matcher.AutoAccept, 0.001)
	assert.InDelta(t, 0.85, cfg.Matcher.ReviewAgreement, 0.001)
	assert.InDelta(t, 0.70, cfg.Matcher.ReviewPartial, 0.001)
	assert.InDelta(t, 0.50, cfg.Matcher.QuarantineFloor, 0.001)
	assert.Equal(t, 5, cfg.Matcher.CandidateLimit)
	assert.True(t, cfg.Matcher.CreateOnNoMatch)
	assert.InDelta(t, 0.55, cfg.Scorer.NameWeight, 0.001)
	assert.InDelta(t, 0.15, cfg.Scorer.GenderWeight, 0.001)
	assert.InDelta(t, 0.25, cfg.Scorer.AgeWeight, 0.001)
	assert.InDelta(t, 0.05, cfg.Scorer.PriorWeight, 0.001)
	assert.InDelta(t, 0.95, cfg.Review.SafeMin, 0.001)
	assert.InDelta(t, 0.88, cfg.Review.NeedsReviewMin, 0.001)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 500, cfg.Monitoring.ReviewBacklogThreshold)
	assert.Empty(t, cfg.Providers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: teams.db
log:
  level: debug
  format: console
matcher:
  auto_accept: 0.97
providers:
  - code: gotsport
    name: GotSport
  - code: clubhub
    name: Club Hub
    reuses_club_ids: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "teams.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.97, cfg.Matcher.AutoAccept, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.85, cfg.Matcher.ReviewAgreement, 0.001)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "clubhub", cfg.Providers[1].Code)
	assert.True(t, cfg.Providers[1].ReusesClubIDs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TEAMRESOLVE_STORE_DRIVER", "postgres")
	t.Setenv("TEAMRESOLVE_LOG_LEVEL", "warn")
	t.Setenv("TEAMRESOLVE_IMPORT_CONCURRENCY", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Import.Concurrency)
}

func TestLoadRejectsUnorderedThresholds(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
matcher:
  auto_accept: 0.80
  review_agreement: 0.85
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auto_accept >= review_agreement")
}

func TestValidate_DuplicateProvider(t *testing.T) {
	cfg := &Config{
		Matcher:   MatcherConfig{AutoAccept: 0.95, ReviewAgreement: 0.85, ReviewPartial: 0.7, QuarantineFloor: 0.5, CandidateLimit: 5},
		Review:    ReviewConfig{SafeMin: 0.95, NeedsReviewMin: 0.88},
		Import:    ImportConfig{Concurrency: 1},
		Providers: []ProviderConfig{{Code: "a"}, {Code: "a"}, {Name: "nameless"}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate code "a"`)
	assert.Contains(t, err.Error(), "code is required")
}

func TestValidate_PolicyFileSkipsBandOrdering(t *testing.T) {
	cfg := &Config{
		Matcher: MatcherConfig{PolicyFile: "policy.yaml", CandidateLimit: 5},
		Review:  ReviewConfig{SafeMin: 0.95, NeedsReviewMin: 0.88},
		Import:  ImportConfig{Concurrency: 1},
	}
	assert.NoError(t, cfg.Validate())
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
