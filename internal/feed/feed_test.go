package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const sampleCSV = "\ufeffProvider,Team ID,Team Name,Club,Age Group,Gender,Opponent_Team_ID,Opponent Team Name,Opponent-Gender,Game Date,Home Score,Away Score,Notes\n" +
	"gotsport,101,Solar SC 2014 Blue,Solar SC,U11,Boys,202,Texans 2014,Boys,09/14/2024,2,1,ignored\n" +
	",,,,,,,,,,,,\n" +
	",103,FC Dallas 14B,,,M,204,Sting 14B,M,2024-09-15,0,0,\n"

func TestReadCSV(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV), Options{Provider: "fallback", Source: "s.csv"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	r := rows[0]
	assert.Equal(t, "gotsport", r.Provider)
	assert.Equal(t, "101", r.Team.ProviderTeamID)
	assert.Equal(t, "Solar SC 2014 Blue", r.Team.TeamName)
	assert.Equal(t, "Solar SC", r.Team.ClubName)
	assert.Equal(t, "U11", r.Team.AgeGroup)
	assert.Equal(t, "202", r.Opponent.ProviderTeamID)
	assert.Equal(t, "Texans 2014", r.Opponent.TeamName)
	assert.Equal(t, "Boys", r.Opponent.Gender)
	assert.Equal(t, "09/14/2024", r.GameDate)
	assert.Equal(t, "2", r.HomeScore)
	assert.Equal(t, "s.csv", r.Source)
	assert.Equal(t, 2, r.Line)

	assert.Equal(t, "fallback", rows[1].Provider)
	assert.Equal(t, 4, rows[1].Line)
}

func TestReadCSV_NoKnownColumns(t *testing.T) {
	_, err := ReadCSV(context.Background(), strings.NewReader("a,b\n1,2\n"), Options{})
	assert.ErrorIs(t, err, ErrNoColumns)

	rows, err := ReadCSV(context.Background(), strings.NewReader(""), Options{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadJSON(t *testing.T) {
	in := `[
		{"provider": "gotsport", "provider_team_id": 101, "team_name": "Solar SC 2014 Blue", "gender": "M",
		 "opponent_provider_team_id": "202", "opponent_team_name": "Texans", "opponent_gender": "M",
		 "game_date": "2024-09-14", "home_score": 3, "away_score": null},
		{"Team_Name": "Sting", "extra": {"nested": true}}
	]`
	rows, err := ReadJSON(context.Background(), strings.NewReader(in), Options{Provider: "league"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "101", rows[0].Team.ProviderTeamID)
	assert.Equal(t, "3", rows[0].HomeScore)
	assert.Equal(t, "", rows[0].AwayScore)
	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, "league", rows[1].Provider)
	assert.Equal(t, "Sting", rows[1].Team.TeamName)

	_, err = ReadJSON(context.Background(), strings.NewReader(`{"a":1}`), Options{})
	assert.Error(t, err)
}

func writeXLSX(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, cells := range rows {
		row := sh.AddRow()
		for _, c := range cells {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "games.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeXLSX(t, "Results", [][]string{
		{"provider_team_id", "team_name", "gender", "opponent_provider_team_id", "opponent_team_name", "opponent_gender", "game_date", "home_score", "away_score"},
		{"1", "Solar", "F", "2", "Texans", "F", "2024-09-14", "1", "1"},
	})

	rows, err := ReadFile(context.Background(), path, "", Options{Provider: "gotsport", Sheet: "Results"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gotsport", rows[0].Provider)
	assert.Equal(t, "Texans", rows[0].Opponent.TeamName)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "games.xlsx", rows[0].Source)

	_, err = ReadXLSX(path, Options{Sheet: "Missing"})
	assert.Error(t, err)
}

func TestReadFile_Dispatch(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "feed.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))

	rows, err := ReadFile(context.Background(), csvPath, "", Options{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadFile(context.Background(), filepath.Join(dir, "feed.txt"), "", Options{})
	assert.Error(t, err)

	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
}

func TestDownloader(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "teamresolve/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	d := NewDownloader(HTTPOptions{Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}})
	path, err := d.Download(context.Background(), srv.URL+"/exports/week1.csv", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "week1.csv", filepath.Base(path))
	assert.Equal(t, int32(2), calls.Load())

	rows, err := ReadFile(context.Background(), path, "", Options{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestDownloader_ClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDownloader(HTTPOptions{Retry: resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}})
	_, err := d.Download(context.Background(), srv.URL+"/missing.csv", t.TempDir())
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsURL(srv.URL))
	assert.False(t, IsURL("/tmp/feed.csv"))
}
