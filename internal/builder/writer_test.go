package builder

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"mlb_daily/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel(games int) *models.CanonicalDailyModel {
	m := &models.CanonicalDailyModel{
		Version:     models.ModelVersion,
		Sport:       models.Sport,
		Date:        "2025-08-25",
		UserDate:    "2025-08-25",
		Timezone:    "Asia/Tokyo",
		GeneratedAt: time.Date(2025, 8, 25, 0, 30, 0, 0, time.UTC),
		Warnings:    []string{},
		Games:       []models.GameBlock{},
	}
	for i := 0; i < games; i++ {
		m.Games = append(m.Games, models.GameBlock{
			ID:         i + 1,
			Pitchers:   models.PitcherPair{Home: models.TBDPitcher(), Away: models.TBDPitcher()},
			Provenance: models.GameProvenance{Missing: []string{}},
		})
	}
	m.Summary = models.NewSummary(m.Games)
	return m
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "models/mlb_daily_20250825.json", OutputPath("models", "2025-08-25"))
}

func TestWriteModel_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := sampleModel(3)

	path, err := WriteModel(dir, m)
	require.NoError(t, err)

	got, err := ReadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestWriteModel_ReadersNeverSeePartialFile(t *testing.T) {
	dir := t.TempDir()
	_, err := WriteModel(dir, sampleModel(1))
	require.NoError(t, err)
	path := OutputPath(dir, "2025-08-25")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = WriteModel(dir, sampleModel(1+i%40))
		}
		close(stop)
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var m models.CanonicalDailyModel
		require.NoError(t, json.Unmarshal(data, &m), "file must always be a complete document")
		require.NoError(t, m.Validate())
	}
}

func TestReadModel_RejectsInvalid(t *testing.T) {
	path := t.TempDir() + "/bad.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0","sport":"mlb","date":"2025-08-25","games":null}`), 0o644))
	_, err := ReadModel(path)
	assert.Error(t, err)
}
