package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/models"
)

// OutputPath is the deterministic location of a day's model under dir
func OutputPath(dir, upstreamDate string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_daily_%s.json", models.Sport, models.CompactDate(upstreamDate)))
}

// WriteModel serializes m and replaces the day's file atomically. Readers
// see either the previous complete document or the new one.
func WriteModel(dir string, m *models.CanonicalDailyModel) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode model: %v", ErrOutputIO, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputIO, err)
	}
	path := OutputPath(dir, m.Date)
	if err := cache.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputIO, err)
	}
	return path, nil
}

// ReadModel loads and validates a previously written model
func ReadModel(path string) (*models.CanonicalDailyModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m models.CanonicalDailyModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	return &m, nil
}
