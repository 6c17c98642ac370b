package client

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mlb_daily/ingestion/internal/models"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultStatcastBaseURL is the Baseball Savant root
	DefaultStatcastBaseURL = "https://baseballsavant.mlb.com"

	// DefaultWindowDays is the rolling window for team batted-ball quality
	DefaultWindowDays = 30

	hardHitMPH   = 95.0
	barrelMPH    = 98.0
	barrelMinDeg = 10.0
	barrelMaxDeg = 50.0
)

// Statcast reads per-batted-ball CSV from Baseball Savant and reduces it to
// team quality metrics.
type Statcast struct {
	core *httpCore
}

// NewStatcast creates a Statcast client
func NewStatcast(baseURL string, policy Policy, opts ...Option) *Statcast {
	if baseURL == "" {
		baseURL = DefaultStatcastBaseURL
	}
	return &Statcast{
		core: newHTTPCore("statcast", baseURL, "text/csv", policy, opts...),
	}
}

// BaseURL returns the configured Savant root
func (c *Statcast) BaseURL() string {
	return c.core.baseURL
}

// Window returns the inclusive date range ending the day before asOf
func Window(asOf string, windowDays int) (string, string, error) {
	if windowDays < 1 {
		windowDays = DefaultWindowDays
	}
	d, err := time.Parse("2006-01-02", asOf)
	if err != nil {
		return "", "", fmt.Errorf("invalid date %q: %w", asOf, err)
	}
	end := d.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(windowDays - 1))
	return start.Format("2006-01-02"), end.Format("2006-01-02"), nil
}

// AllTeamsQuality fetches every club's window concurrently. Clubs whose
// request fails or returns no batted balls get league-neutral defaults. The
// error is ErrUnavailable only when no club could be fetched at all.
func (c *Statcast) AllTeamsQuality(ctx context.Context, season int, asOf string, windowDays int) (*models.StatcastDocument, error) {
	if windowDays < 1 {
		windowDays = DefaultWindowDays
	}
	start, end, err := Window(asOf, windowDays)
	if err != nil {
		return nil, err
	}

	teams := models.LeagueTeams()
	results := make([]models.StatcastQuality, len(teams))
	failures := make([]error, len(teams))

	// The shared limiter bounds concurrency; the group only waits
	var g errgroup.Group
	for i, team := range teams {
		i, team := i, team
		g.Go(func() error {
			q, err := c.TeamQuality(ctx, season, team.ShortCode, start, end)
			if err != nil {
				failures[i] = err
				results[i] = models.DefaultStatcastQuality()
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	doc := &models.StatcastDocument{
		Season:     season,
		WindowDays: windowDays,
		StartDate:  start,
		EndDate:    end,
		Teams:      make(map[int]models.StatcastQuality, len(teams)),
	}
	failed := 0
	for i, team := range teams {
		doc.Teams[team.TeamID] = results[i]
		if failures[i] != nil && !errors.Is(failures[i], ErrNotFound) {
			failed++
		}
	}

	if failed == len(teams) {
		return doc, transient("statcast_search", 0, fmt.Errorf("all %d team requests failed: %w", failed, errors.Join(failures...)))
	}
	if err := ctx.Err(); err != nil {
		return doc, err
	}
	return doc, nil
}

// TeamQuality fetches one club's batted balls between start and end
func (c *Statcast) TeamQuality(ctx context.Context, season int, teamCode, start, end string) (models.StatcastQuality, error) {
	params := url.Values{}
	params.Set("all", "true")
	params.Set("hfGT", "R|")
	params.Set("hfSea", fmt.Sprintf("%d|", season))
	params.Set("player_type", "batter")
	params.Set("team", teamCode)
	params.Set("game_date_gt", start)
	params.Set("game_date_lt", end)
	params.Set("type", "details")

	body, err := c.core.get(ctx, "statcast_search", "/statcast_search/csv", params)
	if err != nil {
		return models.StatcastQuality{}, err
	}

	q, err := ParseBattedBalls(bytes.NewReader(body))
	if err != nil {
		return models.StatcastQuality{}, schema("statcast_search", err)
	}
	if q.SampleSize == 0 {
		return models.StatcastQuality{}, missing("statcast_search", 0, ErrNotFound)
	}
	return q, nil
}

// ParseBattedBalls reduces Savant pitch-level CSV to hard-hit and barrel
// rates over rows with a valid exit velocity.
func ParseBattedBalls(r io.Reader) (models.StatcastQuality, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return models.StatcastQuality{}, nil
	}
	if err != nil {
		return models.StatcastQuality{}, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")
		cols[strings.Trim(name, `"`)] = i
	}
	evCol, ok := cols["launch_speed"]
	if !ok {
		return models.StatcastQuality{}, fmt.Errorf("csv has no launch_speed column")
	}
	laCol, hasLA := cols["launch_angle"]
	typeCol, hasType := cols["type"]

	var valid, hardHit, barrels int
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.StatcastQuality{}, fmt.Errorf("read csv row: %w", err)
		}
		if hasType && typeCol < len(rec) && rec[typeCol] != "X" {
			continue
		}
		ev, ok := csvFloat(rec, evCol)
		if !ok || ev <= 0 {
			continue
		}
		valid++
		if ev >= hardHitMPH {
			hardHit++
		}
		if hasLA && ev >= barrelMPH {
			if la, ok := csvFloat(rec, laCol); ok && la >= barrelMinDeg && la <= barrelMaxDeg {
				barrels++
			}
		}
	}

	if valid == 0 {
		return models.StatcastQuality{}, nil
	}
	return models.StatcastQuality{
		BarrelPct:  models.Round(100*float64(barrels)/float64(valid), 1),
		HardHitPct: models.Round(100*float64(hardHit)/float64(valid), 1),
		SampleSize: valid,
		Source:     models.SourceMeasured,
	}, nil
}

func csvFloat(rec []string, col int) (float64, bool) {
	if col >= len(rec) {
		return 0, false
	}
	s := strings.TrimSpace(rec[col])
	if s == "" || s == "null" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
