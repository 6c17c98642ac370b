package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"mlb_daily/ingestion/internal/models"
)

const (
	// DefaultStatsAPIBaseURL is the public MLB Stats API root
	DefaultStatsAPIBaseURL = "https://statsapi.mlb.com/api/v1"

	sportIDMLB = "1"
)

// Stat groups accepted by team_season
const (
	GroupHitting  = "hitting"
	GroupPitching = "pitching"
)

// SplitCodes are the situation codes the splits endpoint uses for
// "versus left-handed" and "versus right-handed".
type SplitCodes struct {
	Left  string
	Right string
}

// DefaultSplitCodes are the codes the live API currently accepts
func DefaultSplitCodes() SplitCodes {
	return SplitCodes{Left: "vl", Right: "vr"}
}

// StatsAPI is a read-only client for the MLB Stats API. Operations are
// shaped by what the pipeline needs, not by URL layout.
type StatsAPI struct {
	core  *httpCore
	codes SplitCodes
}

// NewStatsAPI creates a Stats API client
func NewStatsAPI(baseURL string, policy Policy, codes SplitCodes, opts ...Option) *StatsAPI {
	if baseURL == "" {
		baseURL = DefaultStatsAPIBaseURL
	}
	if codes.Left == "" || codes.Right == "" {
		codes = DefaultSplitCodes()
	}
	return &StatsAPI{
		core:  newHTTPCore("stats_api", baseURL, "application/json", policy, opts...),
		codes: codes,
	}
}

// BaseURL returns the configured API root
func (c *StatsAPI) BaseURL() string {
	return c.core.baseURL
}

func (c *StatsAPI) getJSON(ctx context.Context, endpoint, path string, params url.Values, v interface{}) error {
	body, err := c.core.get(ctx, endpoint, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return schema(endpoint, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Schedule returns the games of one upstream date with probable starters
// when the clubs have announced them. An off day is an empty slice.
func (c *StatsAPI) Schedule(ctx context.Context, upstreamDate string) ([]models.Game, error) {
	params := url.Values{}
	params.Set("sportId", sportIDMLB)
	params.Set("date", upstreamDate)
	params.Set("hydrate", "probablePitcher,team,venue")

	var resp models.ScheduleResponse
	if err := c.getJSON(ctx, "schedule", "/schedule", params, &resp); err != nil {
		return nil, err
	}

	games := resp.ToGames(upstreamDate)
	if games == nil {
		games = []models.Game{}
	}
	return games, nil
}

// Roster returns the active roster of a team
func (c *StatsAPI) Roster(ctx context.Context, teamID, season int) ([]models.RosterEntry, error) {
	params := url.Values{}
	params.Set("rosterType", "active")
	params.Set("season", strconv.Itoa(season))

	var resp models.RosterResponse
	path := fmt.Sprintf("/teams/%d/roster", teamID)
	if err := c.getJSON(ctx, "roster", path, params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Roster) == 0 {
		return nil, missing("roster", 0, ErrNotFound)
	}

	entries := make([]models.RosterEntry, 0, len(resp.Roster))
	for i := range resp.Roster {
		entries = append(entries, resp.Roster[i].ToRosterEntry())
	}
	return entries, nil
}

// Person returns a pitcher's name and throwing hand
func (c *StatsAPI) Person(ctx context.Context, personID int) (models.PitcherRef, error) {
	var resp models.PersonResponse
	path := fmt.Sprintf("/people/%d", personID)
	if err := c.getJSON(ctx, "person", path, nil, &resp); err != nil {
		return models.PitcherRef{}, err
	}
	if len(resp.People) == 0 {
		return models.PitcherRef{}, missing("person", 0, ErrNotFound)
	}
	return resp.People[0].ToPitcherRef(), nil
}

func (c *StatsAPI) personStats(ctx context.Context, endpoint string, personID int, params url.Values) ([]models.StatSplitInput, error) {
	var resp models.StatsResponse
	path := fmt.Sprintf("/people/%d/stats", personID)
	if err := c.getJSON(ctx, endpoint, path, params, &resp); err != nil {
		return nil, err
	}
	splits := resp.AllSplits()
	if len(splits) == 0 {
		// Empty arrays mean "no data", never zeros
		return nil, missing(endpoint, 0, ErrNotFound)
	}
	return splits, nil
}

func (c *StatsAPI) teamStats(ctx context.Context, endpoint string, teamID int, params url.Values) ([]models.StatSplitInput, error) {
	var resp models.StatsResponse
	path := fmt.Sprintf("/teams/%d/stats", teamID)
	if err := c.getJSON(ctx, endpoint, path, params, &resp); err != nil {
		return nil, err
	}
	splits := resp.AllSplits()
	if len(splits) == 0 {
		return nil, missing(endpoint, 0, ErrNotFound)
	}
	return splits, nil
}

func statsParams(stats, group string, season int) url.Values {
	params := url.Values{}
	params.Set("stats", stats)
	params.Set("group", group)
	params.Set("season", strconv.Itoa(season))
	params.Set("sportId", sportIDMLB)
	return params
}

// PitcherSeason returns the raw season pitching stat bag
func (c *StatsAPI) PitcherSeason(ctx context.Context, pitcherID, season int) (models.StatBag, error) {
	splits, err := c.personStats(ctx, "pitcher_season", pitcherID, statsParams("season", GroupPitching, season))
	if err != nil {
		return nil, err
	}
	return firstBag(splits, "pitcher_season")
}

// PitcherGameLog returns one line per appearance in the season
func (c *StatsAPI) PitcherGameLog(ctx context.Context, pitcherID, season int) ([]models.GameLine, error) {
	splits, err := c.personStats(ctx, "pitcher_game_log", pitcherID, statsParams("gameLog", GroupPitching, season))
	if err != nil {
		return nil, err
	}
	return gameLines(splits), nil
}

// PitcherSplits returns opponent batting versus left and right-handed
// hitters. A pair with one nil side is a partial result; an empty response
// is ErrNotFound; repeated 5xx is ErrUnavailable.
func (c *StatsAPI) PitcherSplits(ctx context.Context, pitcherID, season int) (models.SplitPair, error) {
	params := statsParams("statSplits", GroupPitching, season)
	params.Set("sitCodes", c.codes.Left+","+c.codes.Right)

	splits, err := c.personStats(ctx, "pitcher_splits", pitcherID, params)
	if err != nil {
		return models.SplitPair{}, err
	}
	return c.splitPair(splits, "pitcher_splits")
}

// TeamSeason returns the raw team season stat bag for group
func (c *StatsAPI) TeamSeason(ctx context.Context, teamID, season int, group string) (models.StatBag, error) {
	if group != GroupHitting && group != GroupPitching {
		return nil, fmt.Errorf("unknown stat group %q", group)
	}
	splits, err := c.teamStats(ctx, "team_season", teamID, statsParams("season", group, season))
	if err != nil {
		return nil, err
	}
	return firstBag(splits, "team_season")
}

// TeamSplits returns team batting versus left and right-handed pitchers
func (c *StatsAPI) TeamSplits(ctx context.Context, teamID, season int) (models.SplitPair, error) {
	params := statsParams("statSplits", GroupHitting, season)
	params.Set("sitCodes", c.codes.Left+","+c.codes.Right)

	splits, err := c.teamStats(ctx, "team_splits", teamID, params)
	if err != nil {
		return models.SplitPair{}, err
	}
	return c.splitPair(splits, "team_splits")
}

// TeamGameLog returns the team's per-game lines for group, oldest first
func (c *StatsAPI) TeamGameLog(ctx context.Context, teamID, season int, group string) ([]models.GameLine, error) {
	splits, err := c.teamStats(ctx, "team_game_log", teamID, statsParams("gameLog", group, season))
	if err != nil {
		return nil, err
	}
	return gameLines(splits), nil
}

func (c *StatsAPI) splitPair(splits []models.StatSplitInput, endpoint string) (models.SplitPair, error) {
	var pair models.SplitPair
	for i := range splits {
		line, ok := splits[i].ToSplitLine()
		if !ok {
			continue
		}
		switch splits[i].SplitCode() {
		case c.codes.Left:
			pair.Left = &line
		case c.codes.Right:
			pair.Right = &line
		}
	}
	if pair.Empty() {
		return pair, missing(endpoint, 0, ErrNotFound)
	}
	return pair, nil
}

func firstBag(splits []models.StatSplitInput, endpoint string) (models.StatBag, error) {
	for _, s := range splits {
		if len(s.Stat) > 0 {
			return s.Stat, nil
		}
	}
	return nil, missing(endpoint, 0, ErrNotFound)
}

func gameLines(splits []models.StatSplitInput) []models.GameLine {
	lines := make([]models.GameLine, 0, len(splits))
	for i := range splits {
		lines = append(lines, splits[i].ToGameLine())
	}
	return lines
}
