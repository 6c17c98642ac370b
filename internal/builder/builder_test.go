package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"mlb_daily/ingestion/internal/cache"
	"mlb_daily/ingestion/internal/client"
	"mlb_daily/ingestion/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDate   = "2025-08-25"
	testZone   = "Asia/Tokyo"
	starterID  = 10000
	relieverID = 20000
)

// league is a fake Stats API and Savant serving a full slate
type league struct {
	mu       sync.Mutex
	requests map[string]int

	games        int
	offDay       bool
	tbdHome      map[int]bool // game index -> home starter unannounced
	splitsStatus int          // non-zero fails every pitcher splits call
	down         bool         // every endpoint fails
	onlySchedule bool         // everything but the schedule fails
	delay        time.Duration
}

func newLeague() *league {
	return &league{requests: make(map[string]int), games: 15, tbdHome: make(map[int]bool)}
}

func (l *league) count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[key]
}

func (l *league) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	key := parts[0]
	if len(parts) == 2 && parts[0] == "people" {
		key = "person"
	}
	l.mu.Lock()
	l.requests[key]++
	l.mu.Unlock()

	if l.down || (l.onlySchedule && key != "schedule") {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if key != "schedule" && l.delay > 0 {
		time.Sleep(l.delay)
	}

	q := r.URL.Query()
	switch {
	case key == "schedule":
		writeJSON(w, l.schedule())
	case key == "statcast_search":
		_, _ = w.Write([]byte("launch_speed,launch_angle,type\n101.0,25,X\n96.5,5,X\n88.0,12,X\n92.0,30,X\n"))
	case key == "person":
		id, _ := strconv.Atoi(parts[1])
		writeJSON(w, map[string]interface{}{"people": []interface{}{
			map[string]interface{}{"id": id, "fullName": fmt.Sprintf("Pitcher %d", id), "pitchHand": map[string]string{"code": "R"}},
		}})
	case parts[0] == "people" && len(parts) == 3:
		id, _ := strconv.Atoi(parts[1])
		l.personStats(w, id, q.Get("stats"))
	case parts[0] == "teams" && len(parts) == 3 && parts[2] == "roster":
		id, _ := strconv.Atoi(parts[1])
		writeJSON(w, map[string]interface{}{"roster": []interface{}{
			rosterRow(30000+id, "Long Starter"),
			rosterRow(relieverID+id, "Closer "+parts[1]),
		}})
	case parts[0] == "teams" && len(parts) == 3 && parts[2] == "stats":
		id, _ := strconv.Atoi(parts[1])
		l.teamStats(w, id, q.Get("stats"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (l *league) schedule() interface{} {
	if l.offDay {
		return map[string]interface{}{"dates": []interface{}{}}
	}
	teams := models.LeagueTeams()
	var games []interface{}
	for i := 0; i < l.games; i++ {
		away, home := teams[2*i], teams[2*i+1]
		homeSide := map[string]interface{}{"team": map[string]interface{}{"id": home.TeamID}}
		if !l.tbdHome[i] {
			homeSide["probablePitcher"] = map[string]interface{}{"id": starterID + home.TeamID, "fullName": fmt.Sprintf("Pitcher %d", starterID+home.TeamID)}
		}
		games = append(games, map[string]interface{}{
			"gamePk":   700000 + i,
			"gameDate": fmt.Sprintf("2025-08-25T%02d:05:00Z", 16+i%8),
			"status":   map[string]string{"detailedState": "Scheduled"},
			"teams": map[string]interface{}{
				"away": map[string]interface{}{
					"team":            map[string]interface{}{"id": away.TeamID},
					"probablePitcher": map[string]interface{}{"id": starterID + away.TeamID, "fullName": fmt.Sprintf("Pitcher %d", starterID+away.TeamID)},
				},
				"home": homeSide,
			},
			"venue": map[string]interface{}{"id": 3000 + i, "name": fmt.Sprintf("Park %d", i)},
		})
	}
	return map[string]interface{}{"dates": []interface{}{map[string]interface{}{"date": testDate, "games": games}}}
}

func (l *league) personStats(w http.ResponseWriter, id int, stats string) {
	switch stats {
	case "season":
		bag := map[string]interface{}{
			"gamesPitched": 25, "gamesStarted": 25, "wins": 10, "losses": 6,
			"inningsPitched": "150.1", "era": "3.40", "whip": "1.12", "earnedRuns": 57,
			"homeRuns": 18, "baseOnBalls": 40, "hitByPitch": 4, "strikeOuts": 160,
			"hits": 128, "battersFaced": 620, "avg": ".232", "ops": ".681",
		}
		if id >= relieverID && id < 30000 {
			bag = map[string]interface{}{
				"gamesPitched": 50, "gamesStarted": 0, "saves": 20, "holds": 3,
				"inningsPitched": "50.0", "earnedRuns": 18, "baseOnBalls": 15, "strikeOuts": 60,
				"hits": 42, "homeRuns": 5, "hitByPitch": 1, "battersFaced": 210,
			}
		}
		writeJSON(w, statsBody(map[string]interface{}{"season": "2025", "stat": bag}))
	case "gameLog":
		writeJSON(w, statsBody(
			map[string]interface{}{"date": "2025-08-20", "game": map[string]int{"gamePk": 1}, "stat": map[string]interface{}{"gamesStarted": 1, "inningsPitched": "6.0", "earnedRuns": 2}},
			map[string]interface{}{"date": "2025-08-14", "game": map[string]int{"gamePk": 2}, "stat": map[string]interface{}{"gamesStarted": 1, "inningsPitched": "5.1", "earnedRuns": 4}},
		))
	case "statSplits":
		if l.splitsStatus != 0 {
			w.WriteHeader(l.splitsStatus)
			return
		}
		writeJSON(w, statsBody(
			map[string]interface{}{"split": map[string]string{"code": "vl"}, "stat": map[string]interface{}{"avg": ".221", "ops": ".655", "battersFaced": 260}},
			map[string]interface{}{"split": map[string]string{"code": "vr"}, "stat": map[string]interface{}{"avg": ".240", "ops": ".702", "battersFaced": 360}},
		))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (l *league) teamStats(w http.ResponseWriter, id int, stats string) {
	switch stats {
	case "season":
		writeJSON(w, statsBody(map[string]interface{}{"season": "2025", "stat": map[string]interface{}{
			"avg": ".251", "ops": ".742", "runs": 610, "homeRuns": 170, "atBats": 4400, "hits": 1105,
			"doubles": 210, "triples": 14, "baseOnBalls": 450, "intentionalWalks": 18, "hitByPitch": 55, "sacFlies": 33,
		}}))
	case "statSplits":
		writeJSON(w, statsBody(
			map[string]interface{}{"split": map[string]string{"code": "vl"}, "stat": map[string]interface{}{"avg": ".255", "ops": ".760", "plateAppearances": 1300}},
			map[string]interface{}{"split": map[string]string{"code": "vr"}, "stat": map[string]interface{}{"avg": ".249", "ops": ".735", "plateAppearances": 3500}},
		))
	case "gameLog":
		var rows []interface{}
		for day := 19; day <= 24; day++ {
			rows = append(rows, map[string]interface{}{
				"date": fmt.Sprintf("2025-08-%02d", day),
				"game": map[string]int{"gamePk": id*100 + day},
				"stat": map[string]interface{}{"hits": 9, "atBats": 34, "baseOnBalls": 3, "hitByPitch": 1, "sacFlies": 0, "totalBases": 14},
			})
		}
		writeJSON(w, statsBody(rows...))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func rosterRow(id int, name string) interface{} {
	return map[string]interface{}{
		"person":   map[string]interface{}{"id": id, "fullName": name},
		"position": map[string]string{"abbreviation": "P", "type": "Pitcher"},
	}
}

func statsBody(splits ...interface{}) interface{} {
	return map[string]interface{}{"stats": []interface{}{map[string]interface{}{"splits": splits}}}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	league  *league
	url     string
	backend *cache.FSBackend
	out     string
}

func newHarness(t *testing.T, l *league) *harness {
	t.Helper()
	srv := httptest.NewServer(l)
	t.Cleanup(srv.Close)
	backend, err := cache.NewFSBackend(t.TempDir())
	require.NoError(t, err)
	return &harness{league: l, url: srv.URL, backend: backend, out: t.TempDir()}
}

func (h *harness) builder(deadline time.Duration, storeOpts ...cache.Option) *Builder {
	policy := client.Policy{Timeout: 5 * time.Second, Retries: 0, Concurrency: 8}
	limiter := client.NewLimiter(policy.Concurrency)
	stats := client.NewStatsAPI(h.url, policy, client.DefaultSplitCodes(), client.WithLimiter(limiter))
	statcast := client.NewStatcast(h.url, policy, client.WithLimiter(limiter))
	store := cache.NewStore(h.backend, storeOpts...)
	return New(stats, statcast, store, Options{
		OutputDir:       h.out,
		Concurrency:     8,
		Deadline:        deadline,
		CutoffHour:      9,
		StatsAPIBaseURL: h.url,
		StatcastBaseURL: h.url,
	}, zerolog.Nop())
}

func TestBuild_S1FullSlate(t *testing.T) {
	h := newHarness(t, newLeague())

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)
	m := res.Model

	assert.Equal(t, testDate, m.Date)
	assert.Equal(t, 15, m.Summary.GameCount)
	assert.Equal(t, 0.0, m.Summary.TBDRate)
	assert.True(t, m.Freshness.FourOfFour)
	assert.False(t, m.Shifted)
	assert.NotEmpty(t, m.RunID)
	assert.Equal(t, 2025, m.Sources.Season)

	g := m.Games[0]
	require.False(t, g.Pitchers.Home.IsTBD())
	assert.Equal(t, models.SourceMeasured, g.Pitchers.Home.Provenance.SplitsSource)
	assert.Equal(t, models.ThrowsRight, g.Pitchers.Home.Throws)
	require.NotNil(t, g.Home.Season.HardHitPct)
	assert.Equal(t, 50.0, *g.Home.Season.HardHitPct)
	assert.Equal(t, 25.0, *g.Home.Season.BarrelPct)
	require.NotNil(t, g.Home.Bullpen.CloserName)
	assert.Equal(t, 1, g.Home.Bullpen.RelieverCount)
	assert.Nil(t, g.Home.Season.XWOBA)

	assert.Equal(t, OutputPath(h.out, testDate), res.Path)
	assert.Equal(t, filepath.Join(h.out, "mlb_daily_20250825.json"), res.Path)
	onDisk, err := ReadModel(res.Path)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, onDisk.RunID)
	assert.Len(t, onDisk.Games, 15)
}

func TestBuild_S2SplitsDown(t *testing.T) {
	l := newLeague()
	l.splitsStatus = http.StatusInternalServerError
	h := newHarness(t, l)

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	allowed := []string{models.SourcePriorSeason, models.SourceEstimatedFromSeason, models.SourceLeagueAverage}
	for _, g := range res.Model.Games {
		for _, p := range []models.PitcherBlock{g.Pitchers.Home, g.Pitchers.Away} {
			require.False(t, p.IsTBD())
			assert.Contains(t, allowed, p.Provenance.SplitsSource)
			assert.NotNil(t, p.VsLeft)
			assert.NotNil(t, p.VsRight)
		}
	}
	assert.False(t, res.Model.Freshness.FourOfFour)
	assert.Equal(t, models.ProvenanceFallback, res.Model.Freshness.Kinds[cache.KindPitcherSplits].Source)
}

func TestBuild_S3OffDay(t *testing.T) {
	l := newLeague()
	l.offDay = true
	h := newHarness(t, l)

	res, err := h.builder(time.Minute).Build(context.Background(), "2025-12-25", testZone)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Model.Summary.GameCount)
	assert.Equal(t, 0.0, res.Model.Summary.TBDRate)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, []interface{}{}, doc["games"])
}

func TestBuild_S4TBDStarter(t *testing.T) {
	l := newLeague()
	l.tbdHome[0] = true
	h := newHarness(t, l)

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	var tbd *models.GameBlock
	for i := range res.Model.Games {
		if res.Model.Games[i].ID == 700000 {
			tbd = &res.Model.Games[i]
		}
	}
	require.NotNil(t, tbd)
	assert.True(t, tbd.Pitchers.Home.IsTBD())
	assert.Equal(t, models.TBDName, tbd.Pitchers.Home.Name)
	assert.Equal(t, 1.0/30.0, res.Model.Summary.TBDRate)
	assert.Equal(t, 29, l.count("person"), "no lookup for the unannounced starter")

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var doc struct {
		Games []struct {
			ID       int `json:"id"`
			Pitchers struct {
				Home map[string]interface{} `json:"home"`
			} `json:"pitchers"`
		} `json:"games"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, g := range doc.Games {
		if g.ID == 700000 {
			assert.Equal(t, map[string]interface{}{"name": "TBD"}, g.Pitchers.Home)
		}
	}
}

func TestBuild_S5StatcastFromCache(t *testing.T) {
	h := newHarness(t, newLeague())

	// Seed a three-hour-old aggregate
	now := time.Now()
	seeder := cache.NewStore(h.backend, cache.WithClock(func() time.Time { return now.Add(-3 * time.Hour) }))
	doc := &models.StatcastDocument{Season: 2025, WindowDays: 30, Teams: map[int]models.StatcastQuality{}}
	for _, team := range models.LeagueTeams() {
		doc.Teams[team.TeamID] = models.StatcastQuality{BarrelPct: 9.1, HardHitPct: 41.3, SampleSize: 500, Source: models.SourceMeasured}
	}
	require.NoError(t, seeder.PutJSON(context.Background(), cache.KindStatcastAllTeams, cache.Key(testDate, 30), doc))

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	assert.Equal(t, 0, h.league.count("statcast_search"))
	for _, g := range res.Model.Games {
		for _, tb := range []models.TeamBlock{g.Home, g.Away} {
			assert.Equal(t, models.ProvenanceCache, tb.Season.Provenance.Statcast)
			assert.Equal(t, 41.3, *tb.Season.HardHitPct)
		}
	}
	assert.Equal(t, models.ProvenanceCache, res.Model.Freshness.Kinds[cache.KindStatcastAllTeams].Source)
}

func TestBuild_S6ForceRefresh(t *testing.T) {
	h := newHarness(t, newLeague())
	_, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	start := time.Now().Truncate(time.Second)
	res, err := h.builder(time.Minute, cache.WithForceRefresh(true)).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	for _, kind := range cache.Kinds() {
		kf, ok := res.Model.Freshness.Kinds[kind]
		if !assert.True(t, ok, "%s not reported", kind) {
			continue
		}
		assert.Equal(t, models.ProvenanceLive, kf.Source, kind)
		assert.True(t, kf.TodayUpdated, kind)
		assert.Positive(t, kf.Rows, kind)
	}
	assert.Len(t, res.Model.Freshness.Kinds, len(cache.Kinds()))

	for _, kind := range []string{cache.KindSchedule, cache.KindStatcastAllTeams} {
		key := testDate
		if kind == cache.KindStatcastAllTeams {
			key = cache.Key(testDate, 30)
		}
		info, err := os.Stat(h.backend.Path(kind, key))
		require.NoError(t, err)
		assert.False(t, info.ModTime().Before(start), kind)
	}
}

func TestBuild_TotalWhenEverythingFails(t *testing.T) {
	l := newLeague()
	l.down = true
	h := newHarness(t, l)

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	assert.ErrorIs(t, err, ErrUpstreamUnreachable)
	require.NotNil(t, res)

	m, err := ReadModel(res.Path)
	require.NoError(t, err)
	assert.Empty(t, m.Games)
	assert.False(t, m.Freshness.FourOfFour)
	assert.NotEmpty(t, m.Warnings)
}

func TestBuild_TotalWhenEnrichmentFails(t *testing.T) {
	l := newLeague()
	l.onlySchedule = true
	h := newHarness(t, l)

	res, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	m, err := ReadModel(res.Path)
	require.NoError(t, err)
	require.Len(t, m.Games, 15)
	assert.False(t, m.Freshness.FourOfFour)
	for _, g := range m.Games {
		assert.Equal(t, models.ProvenanceUnavailable, g.Pitchers.Home.Provenance.Status)
		assert.Equal(t, models.SourceLeagueAverage, g.Home.Season.Provenance.SplitsSource)
		assert.Equal(t, models.DefaultHardHitPct, *g.Home.Season.HardHitPct)
		assert.Equal(t, models.ProvenanceFallback, g.Home.Bullpen.Provenance)
		assert.NotEmpty(t, g.Provenance.Missing)
	}
}

func TestBuild_DeadlineEmitsPartialModel(t *testing.T) {
	l := newLeague()
	l.delay = 200 * time.Millisecond
	h := newHarness(t, l)

	res, err := h.builder(50*time.Millisecond).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	assert.True(t, res.Model.Freshness.Deadline)
	assert.False(t, res.Model.Freshness.FourOfFour)
	assert.Equal(t, 15, res.Model.Summary.GameCount)
	_, err = ReadModel(res.Path)
	assert.NoError(t, err)
}

func TestBuild_Idempotent(t *testing.T) {
	h := newHarness(t, newLeague())

	first, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)
	second, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, first.Model.Summary, second.Model.Summary)
	require.Len(t, second.Model.Games, len(first.Model.Games))
	for i := range first.Model.Games {
		a, b := first.Model.Games[i], second.Model.Games[i]
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, *a.Pitchers.Home.FIP, *b.Pitchers.Home.FIP)
		assert.Equal(t, a.Home.Season.VsLHP.OPS, b.Home.Season.VsLHP.OPS)
		assert.Equal(t, *a.Home.Season.Last5OPS.OPS, *b.Home.Season.Last5OPS.OPS)
	}
}

func TestBuild_InvalidDate(t *testing.T) {
	h := newHarness(t, newLeague())
	_, err := h.builder(time.Minute).Build(context.Background(), "2025-13-40", testZone)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBuild_OutputIO(t *testing.T) {
	h := newHarness(t, newLeague())
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	h.out = blocker

	_, err := h.builder(time.Minute).Build(context.Background(), testDate, testZone)
	assert.ErrorIs(t, err, ErrOutputIO)
}
