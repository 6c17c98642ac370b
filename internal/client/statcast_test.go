package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"mlb_daily/ingestion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const battedBallsCSV = "\ufeff" + `pitch_type,game_date,launch_speed,launch_angle,type
FF,2025-08-20,101.2,25,X
SL,2025-08-20,96.0,5,X
CH,2025-08-20,88.4,15,X
FF,2025-08-20,,,S
FF,2025-08-21,99.0,55,X
`

func TestParseBattedBalls(t *testing.T) {
	q, err := ParseBattedBalls(strings.NewReader(battedBallsCSV))
	require.NoError(t, err)

	// 4 valid batted balls: 3 at 95+, 1 barrel (101.2 @ 25)
	assert.Equal(t, 4, q.SampleSize)
	assert.Equal(t, 75.0, q.HardHitPct)
	assert.Equal(t, 25.0, q.BarrelPct)
	assert.Equal(t, models.SourceMeasured, q.Source)
}

func TestParseBattedBalls_EmptyAndMalformed(t *testing.T) {
	q, err := ParseBattedBalls(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, q.SampleSize)

	_, err = ParseBattedBalls(strings.NewReader("a,b,c\n1,2,3\n"))
	assert.Error(t, err, "launch_speed column required")
}

func TestWindow(t *testing.T) {
	start, end, err := Window("2025-08-25", 30)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-26", start)
	assert.Equal(t, "2025-08-24", end)
}

func TestStatcast_AllTeamsQuality(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/statcast_search/csv", r.URL.Path)
		switch r.URL.Query().Get("team") {
		case "NYY":
			_, _ = w.Write([]byte(battedBallsCSV))
		case "BOS":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte("launch_speed,launch_angle\n"))
		}
	}))
	defer srv.Close()

	sc := NewStatcast(srv.URL, testPolicy())
	doc, err := sc.AllTeamsQuality(context.Background(), 2025, "2025-08-25", 30)
	require.NoError(t, err)
	require.Len(t, doc.Teams, 30)

	assert.Equal(t, models.SourceMeasured, doc.Teams[147].Source)
	assert.Equal(t, 75.0, doc.Teams[147].HardHitPct)
	assert.Equal(t, models.DefaultStatcastQuality(), doc.Teams[111], "failed club gets defaults")
	assert.Equal(t, models.SourceDefault, doc.Teams[108].Source, "club without batted balls gets defaults")
	assert.Equal(t, 1, doc.MeasuredCount())
	assert.Equal(t, int32(30+3), atomic.LoadInt32(&calls), "BOS retried three times")
}

func TestStatcast_AllTeamsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	policy := testPolicy()
	policy.Retries = 0
	sc := NewStatcast(srv.URL, policy)

	doc, err := sc.AllTeamsQuality(context.Background(), 2025, "2025-08-25", 30)
	assert.ErrorIs(t, err, ErrUnavailable)
	require.NotNil(t, doc)
	assert.Zero(t, doc.MeasuredCount())
}
