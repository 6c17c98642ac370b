package models

import (
	"fmt"
	"time"
)

const (
	// ModelVersion is bumped on any breaking change to the output document
	ModelVersion = "1.0"
	// Sport is the sport tag written into every document and output path
	Sport = "mlb"
)

// CanonicalDailyModel is the per-day document consumed by renderers
type CanonicalDailyModel struct {
	Version     string      `json:"version"`
	Sport       string      `json:"sport"`
	RunID       string      `json:"run_id"`
	Date        string      `json:"date"` // upstream date, YYYY-MM-DD
	UserDate    string      `json:"user_date"`
	Timezone    string      `json:"timezone"`
	Shifted     bool        `json:"shifted"`
	GeneratedAt time.Time   `json:"generated_at"`
	Sources     Sources     `json:"sources"`
	Freshness   Freshness   `json:"freshness"`
	Summary     Summary     `json:"summary"`
	Warnings    []string    `json:"warnings"`
	Games       []GameBlock `json:"games"`
}

// Sources names the upstreams a document was built from
type Sources struct {
	StatsAPI string `json:"stats_api"`
	Statcast string `json:"statcast"`
	Season   int    `json:"season"`
}

// KindFreshness describes one data kind's contribution to a run
type KindFreshness struct {
	Rows         int    `json:"rows"`
	TodayUpdated bool   `json:"today_updated"`
	Source       string `json:"source"`
}

// Freshness is the per-kind freshness map plus the composite flag
type Freshness struct {
	Kinds      map[string]KindFreshness `json:"kinds"`
	FourOfFour bool                     `json:"four_of_four"`
	Deadline   bool                     `json:"deadline_exceeded,omitempty"`
}

// Summary holds document-level counts
type Summary struct {
	GameCount   int     `json:"game_count"`
	TBDStarters int     `json:"tbd_starters"`
	TBDRate     float64 `json:"tbd_rate"`
}

// NewSummary computes tbd_rate over both starters of every game
func NewSummary(games []GameBlock) Summary {
	s := Summary{GameCount: len(games)}
	for _, g := range games {
		if g.Pitchers.Home.IsTBD() {
			s.TBDStarters++
		}
		if g.Pitchers.Away.IsTBD() {
			s.TBDStarters++
		}
	}
	if s.GameCount > 0 {
		s.TBDRate = float64(s.TBDStarters) / float64(2*s.GameCount)
	}
	return s
}

// GameBlock is one game in the canonical document
type GameBlock struct {
	ID           int            `json:"id"`
	StartInstant time.Time      `json:"start_instant"`
	Venue        Venue          `json:"venue"`
	Status       string         `json:"status"`
	Home         TeamBlock      `json:"home"`
	Away         TeamBlock      `json:"away"`
	Pitchers     PitcherPair    `json:"pitchers"`
	Provenance   GameProvenance `json:"provenance"`
}

// GameProvenance lists subfields that could not be filled for a game
type GameProvenance struct {
	Missing []string `json:"missing"`
}

// TeamBlock merges a team's identity, season line and bullpen
type TeamBlock struct {
	Team    Team              `json:"team"`
	Season  *TeamSeason       `json:"season"`
	Bullpen *BullpenAggregate `json:"bullpen"`
}

// PitcherPair holds both starters of a game
type PitcherPair struct {
	Home PitcherBlock `json:"home"`
	Away PitcherBlock `json:"away"`
}

// TBDName is the name written for an unannounced starter
const TBDName = "TBD"

// PitcherBlock is either a full PitcherSeason or the {"name": "TBD"} marker.
// The embedded pointer keeps the TBD form free of any other keys.
type PitcherBlock struct {
	Name string `json:"name"`
	*PitcherSeason
}

// TBDPitcher returns the marker block for an unannounced starter
func TBDPitcher() PitcherBlock {
	return PitcherBlock{Name: TBDName}
}

// NewPitcherBlock wraps an enriched pitcher
func NewPitcherBlock(ps *PitcherSeason) PitcherBlock {
	if ps == nil {
		return TBDPitcher()
	}
	return PitcherBlock{Name: ps.FullName, PitcherSeason: ps}
}

// IsTBD reports whether the block is the unannounced marker
func (p PitcherBlock) IsTBD() bool {
	return p.PitcherSeason == nil
}

// Validate checks the structural invariants of a finished document
func (m *CanonicalDailyModel) Validate() error {
	if m.Version == "" || m.Sport == "" {
		return fmt.Errorf("model missing version or sport")
	}
	if _, err := time.Parse("2006-01-02", m.Date); err != nil {
		return fmt.Errorf("model date %q: %w", m.Date, err)
	}
	if m.Games == nil {
		return fmt.Errorf("model games must be an array")
	}
	if m.Summary.GameCount != len(m.Games) {
		return fmt.Errorf("summary game_count %d does not match %d games", m.Summary.GameCount, len(m.Games))
	}
	if m.Summary.TBDRate < 0 || m.Summary.TBDRate > 1 {
		return fmt.Errorf("tbd_rate %f out of range", m.Summary.TBDRate)
	}
	for _, g := range m.Games {
		if g.ID == 0 {
			return fmt.Errorf("game without id")
		}
	}
	return nil
}

// CompactDate formats an upstream date as YYYYMMDD for output paths
func CompactDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("20060102")
}
