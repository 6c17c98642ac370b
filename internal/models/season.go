package models

// Source labels recorded on split lines
const (
	SourceMeasured            = "measured"
	SourcePriorSeason         = "prior_season"
	SourceEstimatedFromSeason = "estimated_from_season"
	SourceLeagueAverage       = "league_average"
	SourceDefault             = "default"
)

// Provenance values for data acquisition
const (
	ProvenanceLive        = "live"
	ProvenanceCache       = "cache"
	ProvenanceFallback    = "fallback"
	ProvenanceUnavailable = "unavailable"
	ProvenanceOK          = "ok"
)

// League-wide constants used as the last step of the split fallback chain
const (
	LeagueAverageAVG = 0.243
	LeagueAverageOPS = 0.711
)

// SplitLine is performance conditioned on opposing handedness
type SplitLine struct {
	AVG         float64 `json:"avg"`
	OPS         float64 `json:"ops"`
	SampleSize  *int    `json:"sample_size,omitempty"`
	SourceLabel string  `json:"source_label"`
}

// NewSplitLine rounds avg/ops to three places and tags the source
func NewSplitLine(avg, ops float64, sample *int, source string) SplitLine {
	return SplitLine{
		AVG:         Round(avg, 3),
		OPS:         Round(ops, 3),
		SampleSize:  sample,
		SourceLabel: source,
	}
}

// LeagueAverageSplit is the terminal fallback split
func LeagueAverageSplit() SplitLine {
	return NewSplitLine(LeagueAverageAVG, LeagueAverageOPS, nil, SourceLeagueAverage)
}

// SplitPair holds the two handedness splits; either side may be missing
type SplitPair struct {
	Left  *SplitLine `json:"left"`
	Right *SplitLine `json:"right"`
}

// Complete reports whether both sides are present
func (p SplitPair) Complete() bool {
	return p.Left != nil && p.Right != nil
}

// Empty reports whether neither side is present
func (p SplitPair) Empty() bool {
	return p.Left == nil && p.Right == nil
}

// PitcherProvenance records how each part of a PitcherSeason was obtained
type PitcherProvenance struct {
	Status       string   `json:"status"`
	Info         string   `json:"info"`
	Season       string   `json:"season"`
	GameLog      string   `json:"game_log,omitempty"`
	SplitsSource string   `json:"splits_source,omitempty"`
	Missing      []string `json:"missing,omitempty"`
}

// PitcherSeason is a pitcher's season composite
type PitcherSeason struct {
	PitcherID      int        `json:"pitcher_id"`
	FullName       string     `json:"full_name"`
	Throws         Handedness `json:"throws"`
	Season         int        `json:"season"`
	Wins           *int       `json:"wins"`
	Losses         *int       `json:"losses"`
	GamesStarted   *int       `json:"games_started"`
	InningsPitched *string    `json:"innings_pitched"`
	ERA            *float64   `json:"era"`
	FIP            *float64   `json:"fip"`
	WHIP           *float64   `json:"whip"`
	KPct           *float64   `json:"k_pct"`
	BBPct          *float64   `json:"bb_pct"`
	KMinusBBPct    *float64   `json:"k_minus_bb_pct"`
	QSRate         *float64   `json:"qs_rate,omitempty"`
	VsLeft         *SplitLine `json:"vs_left"`
	VsRight        *SplitLine `json:"vs_right"`

	// Present only when the upstream stat bag carries them directly
	SwStrPct *float64 `json:"swstr_pct,omitempty"`
	BABIP    *float64 `json:"babip,omitempty"`
	GBPct    *float64 `json:"gb_pct,omitempty"`
	FBPct    *float64 `json:"fb_pct,omitempty"`

	Provenance PitcherProvenance `json:"provenance"`
}

// TeamProvenance records how each part of a TeamSeason was obtained
type TeamProvenance struct {
	Season       string   `json:"season"`
	SplitsSource string   `json:"splits_source,omitempty"`
	RecentOPS    string   `json:"recent_ops,omitempty"`
	Statcast     string   `json:"statcast,omitempty"`
	Missing      []string `json:"missing,omitempty"`
}

// RecentOPS is composite OPS over a team's most recent games
type RecentOPS struct {
	OPS        *float64 `json:"ops"`
	SampleSize int      `json:"sample_size"`
}

// TeamSeason is a team's offensive composite
type TeamSeason struct {
	TeamID     int            `json:"team_id"`
	Season     int            `json:"season"`
	AVG        *float64       `json:"avg"`
	OPS        *float64       `json:"ops"`
	Runs       *int           `json:"runs"`
	HR         *int           `json:"hr"`
	WOBA       *float64       `json:"woba"`
	XWOBA      *float64       `json:"xwoba"` // never estimated locally
	VsLHP      *SplitLine     `json:"vs_lhp"`
	VsRHP      *SplitLine     `json:"vs_rhp"`
	Last5OPS   *RecentOPS     `json:"last_5_ops"`
	Last10OPS  *RecentOPS     `json:"last_10_ops"`
	BarrelPct  *float64       `json:"barrel_pct"`
	HardHitPct *float64       `json:"hard_hit_pct"`
	Provenance TeamProvenance `json:"provenance"`
}

// Closer selection policies
const (
	CloserSeasonSaves = "season_saves"
	CloserRecentSaves = "recent_saves"
)

// BullpenAggregate is the innings-weighted line of a team's relievers
type BullpenAggregate struct {
	TeamID        int      `json:"team_id"`
	Season        int      `json:"season"`
	RelieverCount int      `json:"reliever_count"`
	ERA           *float64 `json:"era"`
	FIP           *float64 `json:"fip"`
	WHIP          *float64 `json:"whip"`
	KMinusBBPct   *float64 `json:"k_minus_bb_pct"`
	CloserName    *string  `json:"closer_name,omitempty"`
	SetupName     *string  `json:"setup_name,omitempty"`
	FatigueNote   *string  `json:"fatigue_note,omitempty"`
	Provenance    string   `json:"provenance"`
	Missing       []string `json:"missing,omitempty"`
}

// Statcast league-neutral defaults, in percentage points
const (
	DefaultBarrelPct  = 8.0
	DefaultHardHitPct = 40.0
)

// StatcastQuality is team batted-ball quality over a rolling window
type StatcastQuality struct {
	BarrelPct  float64 `json:"barrel_pct"`
	HardHitPct float64 `json:"hard_hit_pct"`
	SampleSize int     `json:"sample_size"`
	Source     string  `json:"source"`
}

// DefaultStatcastQuality is used for clubs the upstream returned nothing for
func DefaultStatcastQuality() StatcastQuality {
	return StatcastQuality{
		BarrelPct:  DefaultBarrelPct,
		HardHitPct: DefaultHardHitPct,
		Source:     SourceDefault,
	}
}

// StatcastDocument is the all-teams aggregate keyed by team ID
type StatcastDocument struct {
	Season     int                     `json:"season"`
	WindowDays int                     `json:"window_days"`
	StartDate  string                  `json:"start_date"`
	EndDate    string                  `json:"end_date"`
	Teams      map[int]StatcastQuality `json:"teams"`
}

// MeasuredCount returns how many clubs carry real measurements
func (d *StatcastDocument) MeasuredCount() int {
	n := 0
	for _, q := range d.Teams {
		if q.Source != SourceDefault {
			n++
		}
	}
	return n
}
