package models

// PersonResponse is the body of GET /people/{id}
type PersonResponse struct {
	People []PersonInput `json:"people"`
}

// PersonInput is a person record from the Stats API
type PersonInput struct {
	ID        int    `json:"id"`
	FullName  string `json:"fullName"`
	PitchHand struct {
		Code string `json:"code"`
	} `json:"pitchHand"`
}

// ToPitcherRef converts PersonInput (from API) to a PitcherRef
func (pi *PersonInput) ToPitcherRef() PitcherRef {
	return PitcherRef{
		PitcherID: pi.ID,
		FullName:  pi.FullName,
		Throws:    ParseHandedness(pi.PitchHand.Code),
	}
}

// RosterResponse is the body of GET /teams/{id}/roster
type RosterResponse struct {
	Roster []RosterEntryInput `json:"roster"`
}

// RosterEntryInput is one roster row
type RosterEntryInput struct {
	Person struct {
		ID       int    `json:"id"`
		FullName string `json:"fullName"`
	} `json:"person"`
	Position struct {
		Abbreviation string `json:"abbreviation"`
		Type         string `json:"type"`
	} `json:"position"`
}

// RosterEntry is a rostered player
type RosterEntry struct {
	PlayerID  int    `json:"player_id"`
	FullName  string `json:"full_name"`
	Position  string `json:"position"`
	IsPitcher bool   `json:"is_pitcher"`
}

// ToRosterEntry converts RosterEntryInput (from API) to RosterEntry
func (ri *RosterEntryInput) ToRosterEntry() RosterEntry {
	return RosterEntry{
		PlayerID: ri.Person.ID,
		FullName: ri.Person.FullName,
		Position: ri.Position.Abbreviation,
		// Two-way players are rostered as TWP and pitch out of the bullpen too
		IsPitcher: ri.Position.Abbreviation == "P" || ri.Position.Type == "Pitcher" || ri.Position.Abbreviation == "TWP",
	}
}

// StatsResponse is the body of the /people/{id}/stats and /teams/{id}/stats endpoints
type StatsResponse struct {
	Stats []struct {
		Splits []StatSplitInput `json:"splits"`
	} `json:"stats"`
}

// StatSplitInput is one row of a stats response
type StatSplitInput struct {
	Season string  `json:"season"`
	Date   string  `json:"date"`
	Stat   StatBag `json:"stat"`
	Split  *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"split,omitempty"`
	Game *struct {
		GamePk int `json:"gamePk"`
	} `json:"game,omitempty"`
}

// AllSplits flattens every split across stat groups
func (r *StatsResponse) AllSplits() []StatSplitInput {
	var out []StatSplitInput
	for _, s := range r.Stats {
		out = append(out, s.Splits...)
	}
	return out
}

// SplitCode returns the situation code of the row ("vl", "vr", ...)
func (s *StatSplitInput) SplitCode() string {
	if s.Split == nil {
		return ""
	}
	return s.Split.Code
}

// GameLine is one game of a pitcher or team game log
type GameLine struct {
	Date         string      `json:"date"`
	GamePk       int         `json:"game_pk"`
	GamesStarted int         `json:"games_started"`
	Outs         Innings     `json:"outs"`
	EarnedRuns   int         `json:"earned_runs"`
	Saves        int         `json:"saves"`
	Holds        int         `json:"holds"`
	Batting      BattingLine `json:"batting"`
}

// ToGameLine converts a game-log split (from API) to GameLine
func (s *StatSplitInput) ToGameLine() GameLine {
	line := GameLine{
		Date:         s.Date,
		GamesStarted: s.Stat.IntOr("gamesStarted", 0),
		EarnedRuns:   s.Stat.IntOr("earnedRuns", 0),
		Saves:        s.Stat.IntOr("saves", 0),
		Holds:        s.Stat.IntOr("holds", 0),
		Batting: BattingLine{
			H:   s.Stat.IntOr("hits", 0),
			AB:  s.Stat.IntOr("atBats", 0),
			BB:  s.Stat.IntOr("baseOnBalls", 0),
			HBP: s.Stat.IntOr("hitByPitch", 0),
			SF:  s.Stat.IntOr("sacFlies", 0),
			TB:  s.Stat.IntOr("totalBases", 0),
		},
	}
	if s.Game != nil {
		line.GamePk = s.Game.GamePk
	}
	if ip, ok := s.Stat.Innings("inningsPitched"); ok {
		line.Outs = ip
	}
	return line
}

// IsQualityStart reports whether the line is a start of 6+ innings with at most 3 earned runs
func (l GameLine) IsQualityStart() bool {
	return l.GamesStarted > 0 && l.Outs >= 18 && l.EarnedRuns <= 3
}

// ToSplitLine converts a handedness split row. ok is false when the row has
// no usable avg/ops, which upstream uses for "no data".
func (s *StatSplitInput) ToSplitLine() (SplitLine, bool) {
	avg, okAvg := s.Stat.Float("avg")
	ops, okOPS := s.Stat.Float("ops")
	if !okAvg || !okOPS {
		return SplitLine{}, false
	}
	var sample *int
	for _, key := range []string{"plateAppearances", "battersFaced", "atBats"} {
		if n, ok := s.Stat.Int(key); ok {
			sample = Ptr(n)
			break
		}
	}
	if sample != nil && *sample == 0 {
		return SplitLine{}, false
	}
	return NewSplitLine(avg, ops, sample, SourceMeasured), true
}
