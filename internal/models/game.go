package models

import (
	"strings"
	"time"
)

// Handedness is the throwing hand of a pitcher
type Handedness string

const (
	ThrowsLeft    Handedness = "L"
	ThrowsRight   Handedness = "R"
	ThrowsSwitch  Handedness = "S"
	ThrowsUnknown Handedness = "unknown"
)

// ParseHandedness normalizes an upstream pitchHand code.
func ParseHandedness(code string) Handedness {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "L":
		return ThrowsLeft
	case "R":
		return ThrowsRight
	case "S":
		return ThrowsSwitch
	default:
		return ThrowsUnknown
	}
}

// PitcherRef identifies a probable starter
type PitcherRef struct {
	PitcherID int        `json:"pitcher_id"`
	FullName  string     `json:"full_name"`
	Throws    Handedness `json:"throws"`
}

// Venue is where a game is played
type Venue struct {
	VenueID int    `json:"venue_id"`
	Name    string `json:"name"`
}

// Game represents one scheduled MLB game.
// A nil probable pitcher means the club has not announced one (TBD).
type Game struct {
	GameID       int         `json:"game_id"`
	UpstreamDate string      `json:"upstream_date"`
	StartInstant time.Time   `json:"start_instant"`
	Away         Team        `json:"away"`
	Home         Team        `json:"home"`
	ProbableAway *PitcherRef `json:"probable_away"`
	ProbableHome *PitcherRef `json:"probable_home"`
	Venue        Venue       `json:"venue"`
	Status       string      `json:"status"`
}

// TBDCount returns how many of the two starters are still unannounced
func (g *Game) TBDCount() int {
	n := 0
	if g.ProbableAway == nil {
		n++
	}
	if g.ProbableHome == nil {
		n++
	}
	return n
}

// ScheduleResponse is the body of GET /schedule
type ScheduleResponse struct {
	Dates []struct {
		Date  string      `json:"date"`
		Games []GameInput `json:"games"`
	} `json:"dates"`
}

// GameInput is a game entry in the schedule response
type GameInput struct {
	GamePk       int    `json:"gamePk"`
	OfficialDate string `json:"officialDate"`
	GameDate     string `json:"gameDate"` // ISO 8601, UTC
	Status       struct {
		AbstractGameState string `json:"abstractGameState"`
		DetailedState     string `json:"detailedState"`
	} `json:"status"`
	Teams struct {
		Away GameSideInput `json:"away"`
		Home GameSideInput `json:"home"`
	} `json:"teams"`
	Venue struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"venue"`
}

// GameSideInput is one side (home or away) of a schedule game
type GameSideInput struct {
	Team            TeamInput `json:"team"`
	ProbablePitcher *struct {
		ID       int    `json:"id"`
		FullName string `json:"fullName"`
	} `json:"probablePitcher,omitempty"`
}

// ToGames flattens the schedule response into games for the requested date
func (r *ScheduleResponse) ToGames(upstreamDate string) []Game {
	var games []Game
	for _, d := range r.Dates {
		if d.Date != "" && d.Date != upstreamDate {
			continue
		}
		for i := range d.Games {
			games = append(games, d.Games[i].ToGame(upstreamDate))
		}
	}
	return games
}

// ToGame converts GameInput (from API) to Game model
func (gi *GameInput) ToGame(upstreamDate string) Game {
	game := Game{
		GameID:       gi.GamePk,
		UpstreamDate: upstreamDate,
		Away:         gi.Teams.Away.Team.ToTeam(),
		Home:         gi.Teams.Home.Team.ToTeam(),
		ProbableAway: gi.Teams.Away.toPitcherRef(),
		ProbableHome: gi.Teams.Home.toPitcherRef(),
		Venue:        Venue{VenueID: gi.Venue.ID, Name: gi.Venue.Name},
		Status:       gi.Status.DetailedState,
	}

	if gi.OfficialDate != "" {
		game.UpstreamDate = gi.OfficialDate
	}

	// Parse start time
	if start, err := time.Parse(time.RFC3339, gi.GameDate); err == nil {
		game.StartInstant = start.UTC()
	}

	return game
}

func (s *GameSideInput) toPitcherRef() *PitcherRef {
	if s.ProbablePitcher == nil || s.ProbablePitcher.ID == 0 {
		return nil
	}
	return &PitcherRef{
		PitcherID: s.ProbablePitcher.ID,
		FullName:  s.ProbablePitcher.FullName,
		Throws:    ThrowsUnknown,
	}
}
