package models

import "sort"

// Team represents an MLB club
type Team struct {
	TeamID        int    `json:"team_id"`
	CanonicalName string `json:"canonical_name"`
	ShortCode     string `json:"short_code"`
}

// TeamInput is the team object embedded in Stats API responses
type TeamInput struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// ToTeam converts TeamInput (from API) to Team model.
// Missing names are filled from the static league table.
func (ti *TeamInput) ToTeam() Team {
	team := Team{
		TeamID:        ti.ID,
		CanonicalName: ti.Name,
		ShortCode:     ti.Abbreviation,
	}

	if known, ok := TeamByID(ti.ID); ok {
		if team.CanonicalName == "" {
			team.CanonicalName = known.CanonicalName
		}
		if team.ShortCode == "" {
			team.ShortCode = known.ShortCode
		}
	}

	return team
}

// leagueTeams is the 30-club table; ShortCode doubles as the Statcast team code.
var leagueTeams = map[int]Team{
	108: {108, "Los Angeles Angels", "LAA"},
	109: {109, "Arizona Diamondbacks", "AZ"},
	110: {110, "Baltimore Orioles", "BAL"},
	111: {111, "Boston Red Sox", "BOS"},
	112: {112, "Chicago Cubs", "CHC"},
	113: {113, "Cincinnati Reds", "CIN"},
	114: {114, "Cleveland Guardians", "CLE"},
	115: {115, "Colorado Rockies", "COL"},
	116: {116, "Detroit Tigers", "DET"},
	117: {117, "Houston Astros", "HOU"},
	118: {118, "Kansas City Royals", "KC"},
	119: {119, "Los Angeles Dodgers", "LAD"},
	120: {120, "Washington Nationals", "WSH"},
	121: {121, "New York Mets", "NYM"},
	133: {133, "Athletics", "ATH"},
	134: {134, "Pittsburgh Pirates", "PIT"},
	135: {135, "San Diego Padres", "SD"},
	136: {136, "Seattle Mariners", "SEA"},
	137: {137, "San Francisco Giants", "SF"},
	138: {138, "St. Louis Cardinals", "STL"},
	139: {139, "Tampa Bay Rays", "TB"},
	140: {140, "Texas Rangers", "TEX"},
	141: {141, "Toronto Blue Jays", "TOR"},
	142: {142, "Minnesota Twins", "MIN"},
	143: {143, "Philadelphia Phillies", "PHI"},
	144: {144, "Atlanta Braves", "ATL"},
	145: {145, "Chicago White Sox", "CWS"},
	146: {146, "Miami Marlins", "MIA"},
	147: {147, "New York Yankees", "NYY"},
	158: {158, "Milwaukee Brewers", "MIL"},
}

// TeamByID looks up a club in the league table
func TeamByID(id int) (Team, bool) {
	t, ok := leagueTeams[id]
	return t, ok
}

// LeagueTeams returns all 30 clubs ordered by team ID
func LeagueTeams() []Team {
	teams := make([]Team, 0, len(leagueTeams))
	for _, t := range leagueTeams {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].TeamID < teams[j].TeamID })
	return teams
}
