package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cached data kinds
const (
	KindSchedule         = "schedule"
	KindTeamRoster       = "team_roster"
	KindPitcherInfo      = "pitcher_info"
	KindPitcherSeason    = "pitcher_season"
	KindPitcherSplits    = "pitcher_splits"
	KindPitcherGameLog   = "pitcher_game_log"
	KindTeamSeason       = "team_season"
	KindTeamSplits       = "team_splits"
	KindTeamWOBA         = "team_woba"
	KindTeamGameLog      = "team_game_log"
	KindBullpen          = "bullpen"
	KindRecentOPS        = "recent_ops"
	KindStatcastAllTeams = "statcast_all_teams"
)

// DefaultTTLs is the freshness policy per kind
var DefaultTTLs = map[string]time.Duration{
	KindSchedule:         30 * time.Minute,
	KindPitcherInfo:      7 * 24 * time.Hour,
	KindTeamRoster:       7 * 24 * time.Hour,
	KindPitcherSeason:    24 * time.Hour,
	KindTeamSeason:       24 * time.Hour,
	KindBullpen:          24 * time.Hour,
	KindPitcherSplits:    24 * time.Hour,
	KindTeamSplits:       24 * time.Hour,
	KindTeamWOBA:         24 * time.Hour,
	KindRecentOPS:        6 * time.Hour,
	KindTeamGameLog:      6 * time.Hour,
	KindStatcastAllTeams: 6 * time.Hour,
	KindPitcherGameLog:   12 * time.Hour,
}

// Kinds returns every known kind in sorted order
func Kinds() []string {
	kinds := make([]string, 0, len(DefaultTTLs))
	for k := range DefaultTTLs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// KnownKind reports whether kind has a TTL policy
func KnownKind(kind string) bool {
	_, ok := DefaultTTLs[kind]
	return ok
}

// ParseTTLs parses overrides in the form "kind:duration,kind:duration"
func ParseTTLs(s string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		kind, raw, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("cache ttl %q: want kind:duration", part)
		}
		kind = strings.TrimSpace(kind)
		if !KnownKind(kind) {
			return nil, fmt.Errorf("cache ttl: unknown kind %q", kind)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("cache ttl for %s: %w", kind, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("cache ttl for %s must not be negative", kind)
		}
		out[kind] = d
	}
	return out, nil
}

// MergeTTLs overlays overrides onto the defaults
func MergeTTLs(overrides map[string]time.Duration) map[string]time.Duration {
	merged := make(map[string]time.Duration, len(DefaultTTLs))
	for k, v := range DefaultTTLs {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Key joins identifiers into a cache key
func Key(parts ...interface{}) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return strings.Join(strs, "_")
}
