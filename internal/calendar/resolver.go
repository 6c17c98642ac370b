// Package calendar maps the day a user asks about onto the league's
// scheduling date.
package calendar

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the civil date format used everywhere in the pipeline
	DateLayout = "2006-01-02"

	DefaultUserZone   = "Asia/Tokyo"
	DefaultLeagueZone = "America/New_York"
	DefaultCutoffHour = 9
)

// Request describes what the caller asked for.
// An empty UserDate means "today" as observed at RequestedAt.
type Request struct {
	UserDate    string
	Timezone    string
	LeagueZone  string
	CutoffHour  int
	RequestedAt time.Time
}

// TargetDate is the resolved pair of user-local and upstream dates
type TargetDate struct {
	UserDate     string   `json:"user_date"`
	TZ           string   `json:"tz"`
	UpstreamDate string   `json:"upstream_date"`
	Shifted      bool     `json:"shifted"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Season returns the four-digit season of the upstream date
func (t TargetDate) Season() int {
	d, err := ParseDate(t.UpstreamDate)
	if err != nil {
		return 0
	}
	return d.Year()
}

// Resolve maps a request onto the upstream calendar day.
//
// Explicit dates depend only on (UserDate, Timezone, CutoffHour). The cutoff
// is consulted only when the request is for "today": before the cutoff hour
// the subject is the previous local date, whose league day is still in
// progress. The upstream date is the league-zone calendar date of the
// subject's local midnight, advanced by one day when that midnight still
// falls on the prior league day.
//
// Unknown zones fall back to UTC and add a warning. The only error is a
// malformed UserDate.
func Resolve(req Request) (TargetDate, error) {
	var warnings []string

	loc, name, warn := loadZone(req.Timezone, DefaultUserZone)
	if warn != "" {
		warnings = append(warnings, warn)
	}
	league, _, warn := loadZone(req.LeagueZone, DefaultLeagueZone)
	if warn != "" {
		warnings = append(warnings, warn)
	}

	cutoff := req.CutoffHour
	if cutoff < 0 || cutoff > 23 {
		warnings = append(warnings, fmt.Sprintf("cutoff hour %d out of range, using %d", cutoff, DefaultCutoffHour))
		cutoff = DefaultCutoffHour
	}

	var subject time.Time
	shifted := false
	userDate := req.UserDate

	if userDate == "" {
		now := req.RequestedAt
		if now.IsZero() {
			now = time.Now()
		}
		local := now.In(loc)
		userDate = local.Format(DateLayout)
		subject = civil(local.Year(), local.Month(), local.Day())
		if local.Hour() < cutoff {
			subject = subject.AddDate(0, 0, -1)
			shifted = true
		}
	} else {
		d, err := ParseDate(userDate)
		if err != nil {
			return TargetDate{}, err
		}
		subject = d
	}

	return TargetDate{
		UserDate:     userDate,
		TZ:           name,
		UpstreamDate: upstreamFor(subject, loc, league).Format(DateLayout),
		Shifted:      shifted,
		Warnings:     warnings,
	}, nil
}

// upstreamFor converts the subject's local midnight into the league zone.
// time.Date normalizes midnights skipped by DST, so no fixed offsets are used.
func upstreamFor(subject time.Time, loc, league *time.Location) time.Time {
	midnight := time.Date(subject.Year(), subject.Month(), subject.Day(), 0, 0, 0, 0, loc)
	inLeague := midnight.In(league)
	d0 := civil(inLeague.Year(), inLeague.Month(), inLeague.Day())
	if d0.Before(subject) {
		d0 = d0.AddDate(0, 0, 1)
	}
	return d0
}

func loadZone(name, def string) (*time.Location, string, string) {
	if name == "" {
		name = def
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, "UTC", fmt.Sprintf("unknown time zone %q, falling back to UTC", name)
	}
	return loc, name, ""
}

// civil returns the date as midnight UTC so date arithmetic never sees DST
func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD civil date
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// AddDays shifts a civil date string by n days
func AddDays(date string, n int) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}

// ValidZone reports whether name is a loadable IANA zone
func ValidZone(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}
