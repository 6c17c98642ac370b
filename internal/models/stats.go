package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FIPConstant is the ERA-scaling constant added to raw FIP.
const FIPConstant = 3.2

// StatBag is the raw "stat" object returned by the Stats API. Values arrive
// as JSON numbers or as strings such as ".250", "3.45" or "6.2".
type StatBag map[string]interface{}

// Int returns the integer value stored under key.
func (b StatBag) Int(key string) (int, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// IntOr returns the integer under key or def when absent.
func (b StatBag) IntOr(key string, def int) int {
	if v, ok := b.Int(key); ok {
		return v
	}
	return def
}

// Float returns the float value stored under key. Placeholder strings the
// upstream uses for undefined rates (".---", "-.--", "*.**") are absent.
func (b StatBag) Float(key string) (float64, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Innings returns the innings pitched under key, parsed as true outs.
func (b StatBag) Innings(key string) (Innings, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return 0, false
	}
	var raw string
	switch val := v.(type) {
	case string:
		raw = val
	case float64:
		raw = strconv.FormatFloat(val, 'f', 1, 64)
	default:
		return 0, false
	}
	ip, err := ParseInnings(raw)
	if err != nil {
		return 0, false
	}
	return ip, true
}

// Innings counts recorded outs. The upstream writes innings as "6.2", which
// means six innings and two outs, not 6.2 innings.
type Innings int

// ParseInnings converts the upstream "whole.outs" notation into outs.
func ParseInnings(s string) (Innings, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty innings value")
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	w, err := strconv.Atoi(whole)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid innings value %q", s)
	}
	outs := 0
	if hasFrac && frac != "" {
		outs, err = strconv.Atoi(frac)
		if err != nil || outs < 0 || outs > 2 {
			return 0, fmt.Errorf("invalid innings value %q", s)
		}
	}
	return Innings(w*3 + outs), nil
}

// Float returns the innings as a rational number of innings.
func (ip Innings) Float() float64 {
	return float64(ip) / 3
}

// String formats the innings back into upstream notation.
func (ip Innings) String() string {
	return fmt.Sprintf("%d.%d", int(ip)/3, int(ip)%3)
}

// FIP computes fielding-independent pitching. ok is false when ip is zero.
func FIP(hr, bb, hbp, k int, ip Innings) (float64, bool) {
	if ip <= 0 {
		return 0, false
	}
	raw := float64(13*hr+3*(bb+hbp)-2*k) / ip.Float()
	return raw + FIPConstant, true
}

// ERA computes earned run average.
func ERA(er int, ip Innings) (float64, bool) {
	if ip <= 0 {
		return 0, false
	}
	return 9 * float64(er) / ip.Float(), true
}

// WHIP computes walks plus hits per inning pitched.
func WHIP(bb, h int, ip Innings) (float64, bool) {
	if ip <= 0 {
		return 0, false
	}
	return float64(bb+h) / ip.Float(), true
}

// Rate returns num/den, ok is false for a zero denominator.
func Rate(num, den int) (float64, bool) {
	if den <= 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// WOBAInput holds the counting stats the wOBA formula needs.
type WOBAInput struct {
	AB, H, Doubles, Triples, HR int
	BB, IBB, HBP, SF            int
}

// WOBA computes weighted on-base average with the classical linear weights.
func WOBA(in WOBAInput) (float64, bool) {
	den := in.AB + in.BB - in.IBB + in.SF + in.HBP
	if den <= 0 {
		return 0, false
	}
	singles := in.H - in.Doubles - in.Triples - in.HR
	if singles < 0 {
		return 0, false
	}
	num := 0.690*float64(in.BB) +
		0.720*float64(in.HBP) +
		0.880*float64(singles) +
		1.247*float64(in.Doubles) +
		1.578*float64(in.Triples) +
		2.031*float64(in.HR)
	return num / float64(den), true
}

// BattingLine is an aggregate of counting stats used for composite OPS.
type BattingLine struct {
	H, AB, BB, HBP, SF, TB int
}

// Add accumulates other into l.
func (l *BattingLine) Add(other BattingLine) {
	l.H += other.H
	l.AB += other.AB
	l.BB += other.BB
	l.HBP += other.HBP
	l.SF += other.SF
	l.TB += other.TB
}

// OPS returns on-base plus slugging for the line.
func (l BattingLine) OPS() (float64, bool) {
	obpDen := l.AB + l.BB + l.HBP + l.SF
	if obpDen <= 0 || l.AB <= 0 {
		return 0, false
	}
	obp := float64(l.H+l.BB+l.HBP) / float64(obpDen)
	slg := float64(l.TB) / float64(l.AB)
	return obp + slg, true
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
