// Package event models a scheduled live sports event and classifies it as
// upcoming, live or ended.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Status is the position of an event relative to the current time.
type Status int

const (
	Unknown Status = iota
	Upcoming
	Live
	Ended
)

func (s Status) String() string {
	switch s {
	case Upcoming:
		return "upcoming"
	case Live:
		return "live"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Badge is the short marker shown before event titles.
func (s Status) Badge() string {
	switch s {
	case Upcoming:
		return "🔜"
	case Live:
		return "🔴"
	case Ended:
		return "✅"
	default:
		return ""
	}
}

// Info describes one event as published by the live-events feed.
type Info struct {
	TeamA     string    `json:"team_a,omitempty"`
	TeamB     string    `json:"team_b,omitempty"`
	TeamAFlag string    `json:"team_a_flag,omitempty"`
	TeamBFlag string    `json:"team_b_flag,omitempty"`
	Category  string    `json:"category,omitempty"`
	Name      string    `json:"name,omitempty"`
	Logo      string    `json:"logo,omitempty"`
	Start     time.Time `json:"start,omitzero"`
	End       time.Time `json:"end,omitzero"`
}

// Classify returns Upcoming before Start, Live between Start and End
// inclusive and Ended afterwards. Missing bounds give Unknown.
func (i Info) Classify(now time.Time) Status {
	if i.Start.IsZero() || i.End.IsZero() {
		return Unknown
	}
	switch {
	case now.Before(i.Start):
		return Upcoming
	case now.After(i.End):
		return Ended
	default:
		return Live
	}
}

// DisplayTitle is "A vs B" for a match, the single team when both names are
// equal, or the event name otherwise.
func (i Info) DisplayTitle() string {
	a, b := strings.TrimSpace(i.TeamA), strings.TrimSpace(i.TeamB)
	if a == "" || b == "" {
		return i.Name
	}
	if a == b {
		return a
	}
	return a + " vs " + b
}

// Feed dates are day first and carry no zone; the upstream treats them as UTC.
const feedLayout = "2/1/2006 15:04:05"

// ParseFeedTime parses a "dd/MM/yyyy" date and "HH:mm:ss" clock as UTC.
// A clock without seconds is accepted.
func ParseFeedTime(date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("missing date or time (%q, %q)", date, clock)
	}
	if strings.Count(clock, ":") == 1 {
		clock += ":00"
	}
	t, err := time.ParseInLocation(feedLayout, date+" "+clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing event time: %w", err)
	}
	return t, nil
}
