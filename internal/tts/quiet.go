package tts

import (
	"fmt"
	"strings"
	"time"
)

// DefaultQuietHours is used when a configured window cannot be parsed.
const DefaultQuietHours = "22:00-07:00"

// QuietWindow is a daily wall-clock window expressed in minutes after
// midnight. A window whose end is before its start spans midnight.
type QuietWindow struct {
	Start int
	End   int
}

// ParseQuietWindow parses "HH:MM-HH:MM".
func ParseQuietWindow(s string) (QuietWindow, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return QuietWindow{}, fmt.Errorf("quiet hours %q: expected HH:MM-HH:MM", s)
	}

	start, err := parseClock(startStr)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}
	end, err := parseClock(endStr)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("quiet hours %q: %w", s, err)
	}

	return QuietWindow{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the wall-clock time of now falls in the window.
// An empty window (start == end) is never quiet.
func (w QuietWindow) Contains(now time.Time) bool {
	m := now.Hour()*60 + now.Minute()
	if w.End < w.Start {
		return m >= w.Start || m < w.End
	}
	return w.Start <= m && m < w.End
}

// String formats the window as HH:MM-HH:MM.
func (w QuietWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// IsQuietNow evaluates a window string at now. Malformed windows fall back
// to DefaultQuietHours.
func IsQuietNow(window string, now time.Time) bool {
	w, err := ParseQuietWindow(window)
	if err != nil {
		w, _ = ParseQuietWindow(DefaultQuietHours)
	}
	return w.Contains(now)
}

// SelectVolume picks the announcement volume: the override when given,
// otherwise the night or day volume depending on quiet hours. The result is
// always within [0,1].
func SelectVolume(cfg InstanceConfig, override *float64, now time.Time) float64 {
	if override != nil {
		return ClampVolume(*override)
	}
	if IsQuietNow(cfg.QuietHours, now) {
		return ClampVolume(cfg.NightVolume)
	}
	return ClampVolume(cfg.DayVolume)
}

// ClampVolume limits v to [0,1].
func ClampVolume(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
