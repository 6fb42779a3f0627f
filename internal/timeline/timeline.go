// Package timeline computes tick positions and labels for the replay
// timeline axis. All functions are pure and operate on millisecond offsets
// relative to the start of the test run.
package timeline

import "fmt"

// MinTickSpacingPx is the minimum horizontal distance between two ticks.
// The scale chooser picks the smallest interval that keeps ticks at least
// this far apart at the given width.
const MinTickSpacingPx = 50

// tickIntervals is the canonical ladder of tick intervals in milliseconds,
// ascending. Sub-second steps follow a 1/2/5 progression; second and minute
// steps match the marks a human expects on a clock-ish axis.
var tickIntervals = []int64{
	10, 20, 50, 100, 200, 500, // milliseconds
	1_000, 2_000, 5_000, 10_000, 15_000, 30_000, // seconds
	60_000, 120_000, 300_000, 600_000, 1_800_000, // minutes
	3_600_000, // one hour
}

// Tick is one labeled mark on the timeline axis.
type Tick struct {
	TimeMs   int64   `json:"timeMs"`
	Position float64 `json:"position"` // normalized [0, 1]
	Label    string  `json:"label"`
}

// Scale is the derived tick layout for a trace of a given duration rendered
// at a given width.
type Scale struct {
	IntervalMs int64  `json:"intervalMs"`
	Ticks      []Tick `json:"ticks"`
}

// FormatTimeLabel renders a millisecond offset as a short human-readable
// label: "0s", "500ms", "1s", "1.5s", "1m", "1m 30s".
func FormatTimeLabel(ms int64) string {
	switch {
	case ms == 0:
		return "0s"
	case ms < 1_000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60_000:
		if ms%1_000 == 0 {
			return fmt.Sprintf("%ds", ms/1_000)
		}
		return fmt.Sprintf("%.1fs", float64(ms)/1_000)
	default:
		m := ms / 60_000
		rem := ms % 60_000
		if rem == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, rem/1_000)
	}
}

// GenerateTicks produces ticks at every multiple of intervalMs up to totalMs.
// The final tick always lands on totalMs: if the last multiple is within half
// an interval of the end it is moved there, otherwise an extra tick is
// appended. Returns nil for non-positive durations or intervals.
func GenerateTicks(totalMs, intervalMs int64) []Tick {
	if totalMs <= 0 || intervalMs <= 0 {
		return nil
	}

	var times []int64
	for t := int64(0); t <= totalMs; t += intervalMs {
		times = append(times, t)
	}

	last := times[len(times)-1]
	if totalMs-last <= intervalMs/2 {
		times[len(times)-1] = totalMs
	} else {
		times = append(times, totalMs)
	}

	ticks := make([]Tick, len(times))
	for i, t := range times {
		ticks[i] = Tick{
			TimeMs:   t,
			Position: float64(t) / float64(totalMs),
			Label:    FormatTimeLabel(t),
		}
	}
	return ticks
}

// CalculateTimelineScale picks the smallest canonical interval whose tick
// count fits the available width, then lays out the ticks. When even the
// largest interval produces too many ticks, the largest is used anyway so the
// caller always gets a drawable scale. A non-positive duration yields an
// empty scale.
func CalculateTimelineScale(totalMs int64, widthPx int) Scale {
	if totalMs <= 0 {
		return Scale{}
	}

	maxTicks := int64(widthPx / MinTickSpacingPx)

	interval := tickIntervals[len(tickIntervals)-1]
	for _, candidate := range tickIntervals {
		if totalMs/candidate+1 <= maxTicks {
			interval = candidate
			break
		}
	}

	return Scale{
		IntervalMs: interval,
		Ticks:      GenerateTicks(totalMs, interval),
	}
}
