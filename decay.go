package cortex

import (
	"fmt"
	"math"
	"time"
)

// Decayed computes the current decayed score for a memory at time now, per
// the decay formula:
//
//	decayed = clamp(salience * decayRate^hoursSinceAccess * (1 + log2(1+accessCount)*0.05), 0, 1)
//
// Decay is lazy: callers compute this on read; it is written back only by the
// consolidator. Store.Access reinforces the stored decayed_score without
// calling Decayed first.
func Decayed(salience float64, lastAccessed, now time.Time, accessCount int, decayRatePerHour float64) float64 {
	hours := now.Sub(lastAccessed).Hours()
	if hours < 0 {
		hours = 0
	}
	decay := math.Pow(decayRatePerHour, hours)
	reinforcement := 1 + math.Log2(1+float64(accessCount))*0.05
	return clamp01(salience * decay * reinforcement)
}

// Reinforce applies the reinforcement factor to a decayed score on access,
// clamped to 1.0
func Reinforce(decayedScore, reinforcementFactor float64) float64 {
	return math.Min(1.0, decayedScore*reinforcementFactor)
}

// FormatTimeSinceAccess renders a compact human-readable span ("3m", "2h",
// "4d") for use in formatted output. This exact compact form has no
// equivalent in go-humanize's Time() (which renders "3 minutes ago"), so it
// stays a small hand-written formatter — the one deliberately stdlib-only
// piece of the decay model (see DESIGN.md).
func FormatTimeSinceAccess(m Memory, now time.Time) string {
	d := now.Sub(m.LastAccessed)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
