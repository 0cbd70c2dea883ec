package edit

import (
	"fmt"
	"strings"
	"time"
)

// Rounding is the granularity drag gestures snap to.
type Rounding int

const (
	QuarterHour Rounding = iota
	HalfHour
	Hour
)

// MinDuration is the shortest an event can be resized to.
const MinDuration = 15 * time.Minute

// ParseRounding accepts the config spellings ("quarter_hour", "half_hour",
// "hour") and their duration forms ("15m", "30m", "1h").
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quarter_hour", "quarter", "15m":
		return QuarterHour, nil
	case "half_hour", "half", "30m":
		return HalfHour, nil
	case "hour", "1h", "60m":
		return Hour, nil
	default:
		return QuarterHour, fmt.Errorf("edit: unknown rounding %q", s)
	}
}

// Step is the wall-clock length of one snap increment.
func (r Rounding) Step() time.Duration {
	switch r {
	case Hour:
		return time.Hour
	case HalfHour:
		return 30 * time.Minute
	default:
		return 15 * time.Minute
	}
}

func (r Rounding) String() string {
	switch r {
	case Hour:
		return "hour"
	case HalfHour:
		return "half_hour"
	default:
		return "quarter_hour"
	}
}
