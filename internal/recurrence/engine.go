package recurrence

import (
	"errors"
	"time"
)

// Frequency represents supported recurrence advancement units.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// MaxOccurrences caps how many additional occurrences a single rule may
// produce, whatever its bounds say. It keeps series fan-out finite even for
// rules whose until lies years ahead.
const MaxOccurrences = 180

// Rule describes a recurrence configuration for an event series.
type Rule struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	Until     *time.Time `json:"until,omitempty"`
	Count     *int       `json:"count,omitempty"`
}

var (
	// ErrInvalidFrequency indicates the rule frequency is not supported.
	ErrInvalidFrequency = errors.New("recurrence: invalid frequency")
	// ErrInvalidInterval indicates the interval is below one.
	ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")
	// ErrUnboundedRule indicates the rule has neither until nor count.
	ErrUnboundedRule = errors.New("recurrence: exactly one of until or count is required")
)

// Validate checks the rule the way event creation requires it: a known
// frequency, interval ≥ 1 and exactly one of until/count.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
	default:
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	if (r.Until == nil) == (r.Count == nil) {
		return ErrUnboundedRule
	}
	if r.Count != nil && *r.Count < 1 {
		return errors.New("recurrence: count must be at least 1")
	}
	return nil
}

// Expand returns the start instants of the additional occurrences after
// baseStart, in order. With Count = n the returned slice has n-1 entries so
// that the full series including baseStart has n items. With Until = t every
// returned instant satisfies instant ≤ t. MaxOccurrences bounds the result
// in every case.
//
// Monthly and yearly advancement is computed from baseStart each step, so a
// series rooted on Jan 31 lands on Feb 28 (or 29) and returns to Mar 31.
func Expand(baseStart time.Time, rule Rule) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	limit := MaxOccurrences
	if rule.Count != nil && *rule.Count-1 < limit {
		limit = *rule.Count - 1
	}

	var until time.Time
	if rule.Until != nil {
		// Stored events use naive UTC instants; a zone-aware bound is
		// normalized to the same convention.
		until = rule.Until.UTC()
	}

	occurrences := make([]time.Time, 0, limit)
	for n := 1; len(occurrences) < limit; n++ {
		next := advance(baseStart, rule.Frequency, n*rule.Interval)
		if rule.Until != nil && next.After(until) {
			break
		}
		occurrences = append(occurrences, next)
	}

	return occurrences, nil
}

func advance(base time.Time, freq Frequency, steps int) time.Time {
	switch freq {
	case FrequencyDaily:
		return base.AddDate(0, 0, steps)
	case FrequencyWeekly:
		return base.AddDate(0, 0, 7*steps)
	case FrequencyMonthly:
		return AddMonths(base, steps)
	case FrequencyYearly:
		return AddMonths(base, 12*steps)
	}
	return base
}

// AddMonths adds n calendar months to t, clamping the day of month to the
// length of the target month. time.AddDate would normalize Jan 31 + 1 month
// into Mar 2/3; scheduling semantics require Feb 28/29 instead.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()

	totalMonths := int(month) - 1 + n
	newYear := year + totalMonths/12
	newMonth := time.Month(totalMonths%12 + 1)
	if totalMonths < 0 {
		// Go's integer division truncates toward zero; correct for
		// negative month offsets.
		m := totalMonths % 12
		if m != 0 {
			newYear--
			newMonth = time.Month(m + 13)
		}
	}

	if max := daysIn(newYear, newMonth); day > max {
		day = max
	}

	return time.Date(newYear, newMonth, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
