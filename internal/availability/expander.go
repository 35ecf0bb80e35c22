package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Virtual interval kinds.
const (
	VirtualAvailable   = "available"
	VirtualUnavailable = "unavailable"
)

// virtualNamespace seeds the deterministic ids of virtual intervals so that
// repeated queries for the same window return stable identifiers.
var virtualNamespace = uuid.MustParse("8f2b1d54-6c1e-4f6a-9b1d-3f0a5f2c7e91")

// VirtualInterval is an availability-derived interval. It is never persisted;
// its id is a deterministic hash of (kind, user, bounds).
type VirtualInterval struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Kind     string    `json:"kind"`
	Label    string    `json:"label,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// fallbackZones covers the office zones we must keep working even on hosts
// with no tzdata.
var fallbackZones = map[string]int{
	"UTC":              0,
	"Europe/Moscow":    3 * 60 * 60,
	"Europe/London":    0,
	"Europe/Berlin":    1 * 60 * 60,
	"Asia/Yekaterinburg": 5 * 60 * 60,
	"Asia/Novosibirsk": 7 * 60 * 60,
	"Asia/Vladivostok": 10 * 60 * 60,
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc, nil
	}
	if offset, ok := fallbackZones[name]; ok {
		return time.FixedZone(name, offset), nil
	}
	return nil, fmt.Errorf("availability: unknown timezone %q", name)
}

// Expand materializes the virtual intervals of a weekly schedule over
// [from, to). Each scheduled slot becomes one available interval; the gaps
// before the first slot, between slots and after the last slot become
// unavailable intervals; days without slots become one full-day unavailable
// interval. All results are converted to UTC.
func Expand(userID uuid.UUID, schedule WeeklySchedule, timezone string, from, to time.Time) ([]VirtualInterval, error) {
	loc, err := resolveLocation(timezone)
	if err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, nil
	}

	from = from.UTC()
	to = to.UTC()

	intervals := make([]VirtualInterval, 0)

	day := truncateToDay(from.In(loc))
	lastDay := truncateToDay(to.In(loc))

	for !day.After(lastDay) {
		slots := append([]SlotTemplate(nil), schedule[weekdayNames[day.Weekday()]]...)

		if len(slots) == 0 {
			start := day
			end := endOfDay(day)
			iv := clip(makeVirtual(userID, VirtualUnavailable, "", start, end), from, to)
			if iv != nil {
				intervals = append(intervals, *iv)
			}
			day = day.AddDate(0, 0, 1)
			continue
		}

		sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })

		cursor := day
		for _, slot := range slots {
			slotStart, err := clockOn(day, slot.Start)
			if err != nil {
				return nil, err
			}
			slotEnd, err := clockOn(day, slot.End)
			if err != nil {
				return nil, err
			}

			if slotStart.After(cursor) {
				if iv := emit(userID, VirtualUnavailable, "", cursor, slotStart, from, to); iv != nil {
					intervals = append(intervals, *iv)
				}
			}
			if iv := emit(userID, VirtualAvailable, slot.Label, slotStart, slotEnd, from, to); iv != nil {
				intervals = append(intervals, *iv)
			}
			if slotEnd.After(cursor) {
				cursor = slotEnd
			}
		}

		if end := endOfDay(day); end.After(cursor) {
			if iv := emit(userID, VirtualUnavailable, "", cursor, end, from, to); iv != nil {
				intervals = append(intervals, *iv)
			}
		}

		day = day.AddDate(0, 0, 1)
	}

	return intervals, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, day.Location())
}

func clockOn(day time.Time, clock string) (time.Time, error) {
	h, min, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, h, min, 0, 0, day.Location()), nil
}

// emit converts a local interval to UTC and drops it unless it overlaps the
// query window.
func emit(userID uuid.UUID, kind, label string, start, end, from, to time.Time) *VirtualInterval {
	iv := makeVirtual(userID, kind, label, start, end)
	if !iv.StartsAt.Before(to) || !iv.EndsAt.After(from) {
		return nil
	}
	return &iv
}

// clip intersects a full-day unavailable interval with the query window.
func clip(iv VirtualInterval, from, to time.Time) *VirtualInterval {
	if !iv.StartsAt.Before(to) || !iv.EndsAt.After(from) {
		return nil
	}
	if iv.StartsAt.Before(from) {
		iv.StartsAt = from
	}
	if iv.EndsAt.After(to) {
		iv.EndsAt = to
	}
	iv.ID = virtualID(iv.Kind, iv.UserID, iv.StartsAt, iv.EndsAt)
	return &iv
}

func makeVirtual(userID uuid.UUID, kind, label string, start, end time.Time) VirtualInterval {
	startUTC := start.UTC()
	endUTC := end.UTC()
	return VirtualInterval{
		ID:       virtualID(kind, userID, startUTC, endUTC),
		UserID:   userID,
		Kind:     kind,
		Label:    label,
		StartsAt: startUTC,
		EndsAt:   endUTC,
	}
}

func virtualID(kind string, userID uuid.UUID, start, end time.Time) uuid.UUID {
	key := fmt.Sprintf("%s|%s|%s|%s", kind, userID, start.Format(time.RFC3339), end.Format(time.RFC3339))
	return uuid.NewSHA1(virtualNamespace, []byte(key))
}
