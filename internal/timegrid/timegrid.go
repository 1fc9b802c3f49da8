// Package timegrid holds the date/minute arithmetic shared by the slot
// generator and scoring engine. Everything runs in UTC so DST shifts never
// move a slot boundary.
package timegrid

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
	}
	return t, nil
}

// ToTimestamp converts a YYYY-MM-DD date plus minutes from midnight into a
// UTC timestamp.
func ToTimestamp(date string, minutesFromMidnight int) (time.Time, error) {
	day, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(minutesFromMidnight) * time.Minute), nil
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// MinutesBetween returns b-a in whole minutes (negative when b precedes a).
func MinutesBetween(a, b time.Time) int {
	return int(b.Sub(a) / time.Minute)
}
