package goes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Day keys travel in two shapes: YYYYMMDD on the request surface and
// YYYYJJJ (julian day of year) everywhere the archive layout is involved.
// Ranges join two keys with a dash and are inclusive on both ends.

// ParseDay accepts a single day key in either shape and returns its UTC
// midnight.
func ParseDay(key string) (time.Time, error) {
	k := strings.TrimSpace(key)
	switch len(k) {
	case 8:
		t, err := time.ParseInLocation("20060102", k, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day key %q: %w", key, err)
		}
		return t, nil
	case 7:
		t, err := time.ParseInLocation("2006002", k, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid julian day key %q: %w", key, err)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid day key %q", key)
}

// YMDToJulian converts YYYYMMDD to YYYYJJJ.
func YMDToJulian(ymd string) (string, error) {
	t, err := ParseDay(ymd)
	if err != nil {
		return "", err
	}
	return t.Format("2006002"), nil
}

// JulianToYMD converts YYYYJJJ to YYYYMMDD.
func JulianToYMD(julian string) (string, error) {
	t, err := ParseDay(julian)
	if err != nil {
		return "", err
	}
	return t.Format("20060102"), nil
}

// ExpandDayKey expands a day key or inclusive range into the list of days
// it covers, in the same shape the key used.
func ExpandDayKey(key string) ([]string, error) {
	k := strings.TrimSpace(key)
	parts := strings.SplitN(k, "-", 2)
	start, err := ParseDay(parts[0])
	if err != nil {
		return nil, err
	}
	end := start
	if len(parts) == 2 {
		end, err = ParseDay(parts[1])
		if err != nil {
			return nil, err
		}
	}
	if end.Before(start) {
		return nil, fmt.Errorf("invalid day range %q: end before start", key)
	}

	layout := "20060102"
	if len(parts[0]) == 7 {
		layout = "2006002"
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(layout))
	}
	return days, nil
}

// DayRangeBounds returns the first and last day covered by a key.
func DayRangeBounds(key string) (time.Time, time.Time, error) {
	days, err := ExpandDayKey(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	first, _ := ParseDay(days[0])
	last, _ := ParseDay(days[len(days)-1])
	return first, last, nil
}

// WeekOfYear returns the two-digit archive week for a julian day of year.
// Weeks are fixed seven-day blocks counted from day 001.
func WeekOfYear(dayOfYear int) string {
	return fmt.Sprintf("%02d", ((dayOfYear-1)/7)+1)
}

// WeekForDay returns the archive week for a day key.
func WeekForDay(key string) (string, error) {
	t, err := ParseDay(key)
	if err != nil {
		return "", err
	}
	return WeekOfYear(t.YearDay()), nil
}

// TimeOfDay is a wall-clock minute within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTimeOfDay parses HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseTimeRange parses "HH:MM" or "HH:MM-HH:MM". A single time is a
// range of one minute. Both ends are inclusive.
func ParseTimeRange(s string) (TimeOfDay, TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	start, err := ParseTimeOfDay(parts[0])
	if err != nil {
		return TimeOfDay{}, TimeOfDay{}, err
	}
	end := start
	if len(parts) == 2 {
		end, err = ParseTimeOfDay(parts[1])
		if err != nil {
			return TimeOfDay{}, TimeOfDay{}, err
		}
	}
	return start, end, nil
}

// MinutesInRange counts the minutes in an inclusive range. Ranges that
// wrap midnight count through 23:59 and on from 00:00.
func MinutesInRange(start, end TimeOfDay) int {
	s, e := start.Minutes(), end.Minutes()
	if e >= s {
		return e - s + 1
	}
	return (1440 - s) + e + 1
}

// ParseStamp parses an eleven character YYYYJJJHHMM start stamp.
func ParseStamp(stamp string) (time.Time, error) {
	if len(stamp) != 11 {
		return time.Time{}, fmt.Errorf("invalid stamp %q", stamp)
	}
	t, err := time.ParseInLocation("20060021504", stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stamp %q: %w", stamp, err)
	}
	return t, nil
}
