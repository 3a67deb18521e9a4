// Package calendar parses the date, time and clock strings users type into
// absolute instants in their own timezone.
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDate is returned when a date string cannot be parsed.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidClock is returned when an HH:MM string cannot be parsed.
	ErrInvalidClock = errors.New("invalid clock time")
)

// Years in this range are read as Solar Hijri (Jalali) years. A Gregorian
// year inside it cannot be expressed.
const (
	jalaliMinYear = 1300
	jalaliMaxYear = 1500
)

// ParseLocalDate parses "YYYY-MM-DD HH:MM", "YYYY-MM-DD", or the same with "/"
// separators, interpreted as wall-clock time in loc. A date-only input means
// 00:00. Years 1300..1500 are treated as Jalali and converted to Gregorian.
func ParseLocalDate(text string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
	}

	year, month, day, err := splitDate(fields[0])
	if err != nil {
		return time.Time{}, err
	}

	hour, minute := 0, 0
	if len(fields) == 2 {
		hour, minute, err = ParseClock(fields[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
		}
	}

	if year >= jalaliMinYear && year <= jalaliMaxYear {
		gy, gm, gd, err := JalaliToGregorian(year, month, day)
		if err != nil {
			return time.Time{}, err
		}
		year, month, day = gy, gm, gd
	} else if !validGregorian(year, month, day) {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist", ErrInvalidDate, year, month, day)
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), nil
}

func splitDate(s string) (int, int, int, error) {
	parts := strings.Split(strings.ReplaceAll(s, "/", "-"), "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: expected YYYY-MM-DD, got %q", ErrInvalidDate, s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("%w: %q is not a number", ErrInvalidDate, p)
		}
		nums[i] = n
	}
	if len(parts[0]) != 4 {
		return 0, 0, 0, fmt.Errorf("%w: year must have four digits", ErrInvalidDate)
	}
	return nums[0], nums[1], nums[2], nil
}

func validGregorian(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// ParseClock parses a 24-hour "HH:MM" string.
func ParseClock(text string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(text))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, text)
	}
	return t.Hour(), t.Minute(), nil
}

// FormatClock renders hour and minute as "HH:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
