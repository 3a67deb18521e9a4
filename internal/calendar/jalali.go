package calendar

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

// JalaliToGregorian converts a Solar Hijri date to its Gregorian equivalent.
func JalaliToGregorian(jy, jm, jd int) (gy, gm, gd int, err error) {
	pt := ptime.Date(jy, ptime.Month(jm), jd, 0, 0, 0, 0, time.UTC)
	// ptime normalizes overflowing fields, so a date that moved never existed.
	if pt.Year() != jy || int(pt.Month()) != jm || pt.Day() != jd {
		return 0, 0, 0, fmt.Errorf("%w: %04d-%02d-%02d is not a jalali date", ErrInvalidDate, jy, jm, jd)
	}

	g := pt.Time()
	return g.Year(), int(g.Month()), g.Day(), nil
}
