// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package schedule

import (
	"strings"
	"time"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/holiday"
)

// DayType is the timetable category an entry is keyed by.
type DayType int

const (
	Weekday DayType = iota
	Saturday
	SundayOrHoliday
)

func (t DayType) String() string {
	switch t {
	case Weekday:
		return "Mondays to Fridays except public holidays"
	case Saturday:
		return "Saturdays except public holidays"
	case SundayOrHoliday:
		return "Sundays and public holidays"
	default:
		return "unknown"
	}
}

func (t DayType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Classify maps a civil date onto its DayType. A public holiday always takes precedence
// over a Saturday.
func Classify(d civil.Date, holidays holiday.Set) DayType {
	dow := d.Weekday()
	if dow == time.Sunday || holidays.Contains(d) {
		return SundayOrHoliday
	} else if dow == time.Saturday {
		return Saturday
	}
	return Weekday
}

// IsHoliday checks whether d is listed as a public holiday.
func IsHoliday(d civil.Date, holidays holiday.Set) bool {
	return holidays.Contains(d)
}

var dayTypeCodes = map[string]DayType{
	"mondays to fridays except public holidays": Weekday,
	"mondays to fridays":                        Weekday,
	"monday to friday":                          Weekday,
	"mon-fri":                                   Weekday,
	"weekday":                                   Weekday,
	"weekdays":                                  Weekday,
	"wd":                                        Weekday,
	"saturdays except public holidays":          Saturday,
	"saturdays":                                 Saturday,
	"saturday":                                  Saturday,
	"sat":                                       Saturday,
	"sundays and public holidays":               SundayOrHoliday,
	"sundays and holidays":                      SundayOrHoliday,
	"sunday":                                    SundayOrHoliday,
	"sun":                                       SundayOrHoliday,
	"ph":                                        SundayOrHoliday,
	"sun/ph":                                    SundayOrHoliday,
	"holiday":                                   SundayOrHoliday,
	"public holidays":                           SundayOrHoliday,
}

// ParseDayType recognizes the day-type phrases and codes used by timetables.
func ParseDayType(x string) (DayType, bool) {
	x = strings.Join(strings.Fields(strings.ToLower(x)), " ")
	if x == "" {
		return 0, false
	}

	if t, ok := dayTypeCodes[x]; ok {
		return t, true
	}

	// Fall back to keywords. Weekday and Saturday phrases mention holidays
	// only as an exception, so "sunday" has to be checked first.
	switch {
	case strings.Contains(x, "sunday"):
		return SundayOrHoliday, true
	case strings.Contains(x, "saturday"):
		return Saturday, true
	case strings.Contains(x, "monday"), strings.Contains(x, "weekday"):
		return Weekday, true
	case strings.Contains(x, "holiday") && !strings.Contains(x, "except"):
		return SundayOrHoliday, true
	}

	return 0, false
}
