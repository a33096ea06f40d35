// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package schedule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MKuranowski/MuiWoFerry/civil"
)

var departureTimePattern = regexp.MustCompile(`^(\d{1,2})\s*:\s*(\d{2})\s*(?:([ap])\.?\s*m\.?)?$`)

// ParseDepartureTime parses a timetable clock string, like "7:30 a.m.", "12:15 p.m." or "23:40".
// Anything not matching the grammar yields civil.InvalidTime.
func ParseDepartureTime(x string) civil.TimeOfDay {
	match := departureTimePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(x)))
	if match == nil {
		return civil.InvalidTime
	}

	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])

	switch match[3] {
	case "a":
		if h > 12 {
			return civil.InvalidTime
		} else if h == 12 {
			h = 0
		}

	case "p":
		if h < 1 || h > 12 {
			return civil.InvalidTime
		} else if h != 12 {
			h += 12
		}
	}

	return civil.NewTimeOfDay(h, m)
}
