// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package holiday

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKuranowski/MuiWoFerry/civil"
)

const calendarJSON = "\xEF\xBB\xBF" + `{
  "vcalendar": [{
    "prodid": "-//1823 Call Centre//Hong Kong Public Holidays//EN",
    "vevent": [
      {"dtstart": ["20250101", {"value": "DATE"}], "summary": "The first day of January"},
      {"dtstart": {"date": "20250129"}, "summary": "Lunar New Year's Day"},
      {"dtstart": {"date-time": "20250130T000000"}, "summary": "The second day of Lunar New Year"},
      {"dtstart": "20251225", "summary": "Christmas Day"},
      {"dtstart": "20251225", "summary": "Christmas Day (duplicate)"},
      {"dtstart": "2025-12-26", "summary": "malformed"},
      {"dtstart": {}, "summary": "no date"},
      {"summary": "missing dtstart"}
    ]
  }]
}`

func TestDecode(t *testing.T) {
	s, report, err := Decode([]byte(calendarJSON))
	require.NoError(t, err)

	assert.Equal(t, 8, report.Records)
	assert.Equal(t, 3, report.Dropped)

	assert.Equal(t, []civil.Date{
		{Y: 2025, M: time.January, D: 1},
		{Y: 2025, M: time.January, D: 29},
		{Y: 2025, M: time.January, D: 30},
		{Y: 2025, M: time.December, D: 25},
	}, s.Dates())

	assert.True(t, s.Contains(civil.Date{Y: 2025, M: time.December, D: 25}))
	assert.False(t, s.Contains(civil.Date{Y: 2025, M: time.December, D: 26}))
}

func TestDecodeRejectsNonJSON(t *testing.T) {
	_, _, err := Decode([]byte("<html>Service Unavailable</html>"))
	assert.Error(t, err)
}

func TestDecodeEmptyCalendar(t *testing.T) {
	s, report, err := Decode([]byte(`{"vcalendar": []}`))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, Report{}, report)
}

func TestZeroSetIsEmpty(t *testing.T) {
	var s Set
	assert.False(t, s.Contains(civil.Date{Y: 2025, M: time.January, D: 1}))
	assert.Empty(t, s.Dates())
}
