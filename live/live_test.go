// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

var hkt = time.FixedZone("HKT", 8*60*60)

func at(d, h, m int) time.Time {
	return time.Date(2025, time.October, d, h, m, 0, 0, hkt)
}

func records(etas ...string) []Record {
	r := make([]Record, len(etas))
	for i, eta := range etas {
		r[i] = Record{ETA: eta}
	}
	return r
}

func TestPlace(t *testing.T) {
	tests := []struct {
		name    string
		now     time.Time
		eta     civil.TimeOfDay
		want    time.Time
		isToday bool
		ok      bool
	}{
		{"later today", at(15, 9, 0), civil.NewTimeOfDay(9, 20), at(15, 9, 20), true, true},
		{"after midnight", at(15, 23, 50), civil.NewTimeOfDay(0, 10), at(16, 0, 10), false, true},
		{"exactly now is stale", at(15, 9, 0), civil.NewTimeOfDay(9, 0), time.Time{}, false, false},
		{"recently passed", at(15, 9, 0), civil.NewTimeOfDay(8, 55), time.Time{}, false, false},
		{"twelve hour gap is stale", at(15, 13, 0), civil.NewTimeOfDay(1, 0), time.Time{}, false, false},
		{"thirteen hour gap", at(15, 14, 0), civil.NewTimeOfDay(1, 0), at(16, 1, 0), false, true},
	}

	for _, tc := range tests {
		got, isToday, ok := Place(tc.eta, tc.now)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.isToday, isToday, tc.name)
		if tc.ok {
			assert.True(t, tc.want.Equal(got), "%s: got %s", tc.name, got)
		}
	}
}

func TestResolveMidnightRollover(t *testing.T) {
	arrivals := Resolve(at(15, 23, 50), Feed{schedule.CentralToMuiWo, records("00:10")})

	require.Len(t, arrivals, 1)
	assert.False(t, arrivals[0].IsToday)
	assert.Equal(t, "00:10", arrivals[0].Arrival)
	assert.Equal(t, 20, arrivals[0].MinutesUntil)
	assert.Equal(t, "20m", arrivals[0].TimeUntil)
}

func TestResolveDropsStaleAndMalformed(t *testing.T) {
	arrivals := Resolve(at(15, 9, 0),
		Feed{schedule.CentralToMuiWo, records("08:59", "09:00", "9:30", "", "bogus", "25:00", "09:30")},
	)

	require.Len(t, arrivals, 1)
	assert.Equal(t, "09:30", arrivals[0].Arrival)
	assert.True(t, arrivals[0].IsToday)
}

func TestResolveRanksAcrossDirections(t *testing.T) {
	arrivals := Resolve(at(15, 7, 0),
		Feed{schedule.CentralToMuiWo, records("09:15", "08:05")},
		Feed{schedule.MuiWoToCentral, records("08:05", "07:30")},
	)

	require.Len(t, arrivals, 4)
	assert.Equal(t, "07:30", arrivals[0].Arrival)

	assert.Equal(t, "08:05", arrivals[1].Arrival)
	assert.Equal(t, schedule.CentralToMuiWo, arrivals[1].Direction)
	assert.Equal(t, "08:05", arrivals[2].Arrival)
	assert.Equal(t, schedule.MuiWoToCentral, arrivals[2].Direction)
	assert.Equal(t, "Mui Wo", arrivals[2].From)

	assert.Equal(t, "09:15", arrivals[3].Arrival)
	assert.Equal(t, "2h 15m", arrivals[3].TimeUntil)
}

func TestResolveEmpty(t *testing.T) {
	assert.Empty(t, Resolve(at(15, 7, 0)))
	assert.Empty(t, Resolve(at(15, 7, 0), Feed{Direction: schedule.MuiWoToCentral}))
}

func TestDecodeFeed(t *testing.T) {
	recs, err := DecodeFeed([]byte(`{"data": [{"eta": "08:05", "vessel": "Xin Ming Zhu"}, {"eta": 805}, "garbage", {}]}`))
	require.NoError(t, err)
	assert.Equal(t, records("08:05", "", "", ""), recs)

	recs, err = DecodeFeed([]byte("\xEF\xBB\xBF [{\"eta\": \"10:00\"}]"))
	require.NoError(t, err)
	assert.Equal(t, records("10:00"), recs)

	recs, err = DecodeFeed([]byte(`{"status": "no data"}`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = DecodeFeed([]byte(`<html>`))
	assert.Error(t, err)
}
