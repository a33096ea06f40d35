// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/holiday"
)

// NextDeparture is the next scheduled sailing in a single direction.
type NextDeparture struct {
	Direction     Direction `json:"-"`
	DirectionName string    `json:"direction"`
	From          string    `json:"from"`
	To            string    `json:"to"`

	Departure     string    `json:"departure_time"`
	Arrival       string    `json:"arrival_time"`
	DepartureTime time.Time `json:"departure_at"`
	ArrivalTime   time.Time `json:"arrival_at"`

	MinutesUntil int    `json:"minutes_until"`
	TimeUntil    string `json:"time_until"`
	IsToday      bool   `json:"is_today"`
	Remark       string `json:"remarks,omitempty"`
}

// MinutesUntil returns the number of started minutes between now and t.
func MinutesUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Minutes()))
}

// FormatCountdown renders a minute count as "42m", or "1h 5m" above an hour.
func FormatCountdown(minutes int) string {
	if minutes > 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// Next finds the next departure in direction d strictly after now. The remaining departures
// of today are checked first; if there are none, the first departure of tomorrow is taken.
// now must already be in the operating timezone.
func Next(d Direction, today, tomorrow civil.Date, now time.Time, store *Store, holidays holiday.Set) (NextDeparture, bool) {
	loc := now.Location()

	for _, e := range store.Departures(d, Classify(today, holidays)) {
		at := today.At(e.Departure, loc)
		if at.After(now) {
			return newNextDeparture(e, at, now, true, store.Crossing()), true
		}
	}

	// tomorrow is always in the future, no need to compare against now
	if tomorrowEntries := store.Departures(d, Classify(tomorrow, holidays)); len(tomorrowEntries) > 0 {
		e := tomorrowEntries[0]
		at := tomorrow.At(e.Departure, loc)
		return newNextDeparture(e, at, now, false, store.Crossing()), true
	}

	return NextDeparture{}, false
}

// NextAll runs Next for every direction, skipping directions without any departure.
func NextAll(today, tomorrow civil.Date, now time.Time, store *Store, holidays holiday.Set) []NextDeparture {
	results := make([]NextDeparture, 0, len(Directions))
	for _, d := range Directions {
		if next, ok := Next(d, today, tomorrow, now, store, holidays); ok {
			results = append(results, next)
		}
	}
	return results
}

func newNextDeparture(e Entry, at, now time.Time, isToday bool, crossing time.Duration) NextDeparture {
	minutes := MinutesUntil(now, at)
	arrival := at.Add(crossing)
	return NextDeparture{
		Direction:     e.Direction,
		DirectionName: e.Direction.String(),
		From:          e.Direction.From(),
		To:            e.Direction.To(),
		Departure:     at.Format("15:04"),
		Arrival:       arrival.Format("15:04"),
		DepartureTime: at,
		ArrivalTime:   arrival,
		MinutesUntil:  minutes,
		TimeUntil:     FormatCountdown(minutes),
		IsToday:       isToday,
		Remark:        e.Remark,
	}
}
