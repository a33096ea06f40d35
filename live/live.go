// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package live reconciles the dateless estimated times of arrival published by the
// real-time feeds with the current instant.
package live

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

// Record is a single estimate from an ETA feed.
type Record struct {
	ETA string `json:"eta"`
}

// UnmarshalJSON never fails: a record which isn't an object, or whose eta isn't a string,
// ends up with an empty ETA and is skipped by Resolve.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		ETA json.RawMessage `json:"eta"`
	}

	r.ETA = ""
	if json.Unmarshal(data, &raw) == nil && len(raw.ETA) > 0 {
		json.Unmarshal(raw.ETA, &r.ETA)
	}
	return nil
}

// Feed groups the records of a single direction.
type Feed struct {
	Direction schedule.Direction
	Records   []Record
}

type Arrival struct {
	Direction     schedule.Direction `json:"-"`
	DirectionName string             `json:"direction"`
	From          string             `json:"from"`
	To            string             `json:"to"`

	Arrival     string    `json:"arrival_time"`
	ArrivalTime time.Time `json:"arrival_at"`

	MinutesUntil int    `json:"minutes_until"`
	TimeUntil    string `json:"time_until"`
	IsToday      bool   `json:"is_today"`
}

// AmbiguityThreshold is the minimum difference (in hours) between the current hour and an
// already-passed ETA hour for that ETA to be considered as referring to tomorrow.
const AmbiguityThreshold = 12

// Place decides on which day a dateless ETA falls. ETAs later today are taken as-is;
// passed ETAs far away from the current hour are moved to tomorrow; and
// passed ETAs close to the current hour are stale readings, reported with ok=false.
func Place(eta civil.TimeOfDay, now time.Time) (t time.Time, isToday bool, ok bool) {
	today := civil.NewDateFromTime(now)

	if t = today.At(eta, now.Location()); t.After(now) {
		return t, true, true
	}

	if hourGap := now.Hour() - eta.Hour(); hourGap > AmbiguityThreshold || hourGap < -AmbiguityThreshold {
		return today.AddDays(1).At(eta, now.Location()), false, true
	}

	return time.Time{}, false, false
}

// Resolve converts the records of all feeds into arrivals strictly after now, ranked by
// their "HH:MM" arrival clock. Records with equal clocks keep their feed and record order.
// Records with a malformed ETA, and stale records, are skipped.
func Resolve(now time.Time, feeds ...Feed) []Arrival {
	var arrivals []Arrival

	for _, feed := range feeds {
		for _, record := range feed.Records {
			eta, err := civil.ParseClock(record.ETA)
			if err != nil {
				continue
			}

			t, isToday, ok := Place(eta, now)
			if !ok {
				continue
			}

			minutes := schedule.MinutesUntil(now, t)
			if minutes <= 0 {
				continue
			}

			arrivals = append(arrivals, Arrival{
				Direction:     feed.Direction,
				DirectionName: feed.Direction.String(),
				From:          feed.Direction.From(),
				To:            feed.Direction.To(),
				Arrival:       t.Format("15:04"),
				ArrivalTime:   t,
				MinutesUntil:  minutes,
				TimeUntil:     schedule.FormatCountdown(minutes),
				IsToday:       isToday,
			})
		}
	}

	slices.SortStableFunc(arrivals, func(a, b Arrival) int {
		switch {
		case a.Arrival < b.Arrival:
			return -1
		case a.Arrival > b.Arrival:
			return 1
		default:
			return 0
		}
	})

	return arrivals
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeFeed parses an ETA document, either a bare JSON array of records
// or an object wrapping the array in its "data" member.
func DecodeFeed(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))

	var records []Record
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("eta feed: %w", err)
		}
		return records, nil
	}

	var wrapped struct {
		Data []Record `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("eta feed: %w", err)
	}
	return wrapped.Data, nil
}
