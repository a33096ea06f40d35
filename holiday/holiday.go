// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package holiday builds the set of public holidays out of the iCal-as-JSON calendar
// published by the Hong Kong government (1823.gov.hk).
package holiday

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/MKuranowski/go-extra-lib/container/set"

	"github.com/MKuranowski/MuiWoFerry/civil"
)

// Set is an immutable set of civil dates flagged as public holidays.
// The zero value is an empty set.
type Set struct {
	dates set.Set[civil.Date]
}

func NewSet(dates ...civil.Date) Set {
	s := Set{dates: make(set.Set[civil.Date], len(dates))}
	for _, d := range dates {
		s.dates.Add(d)
	}
	return s
}

// Contains checks whether d is a public holiday.
func (s Set) Contains(d civil.Date) bool {
	_, has := s.dates[d]
	return has
}

func (s Set) Len() int { return len(s.dates) }

// Dates returns all holidays in chronological order.
func (s Set) Dates() []civil.Date {
	dates := make([]civil.Date, 0, len(s.dates))
	for d := range s.dates {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b civil.Date) int {
		return a.AsTime(time.UTC).Compare(b.AsTime(time.UTC))
	})
	return dates
}

// Report summarizes a single decoding of the calendar document.
type Report struct {
	Records int
	Dropped int
}

type calendarDocument struct {
	VCalendar []struct {
		VEvent []calendarEvent `json:"vevent"`
	} `json:"vcalendar"`
}

type calendarEvent struct {
	DTStart json.RawMessage `json:"dtstart"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode parses the calendar document into a Set. Only a document which is not JSON at all
// is an error; individual events with a missing or malformed start date are skipped.
func Decode(data []byte) (Set, Report, error) {
	var doc calendarDocument
	var report Report

	err := json.Unmarshal(bytes.TrimPrefix(data, utf8BOM), &doc)
	if err != nil {
		return Set{}, report, fmt.Errorf("holiday calendar: %w", err)
	}

	var dates []civil.Date
	for _, cal := range doc.VCalendar {
		for _, event := range cal.VEvent {
			report.Records++

			raw, ok := startDateString(event.DTStart)
			if !ok {
				report.Dropped++
				continue
			}

			d, err := civil.ParseCompactDate(raw)
			if err != nil {
				report.Dropped++
				continue
			}

			dates = append(dates, d)
		}
	}

	return NewSet(dates...), report, nil
}

// startDateString extracts the date string out of the different shapes a dtstart property
// may have: a bare string, a [value, parameters] array,
// or an object with a "date" or "date-time" member.
func startDateString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var str string
	if json.Unmarshal(raw, &str) == nil {
		return str, str != ""
	}

	var arr []json.RawMessage
	if json.Unmarshal(raw, &arr) == nil {
		if len(arr) == 0 {
			return "", false
		}
		return startDateString(arr[0])
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) == nil {
		for _, key := range [...]string{"date", "date-time", "value"} {
			if v, has := obj[key]; has {
				if s, ok := startDateString(v); ok {
					return s, true
				}
			}
		}
	}

	return "", false
}
