// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package schedule holds the parsed timetable and resolves the next scheduled departure
// in every direction.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MKuranowski/go-extra-lib/iter"

	"github.com/MKuranowski/MuiWoFerry/civil"
)

// ErrMalformedRow is wrapped by the reasons of all rows dropped at ingest.
var ErrMalformedRow = errors.New("malformed timetable row")

// Row is a single, raw record of the timetable document.
type Row struct {
	Direction string
	DayType   string
	Time      string
	Remark    string
}

type Entry struct {
	Direction Direction       `json:"direction"`
	DayType   DayType         `json:"day_type"`
	Departure civil.TimeOfDay `json:"departure_time"`
	Remark    string          `json:"remarks,omitempty"`

	// Seq is the position of the entry's row in the source document.
	Seq int `json:"-"`
}

// DroppedRow describes why a row never made it into the Store.
type DroppedRow struct {
	Index  int
	Reason error
}

type IngestReport struct {
	Rows    int
	Kept    int
	Dropped []DroppedRow
}

type Options struct {
	Aliases AliasTable
	Remarks RemarkTable

	// Crossing is the time a ferry takes from one pier to the other,
	// used to derive arrival times. Zero means arrival times equal departure times.
	Crossing time.Duration
}

type serviceKey struct {
	Direction Direction
	DayType   DayType
}

// Store is an immutable collection of timetable entries.
type Store struct {
	entries  []Entry
	services map[serviceKey][]Entry
	crossing time.Duration
}

// NewStore indexes the provided entries. Entries with an invalid departure time are kept in
// Entries, but never returned by Departures.
func NewStore(entries []Entry, crossing time.Duration) *Store {
	s := &Store{
		entries:  slices.Clone(entries),
		services: make(map[serviceKey][]Entry),
		crossing: crossing,
	}

	grouped := iter.AggregateBy(iter.OverSlice(s.entries), func(e Entry) serviceKey {
		return serviceKey{e.Direction, e.DayType}
	})

	for key, group := range grouped {
		valid := make([]Entry, 0, len(group))
		for _, e := range group {
			if e.Departure.Valid() {
				valid = append(valid, e)
			}
		}

		slices.SortStableFunc(valid, func(a, b Entry) int {
			if a.Departure != b.Departure {
				return int(a.Departure) - int(b.Departure)
			}
			return a.Seq - b.Seq
		})
		s.services[key] = valid
	}

	return s
}

// Ingest normalizes raw rows into a Store. Rows with an unrecognized direction, day-type
// or departure time are dropped and listed in the returned report; ingest as a whole never fails.
func Ingest(rows []Row, opts Options) (*Store, IngestReport) {
	if opts.Aliases == nil {
		opts.Aliases = DefaultAliases()
	}
	if opts.Remarks == nil {
		opts.Remarks = DefaultRemarks()
	}

	report := IngestReport{Rows: len(rows)}
	entries := make([]Entry, 0, len(rows))

	for i, row := range rows {
		direction, ok := opts.Aliases.Normalize(row.Direction)
		if !ok {
			report.Dropped = append(report.Dropped, DroppedRow{i, fmt.Errorf("%w: unknown direction %q", ErrMalformedRow, row.Direction)})
			continue
		}

		dayType, ok := ParseDayType(row.DayType)
		if !ok {
			report.Dropped = append(report.Dropped, DroppedRow{i, fmt.Errorf("%w: unknown day type %q", ErrMalformedRow, row.DayType)})
			continue
		}

		departure := ParseDepartureTime(row.Time)
		if !departure.Valid() {
			report.Dropped = append(report.Dropped, DroppedRow{i, fmt.Errorf("%w: invalid time %q", ErrMalformedRow, row.Time)})
			continue
		}

		entries = append(entries, Entry{
			Direction: direction,
			DayType:   dayType,
			Departure: departure,
			Remark:    opts.Remarks.Lookup(row.Remark),
			Seq:       i,
		})
	}

	report.Kept = len(entries)
	return NewStore(entries, opts.Crossing), report
}

// Entries returns all entries in source order.
func (s *Store) Entries() []Entry {
	if s == nil {
		return nil
	}
	return slices.Clone(s.entries)
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Departures returns all valid entries of a direction and day type, by ascending departure time.
// Entries departing at the same time keep their source order.
func (s *Store) Departures(d Direction, t DayType) []Entry {
	if s == nil {
		return nil
	}
	return s.services[serviceKey{d, t}]
}

func (s *Store) Crossing() time.Duration {
	if s == nil {
		return 0
	}
	return s.crossing
}
