// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package engine

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MKuranowski/MuiWoFerry/holiday"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

// Observer is notified about everything happening inside the engine.
// Ingest notifications are delivered while the engine is locked, so
// implementations must not call back into the engine.
type Observer interface {
	SourceFailed(source string, err error)
	ScheduleIngested(report schedule.IngestReport)
	HolidaysIngested(report holiday.Report)
	CycleCompleted(state State, took time.Duration)
	CycleSkipped()
	PublishFailed(err error)
}

// Publisher receives every committed State, e.g. to export it.
type Publisher interface {
	Publish(State) error
}

type PublisherFunc func(State) error

func (f PublisherFunc) Publish(s State) error { return f(s) }

// LogObserver writes all events to the global zerolog logger.
type LogObserver struct{}

func (LogObserver) SourceFailed(source string, err error) {
	log.Error().Err(err).Str("source", source).Msg("Failed to fetch source, keeping previous data")
}

func (LogObserver) ScheduleIngested(report schedule.IngestReport) {
	for _, dropped := range report.Dropped {
		log.Debug().Err(dropped.Reason).Int("row", dropped.Index).Msg("Dropped timetable row")
	}

	log.Info().
		Int("rows", report.Rows).
		Int("kept", report.Kept).
		Int("dropped", len(report.Dropped)).
		Msg("Loaded timetable")
}

func (LogObserver) HolidaysIngested(report holiday.Report) {
	log.Info().
		Int("records", report.Records).
		Int("dropped", report.Dropped).
		Msg("Loaded holiday calendar")
}

func (LogObserver) CycleCompleted(state State, took time.Duration) {
	log.Debug().
		Int("departures", len(state.NextDepartures)).
		Int("arrivals", len(state.LiveArrivals)).
		Int("failed_sources", len(state.SourceErrors)).
		Dur("took", took).
		Msg("Refresh cycle completed")
}

func (LogObserver) CycleSkipped() {
	log.Warn().Msg("Refresh cycle already in progress, skipping")
}

func (LogObserver) PublishFailed(err error) {
	log.Error().Err(err).Msg("Failed to publish state")
}
