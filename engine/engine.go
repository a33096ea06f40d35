// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package engine keeps the resolved ferry departures and live arrivals up to date.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/exp/maps"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/holiday"
	"github.com/MKuranowski/MuiWoFerry/live"
	"github.com/MKuranowski/MuiWoFerry/schedule"
	"github.com/MKuranowski/MuiWoFerry/source"
)

var (
	// ErrClosed is returned by cycles started, or finished, after Close.
	ErrClosed = errors.New("engine closed")

	// ErrCycleInProgress is returned by cycles triggered while another one is still running.
	// Such cycles are skipped, not queued.
	ErrCycleInProgress = errors.New("refresh cycle already in progress")
)

// ScheduleErrorText is set as State.Error when the timetable can't be loaded.
const ScheduleErrorText = "Failed to load ferry schedule"

const (
	SourceSchedule = "schedule"
	SourceHolidays = "holidays"
)

// SourceETA returns the name under which failures of a direction's ETA feed are reported.
func SourceETA(d schedule.Direction) string {
	return "eta " + d.String()
}

// TimetableSource provides the raw rows of the timetable document.
type TimetableSource interface {
	Rows(ctx context.Context) ([]schedule.Row, error)
}

// Sources are the documents the engine is fed with. Timetable and Holidays are required.
type Sources struct {
	Timetable TimetableSource
	Holidays  source.Fetcher

	// ETA has a feed for every tracked direction. Directions without a feed
	// never have live arrivals.
	ETA map[schedule.Direction]source.Fetcher
}

type Options struct {
	Ingest schedule.Options

	// Tick is the cadence of the periodic refresh. Ticks are aligned to multiples
	// of Tick counted from the civil midnight. Defaults to one minute.
	Tick time.Duration

	// FetchEvery is how often the periodic loop fetches the ETA feeds, rounded down to
	// a multiple of Tick. Ticks in between only recompute the results against the current
	// time. Defaults to Tick.
	FetchEvery time.Duration

	// StaticRefresh is the minimal time between fetches of the timetable and the holiday
	// calendar. ETA feeds are fetched on every cycle. Defaults to one hour.
	StaticRefresh time.Duration

	// Observer is notified about ingest outcomes and cycles. Defaults to LogObserver.
	Observer Observer

	// Publisher, if set, receives every committed State.
	Publisher Publisher
}

// State is the merged, read-only output of the engine.
type State struct {
	Entries        []schedule.Entry         `json:"entries"`
	Holidays       []civil.Date             `json:"holidays"`
	NextDepartures []schedule.NextDeparture `json:"next_departures"`
	LiveArrivals   []live.Arrival           `json:"live_arrivals"`

	Now         time.Time `json:"now"`
	LastRefresh time.Time `json:"last_refresh"`
	Loading     bool      `json:"loading"`

	// Error is the user-facing error indicator, only set when the timetable is unavailable.
	Error string `json:"error,omitempty"`

	// SourceErrors has the last error of every source whose last fetch failed.
	SourceErrors map[string]string `json:"source_errors,omitempty"`

	SkippedCycles int `json:"skipped_cycles"`
}

type Engine struct {
	resolver *civil.Resolver
	sources  Sources
	opts     Options

	// cycle is held for the whole duration of a refresh cycle
	cycle sync.Mutex

	// mu guards everything below
	mu         sync.RWMutex
	closed     bool
	store      *schedule.Store
	holidays   holiday.Set
	feeds      map[schedule.Direction][]live.Record
	lastStatic time.Time
	staticOK   bool
	state      State

	activate  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(resolver *civil.Resolver, sources Sources, opts Options) *Engine {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.FetchEvery < opts.Tick {
		opts.FetchEvery = opts.Tick
	}
	if opts.StaticRefresh <= 0 {
		opts.StaticRefresh = time.Hour
	}
	if opts.Observer == nil {
		opts.Observer = LogObserver{}
	}

	return &Engine{
		resolver: resolver,
		sources:  sources,
		opts:     opts,
		feeds:    make(map[schedule.Direction][]live.Record),
		state:    State{Loading: true},
		activate: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Holidays returns the currently known public holidays.
func (e *Engine) Holidays() holiday.Set {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.holidays
}

// Store returns the currently loaded timetable. May be nil before the first successful load.
func (e *Engine) Store() *schedule.Store {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store
}

func (e *Engine) Resolver() *civil.Resolver { return e.resolver }

/**********
 * CYCLES *
 **********/

// Initialize fetches all sources and computes the first results.
func (e *Engine) Initialize(ctx context.Context) error {
	return e.runCycle(ctx, true)
}

// Refresh fetches the ETA feeds, and the static sources if they are due,
// and recomputes all results.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.runCycle(ctx, false)
}

// Tick recomputes all results against the current time, without fetching anything.
func (e *Engine) Tick() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.resolveLocked(e.resolver.Now())
	state := e.snapshotLocked()
	e.mu.Unlock()

	e.publish(state)
	return nil
}

type fetchResult[T any] struct {
	value T
	err   error
}

func (e *Engine) runCycle(ctx context.Context, forceStatic bool) error {
	if !e.cycle.TryLock() {
		e.mu.Lock()
		e.state.SkippedCycles++
		e.mu.Unlock()

		e.opts.Observer.CycleSkipped()
		return ErrCycleInProgress
	}
	defer e.cycle.Unlock()

	e.mu.RLock()
	closed := e.closed
	// Static sources are re-fetched when due, or on every cycle until they load successfully
	refreshStatic := forceStatic || !e.staticOK || e.resolver.Now().Sub(e.lastStatic) >= e.opts.StaticRefresh
	e.mu.RUnlock()

	if closed {
		return ErrClosed
	}

	started := time.Now()

	// Scatter
	var (
		rows     fetchResult[[]schedule.Row]
		holidays fetchResult[[]byte]
		etas     = make(map[schedule.Direction]*fetchResult[[]byte], len(e.sources.ETA))
	)

	wg := conc.NewWaitGroup()
	if refreshStatic {
		wg.Go(func() { rows.value, rows.err = e.sources.Timetable.Rows(ctx) })
		wg.Go(func() { holidays.value, holidays.err = e.sources.Holidays.Fetch(ctx) })
	}
	for d, f := range e.sources.ETA {
		r := &fetchResult[[]byte]{}
		etas[d] = r
		wg.Go(func() { r.value, r.err = f.Fetch(ctx) })
	}

	// Gather
	wg.Wait()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	} else if err := ctx.Err(); err != nil {
		// The caller gave up on this cycle, all fetches carry its cancellation
		e.mu.Unlock()
		return err
	}

	if refreshStatic {
		scheduleOK := e.commitSchedule(rows)
		holidaysOK := e.commitHolidays(holidays)
		e.staticOK = scheduleOK && holidaysOK
		if e.staticOK {
			e.lastStatic = e.resolver.Now()
		}
	}

	for d, r := range etas {
		e.commitETA(d, r)
	}

	now := e.resolver.Now()
	e.resolveLocked(now)
	e.state.LastRefresh = now
	e.state.Loading = false
	state := e.snapshotLocked()
	e.mu.Unlock()

	e.opts.Observer.CycleCompleted(state, time.Since(started))
	e.publish(state)
	return nil
}

func (e *Engine) commitSchedule(r fetchResult[[]schedule.Row]) bool {
	if r.err != nil {
		e.recordSourceError(SourceSchedule, r.err)
		e.state.Error = ScheduleErrorText
		return false
	}

	store, report := schedule.Ingest(r.value, e.opts.Ingest)
	e.opts.Observer.ScheduleIngested(report)

	e.store = store
	e.state.Entries = store.Entries()
	e.state.Error = ""
	e.clearSourceError(SourceSchedule)
	return true
}

func (e *Engine) commitHolidays(r fetchResult[[]byte]) bool {
	err := r.err
	if err == nil {
		var set holiday.Set
		var report holiday.Report
		set, report, err = holiday.Decode(r.value)
		if err == nil {
			e.opts.Observer.HolidaysIngested(report)
			e.holidays = set
			e.state.Holidays = set.Dates()
			e.clearSourceError(SourceHolidays)
			return true
		}
	}

	e.recordSourceError(SourceHolidays, err)
	return false
}

func (e *Engine) commitETA(d schedule.Direction, r *fetchResult[[]byte]) {
	name := SourceETA(d)

	err := r.err
	if err == nil {
		var records []live.Record
		records, err = live.DecodeFeed(r.value)
		if err == nil {
			e.feeds[d] = records
			e.clearSourceError(name)
			return
		}
	}

	e.recordSourceError(name, err)
}

func (e *Engine) recordSourceError(name string, err error) {
	e.opts.Observer.SourceFailed(name, err)
	if e.state.SourceErrors == nil {
		e.state.SourceErrors = make(map[string]string)
	}
	e.state.SourceErrors[name] = err.Error()
}

func (e *Engine) clearSourceError(name string) {
	delete(e.state.SourceErrors, name)
}

func (e *Engine) resolveLocked(now time.Time) {
	today, tomorrow := e.resolver.Today(now), e.resolver.Tomorrow(now)

	feeds := make([]live.Feed, 0, len(schedule.Directions))
	for _, d := range schedule.Directions {
		if records, ok := e.feeds[d]; ok {
			feeds = append(feeds, live.Feed{Direction: d, Records: records})
		}
	}

	e.state.Now = now
	e.state.NextDepartures = schedule.NextAll(today, tomorrow, now, e.store, e.holidays)
	e.state.LiveArrivals = live.Resolve(now, feeds...)
}

func (e *Engine) snapshotLocked() State {
	s := e.state
	s.SourceErrors = maps.Clone(e.state.SourceErrors)
	return s
}

func (e *Engine) publish(s State) {
	if e.opts.Publisher == nil {
		return
	}
	if err := e.opts.Publisher.Publish(s); err != nil {
		e.opts.Observer.PublishFailed(err)
	}
}

/********
 * LOOP *
 ********/

// Activate asks the running loop for an immediate full refresh, e.g. when the consumer
// becomes visible again. Multiple pending activations are coalesced.
func (e *Engine) Activate() {
	select {
	case e.activate <- struct{}{}:
	default:
	}
}

// Close tears the engine down: Run returns, and results of in-flight cycles are dropped.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		close(e.done)
	})
}

// Run initializes the engine and refreshes it on tick boundaries and activations,
// until ctx is cancelled or Close is called. Cancelling ctx closes the engine,
// so that cycles still in flight are dropped.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()
	stop := context.AfterFunc(ctx, e.Close)
	defer stop()

	if err := e.Initialize(ctx); errors.Is(err, ErrClosed) {
		return nil
	}

	timer := time.NewTimer(e.untilNextTick())
	defer timer.Stop()

	fetchEvery := int(e.opts.FetchEvery / e.opts.Tick)
	ticks := 0

	for {
		var err error

		select {
		case <-ctx.Done():
			return nil
		case <-e.done:
			return nil
		case <-timer.C:
			ticks++
			if ticks%fetchEvery == 0 {
				err = e.Refresh(ctx)
			} else {
				err = e.Tick()
			}
		case <-e.activate:
			ticks = 0
			err = e.runCycle(ctx, true)
		}

		if errors.Is(err, ErrClosed) {
			return nil
		}

		// Realign against the operating timezone's clock after every cycle,
		// so that a slow or out-of-band cycle doesn't shift the cadence.
		timer.Reset(e.untilNextTick())
	}
}

func (e *Engine) untilNextTick() time.Duration {
	return civil.UntilNextBoundary(e.resolver.Now(), e.opts.Tick)
}
