// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKuranowski/MuiWoFerry/schedule"
)

var fastRetry = RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "muiwo-ferry-test", r.Header.Get("User-Agent"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Name: "eta", URL: srv.URL, UserAgent: "muiwo-ferry-test", Retry: fastRetry}
	content, err := f.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", string(content))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := &HTTPFetcher{Name: "eta", URL: srv.URL, Retry: fastRetry}
	_, err := f.Fetch(context.Background())

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := &HTTPFetcher{Name: "schedule", URL: srv.URL, Retry: fastRetry}
	_, err := f.Fetch(context.Background())

	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &HTTPFetcher{Name: "eta", URL: srv.URL, Retry: RetryPolicy{Attempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}}
	_, err := f.Fetch(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holidays.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"vcalendar": []}`), 0o644))

	f := NewFileFetcher("holidays", path, time.Hour)

	content, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"vcalendar": []}`, string(content))

	content, err = f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"vcalendar": []}`, string(content))
}

func TestFileFetcherMissingFile(t *testing.T) {
	f := NewFileFetcher("holidays", filepath.Join(t.TempDir(), "missing.json"), time.Hour)
	_, err := f.Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestCachedFetcher(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var calls atomic.Int32
	upstream := FetcherFunc(func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("Direction,Service Date,Service Hour,Remark\n"), nil
	})

	f := &CachedFetcher{Upstream: upstream, Cache: NewRedisCache(client, time.Minute), Key: "ferry:schedule"}

	for range 3 {
		content, err := f.Fetch(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Direction,Service Date,Service Hour,Remark\n", string(content))
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, mr.Exists("ferry:schedule"))

	mr.FastForward(2 * time.Minute)
	_, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedFetcherUpstreamFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	f := &CachedFetcher{
		Upstream: FetcherFunc(func(context.Context) ([]byte, error) { return nil, ErrUnavailable }),
		Cache:    NewRedisCache(client, time.Minute),
		Key:      "ferry:eta",
	}

	_, err := f.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, mr.Exists("ferry:eta"))
}

const timetableCSV = "\xEF\xBB\xBFDirection,Service Date,Service Hour,Remark\n" +
	"Central - Mui Wo,Mondays to Fridays except public holidays,06:10 a.m.,\n" +
	"Mui Wo → Central,Saturdays except public holidays,12:30 p.m.,2\n" +
	"\"Central to Mui Wo\",Sundays and public holidays,\"11:50 p.m.\",1\n"

func TestDecodeCSV(t *testing.T) {
	rows, err := DecodeCSV([]byte(timetableCSV), DefaultColumns)
	require.NoError(t, err)

	assert.Equal(t, []schedule.Row{
		{Direction: "Central - Mui Wo", DayType: "Mondays to Fridays except public holidays", Time: "06:10 a.m."},
		{Direction: "Mui Wo → Central", DayType: "Saturdays except public holidays", Time: "12:30 p.m.", Remark: "2"},
		{Direction: "Central to Mui Wo", DayType: "Sundays and public holidays", Time: "11:50 p.m.", Remark: "1"},
	}, rows)

	store, report := schedule.Ingest(rows, schedule.Options{})
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 3, store.Len())
}

func TestDecodeCSVCustomColumns(t *testing.T) {
	rows, err := DecodeCSV([]byte("route,days,dep\nMui Wo-Central,SAT,7:00\n"), Columns{
		Direction: "route",
		DayType:   "days",
		Time:      "dep",
		Remark:    "notes",
	})
	require.NoError(t, err)
	assert.Equal(t, []schedule.Row{{Direction: "Mui Wo-Central", DayType: "SAT", Time: "7:00"}}, rows)
}

func TestDecodeCSVRaggedRows(t *testing.T) {
	rows, err := DecodeCSV([]byte(`Direction,Service Date,Service Hour,Remark
Central to Mui Wo,Mondays to Fridays except public holidays,7:00 a.m.
Mui Wo to Central,Mondays to Fridays except public holidays,7:30 a.m.,1
Central to Mui Wo,Saturdays except public holidays,8:00 a.m.,2,extra
`), DefaultColumns)
	require.NoError(t, err)

	assert.Equal(t, []schedule.Row{
		{Direction: "Central to Mui Wo", DayType: "Mondays to Fridays except public holidays", Time: "7:00 a.m."},
		{Direction: "Mui Wo to Central", DayType: "Mondays to Fridays except public holidays", Time: "7:30 a.m.", Remark: "1"},
		{Direction: "Central to Mui Wo", DayType: "Saturdays except public holidays", Time: "8:00 a.m.", Remark: "2"},
	}, rows)

	_, report := schedule.Ingest(rows, schedule.Options{})
	assert.Equal(t, 3, report.Kept)
	assert.Empty(t, report.Dropped)
}

func TestDecodeCSVEmpty(t *testing.T) {
	rows, err := DecodeCSV(nil, DefaultColumns)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

const timetableHTML = `<html><body>
<p>Central - Mui Wo</p>
<table class="timetable">
  <tr><th>Direction</th><th>Service Date</th><th>Service Hour</th><th>Remark</th></tr>
  <tr><td>Central → Mui Wo</td><td>Mondays to Fridays
      except public holidays</td><td> 7:40 a.m. </td><td>3</td></tr>
  <tr><td colspan="4">Fast ferry</td></tr>
  <tr><td>Mui Wo → Central</td><td>Sundays and public holidays</td><td>10:00 p.m.</td><td></td></tr>
</table>
<table><tr><th>Other</th></tr><tr><td>ignored</td></tr></table>
</body></html>`

func TestDecodeHTML(t *testing.T) {
	rows, err := DecodeHTML([]byte(timetableHTML), DefaultColumns)
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, schedule.Row{
		Direction: "Central → Mui Wo",
		DayType:   "Mondays to Fridays except public holidays",
		Time:      "7:40 a.m.",
		Remark:    "3",
	}, rows[0])
	assert.Equal(t, schedule.Row{Direction: "Fast ferry"}, rows[1])
	assert.Equal(t, "10:00 p.m.", rows[2].Time)

	_, report := schedule.Ingest(rows, schedule.Options{})
	assert.Equal(t, 2, report.Kept)
	assert.Len(t, report.Dropped, 1)
}

func TestDecodeHTMLWithoutTable(t *testing.T) {
	_, err := DecodeHTML([]byte("<html><body><p>Maintenance</p></body></html>"), DefaultColumns)
	assert.Error(t, err)
}

func TestTimetableRows(t *testing.T) {
	rows, err := Timetable{Fetcher: Static(timetableHTML), Format: FormatHTML, Columns: DefaultColumns}.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = Timetable{Fetcher: Static(timetableCSV), Columns: DefaultColumns}.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = Timetable{Fetcher: Static(""), Format: "xlsx"}.Rows(context.Background())
	assert.Error(t, err)

	_, err = Timetable{
		Fetcher: FetcherFunc(func(context.Context) ([]byte, error) { return nil, ErrUnavailable }),
	}.Rows(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
