// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package source retrieves the raw timetable, holiday calendar and ETA documents.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/MKuranowski/go-extra-lib/clock"
	"github.com/MKuranowski/go-extra-lib/resource"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/MKuranowski/MuiWoFerry/civil"
)

// ErrUnavailable is wrapped by errors of sources which failed after all retries.
var ErrUnavailable = errors.New("source unavailable")

// Fetcher retrieves the raw content of a single document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

type FetcherFunc func(ctx context.Context) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

/********
 * HTTP *
 ********/

type RetryPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:        3,
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
}

func (p RetryPolicy) backOff(ctx context.Context, clk backoff.Clock) backoff.BackOff {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               clk,
	}
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// HTTPFetcher GETs a document, retrying transient failures with exponential back-off.
// Client errors (4xx) are not retried.
type HTTPFetcher struct {
	Name      string
	URL       string
	UserAgent string
	Client    *http.Client
	Retry     RetryPolicy

	// Clock drives the back-off timer. If nil, clock.System is used.
	Clock civil.Clock
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	var clk civil.Clock = clock.System
	if f.Clock != nil {
		clk = f.Clock
	}

	content, err := backoff.RetryNotifyWithData(
		func() ([]byte, error) { return f.fetchOnce(ctx) },
		f.Retry.backOff(ctx, clk),
		func(err error, d time.Duration) {
			log.Warn().Err(err).Str("source", f.Name).Dur("backoff", d).Msg("Fetching failed, retrying")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, f.Name, err)
	}
	return content, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("GET %s: %s", f.URL, resp.Status))
	} else if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: %s", f.URL, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", f.URL, err)
	}
	return content, nil
}

/******************
 * LOCAL RESOURCE *
 ******************/

// ResourceFetcher reads a document through a go-extra-lib resource. Fetches are conditional:
// when the resource reports no change, the previously read content is returned.
type ResourceFetcher struct {
	Name     string
	Resource resource.Interface

	mu   sync.Mutex
	last []byte
}

// NewFileFetcher reads a local file, re-reading it at most once per minimalTimeBetween.
func NewFileFetcher(name, path string, minimalTimeBetween time.Duration) *ResourceFetcher {
	return &ResourceFetcher{
		Name: name,
		Resource: &resource.TimeLimited{
			R:                  resource.Local(path),
			MinimalTimeBetween: minimalTimeBetween,
		},
	}
}

func (f *ResourceFetcher) Fetch(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _, err := f.Resource.Fetch(resource.Conditional)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, f.Name, err)
	}

	if body == nil {
		if f.last == nil {
			return nil, fmt.Errorf("%w: %s: no content", ErrUnavailable, f.Name)
		}
		return f.last, nil
	}

	if closer, ok := body.(io.Closer); ok {
		defer closer.Close()
	}

	content, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read: %w", ErrUnavailable, f.Name, err)
	}

	f.last = content
	return content, nil
}

/*********
 * EMPTY *
 *********/

// Static always returns the same content. Used for disabled sources.
type Static []byte

func (s Static) Fetch(context.Context) ([]byte, error) { return s, nil }
