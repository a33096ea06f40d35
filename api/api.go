// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package api exposes the engine state over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/engine"
	"github.com/MKuranowski/MuiWoFerry/holiday"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

// Backend is the part of the engine served by the API.
type Backend interface {
	Snapshot() engine.State
	Holidays() holiday.Set
	Resolver() *civil.Resolver
	Activate()
}

func NewApp(backend Backend) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(NewLogger())

	h := handlers{backend}
	app.Get("/health", h.health)
	app.Get("/state", h.state)
	app.Get("/departures", h.departures)
	app.Get("/arrivals", h.arrivals)
	app.Get("/day-type", h.dayType)
	app.Post("/activate", h.activate)

	return app
}

// Serve runs the app on the listen address until ctx is cancelled.
func Serve(ctx context.Context, app *fiber.App, listen string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(listen) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.ShutdownWithTimeout(5 * time.Second)
	}
}

type handlers struct {
	backend Backend
}

func (h handlers) health(c *fiber.Ctx) error {
	s := h.backend.Snapshot()

	switch {
	case s.Loading:
		c.Status(fiber.StatusServiceUnavailable)
		return c.JSON(fiber.Map{"status": "loading"})
	case s.Error != "":
		c.Status(fiber.StatusServiceUnavailable)
		return c.JSON(fiber.Map{"status": "error", "error": s.Error, "source_errors": s.SourceErrors})
	default:
		return c.JSON(fiber.Map{"status": "ok", "last_refresh": s.LastRefresh})
	}
}

func (h handlers) state(c *fiber.Ctx) error {
	return c.JSON(h.backend.Snapshot())
}

func (h handlers) departures(c *fiber.Ctx) error {
	s := h.backend.Snapshot()
	return c.JSON(fiber.Map{
		"loading":    s.Loading,
		"error":      s.Error,
		"now":        s.Now,
		"departures": s.NextDepartures,
	})
}

func (h handlers) arrivals(c *fiber.Ctx) error {
	s := h.backend.Snapshot()
	return c.JSON(fiber.Map{
		"now":      s.Now,
		"arrivals": s.LiveArrivals,
	})
}

func (h handlers) dayType(c *fiber.Ctx) error {
	var date civil.Date
	if q := c.Query("date"); q != "" {
		var err error
		date, err = civil.ParseDate(q)
		if err != nil {
			c.Status(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{"error": "date must be formatted as YYYY-MM-DD"})
		}
	} else {
		r := h.backend.Resolver()
		date = r.Today(r.Now())
	}

	holidays := h.backend.Holidays()
	return c.JSON(fiber.Map{
		"date":       date,
		"day_type":   schedule.Classify(date, holidays),
		"is_holiday": schedule.IsHoliday(date, holidays),
	})
}

func (h handlers) activate(c *fiber.Ctx) error {
	h.backend.Activate()
	return c.SendStatus(fiber.StatusAccepted)
}

func NewLogger() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		startTime := time.Now()
		err = c.Next()

		msg := "HTTP Request"
		if err != nil {
			msg = err.Error()
		}

		code := c.Response().StatusCode()

		requestLogger := log.With().
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Str("latency", time.Since(startTime).String()).
			Logger()

		switch {
		case code >= fiber.StatusBadRequest && code < fiber.StatusInternalServerError:
			requestLogger.Warn().Msg(msg)
		case code >= http.StatusInternalServerError:
			requestLogger.Error().Msg(msg)
		default:
			requestLogger.Debug().Msg(msg)
		}

		return err
	}
}
