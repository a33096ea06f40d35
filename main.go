// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v2"

	"github.com/MKuranowski/MuiWoFerry/api"
	"github.com/MKuranowski/MuiWoFerry/civil"
	"github.com/MKuranowski/MuiWoFerry/config"
	"github.com/MKuranowski/MuiWoFerry/engine"
	"github.com/MKuranowski/MuiWoFerry/holiday"
	"github.com/MKuranowski/MuiWoFerry/schedule"
)

func main() {
	if os.Getenv("FERRY_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if os.Getenv("FERRY_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:  "muiwo-ferry",
		Usage: "Next departures and live arrivals of the Central - Mui Wo ferry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "ferry.yaml",
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"FERRY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			onceCommand(),
			dayTypeCommand(),
			timetableCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func loadBuilder(c *cli.Context) (*builder, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newBuilder(cfg), nil
}

var exportFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "target",
		Usage: "where to put the GTFS-RT file, overrides export.target",
	},
	&cli.BoolFlag{
		Name:  "human-readable",
		Usage: "use human-readable protobuf format",
	},
}

func exportTarget(c *cli.Context, b *builder) (string, bool) {
	target := b.cfg.Export.Target
	if c.IsSet("target") {
		target = c.String("target")
	}
	return target, b.cfg.Export.HumanReadable || c.Bool("human-readable")
}

/*******
 * RUN *
 *******/

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "keep the departures up to date, serving them over HTTP and exporting them as GTFS-RT",
		Flags: exportFlags,
		Action: func(c *cli.Context) error {
			b, err := loadBuilder(c)
			if err != nil {
				return err
			}
			defer b.Close()

			e, err := b.Engine(b.Exporter(exportTarget(c, b)))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go forwardActivations(ctx, e)

			p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
			p.Go(e.Run)
			if listen := b.cfg.API.Listen; listen != "" {
				p.Go(func(ctx context.Context) error {
					log.Info().Str("listen", listen).Msg("Starting HTTP API")
					return api.Serve(ctx, api.NewApp(e), listen)
				})
			}

			return p.Wait()
		},
	}
}

// forwardActivations treats every SIGHUP as an activation signal
func forwardActivations(ctx context.Context, e *engine.Engine) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info().Msg("SIGHUP received, refreshing")
			e.Activate()
		}
	}
}

/********
 * ONCE *
 ********/

func onceCommand() *cli.Command {
	return &cli.Command{
		Name:  "once",
		Usage: "fetch all sources once and print the next departures and live arrivals",
		Flags: exportFlags,
		Action: func(c *cli.Context) error {
			b, err := loadBuilder(c)
			if err != nil {
				return err
			}
			defer b.Close()

			e, err := b.Engine(b.Exporter(exportTarget(c, b)))
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Initialize(c.Context); err != nil {
				return err
			}

			s := e.Snapshot()
			if s.Error != "" {
				return fmt.Errorf("%s: %s", s.Error, s.SourceErrors[engine.SourceSchedule])
			}

			printState(os.Stdout, s)
			return nil
		},
	}
}

func printState(w io.Writer, s engine.State) {
	fmt.Fprintf(w, "Now: %s\n\n", s.Now.Format("2006-01-02 15:04"))

	fmt.Fprintln(w, "Next departures:")
	for _, d := range s.NextDepartures {
		day := "today"
		if !d.IsToday {
			day = "tomorrow"
		}
		fmt.Fprintf(w, "  %-18s %s %-8s in %-7s %s\n", d.DirectionName, d.Departure, day, d.TimeUntil, d.Remark)
	}

	fmt.Fprintln(w, "\nLive arrivals:")
	if len(s.LiveArrivals) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, a := range s.LiveArrivals {
		fmt.Fprintf(w, "  %-18s %s in %s\n", a.DirectionName, a.Arrival, a.TimeUntil)
	}
}

/************
 * DAY TYPE *
 ************/

func dayTypeCommand() *cli.Command {
	return &cli.Command{
		Name:  "day-type",
		Usage: "classify a date with the public holiday calendar",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "date",
				Usage: "date to classify (YYYY-MM-DD), defaults to today",
			},
		},
		Action: func(c *cli.Context) error {
			b, err := loadBuilder(c)
			if err != nil {
				return err
			}
			defer b.Close()

			resolver, err := b.Resolver()
			if err != nil {
				return err
			}

			date := resolver.Today(resolver.Now())
			if c.IsSet("date") {
				date, err = civil.ParseDate(c.String("date"))
				if err != nil {
					return err
				}
			}

			data, err := b.Holidays().Fetch(c.Context)
			if err != nil {
				return err
			}

			holidays, _, err := holiday.Decode(data)
			if err != nil {
				return err
			}

			fmt.Printf("%s: %s (public holiday: %t)\n",
				date, schedule.Classify(date, holidays), schedule.IsHoliday(date, holidays))
			return nil
		},
	}
}

/*************
 * TIMETABLE *
 *************/

type timetableRow struct {
	Direction string `csv:"Direction"`
	DayType   string `csv:"Service Date"`
	Departure string `csv:"Service Hour"`
	Remark    string `csv:"Remarks"`
}

func timetableCommand() *cli.Command {
	return &cli.Command{
		Name:  "timetable",
		Usage: "dump the normalized timetable as CSV",
		Action: func(c *cli.Context) error {
			b, err := loadBuilder(c)
			if err != nil {
				return err
			}
			defer b.Close()

			rows, err := b.Timetable().Rows(c.Context)
			if err != nil {
				return err
			}

			store, report := schedule.Ingest(rows, b.cfg.IngestOptions())
			for _, dropped := range report.Dropped {
				log.Warn().Err(dropped.Reason).Int("row", dropped.Index).Msg("Dropped timetable row")
			}

			return writeTimetable(os.Stdout, store)
		},
	}
}

func writeTimetable(w io.Writer, store *schedule.Store) error {
	entries := store.Entries()
	out := make([]timetableRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, timetableRow{
			Direction: e.Direction.String(),
			DayType:   e.DayType.String(),
			Departure: e.Departure.String(),
			Remark:    e.Remark,
		})
	}
	return gocsv.Marshal(out, w)
}
