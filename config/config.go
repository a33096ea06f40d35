// Copyright (c) 2023 Mikołaj Kuranowski
// SPDX-License-Identifier: MIT

// Package config loads the YAML configuration of the ferry service.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MKuranowski/MuiWoFerry/export"
	"github.com/MKuranowski/MuiWoFerry/schedule"
	"github.com/MKuranowski/MuiWoFerry/source"
)

type Config struct {
	Timezone string        `yaml:"timezone"`
	Sources  SourcesConfig `yaml:"sources"`
	HTTP     HTTPConfig    `yaml:"http"`
	Retry    RetryConfig   `yaml:"retry"`
	Engine   EngineConfig  `yaml:"engine"`
	Redis    RedisConfig   `yaml:"redis"`
	API      APIConfig     `yaml:"api"`
	Export   ExportConfig  `yaml:"export"`

	// Remarks are extra remark codes, added to (or overriding) the built-in ones.
	Remarks map[string]string `yaml:"remarks"`

	// Aliases are extra spellings of directions, keyed by the canonical direction name.
	Aliases map[string][]string `yaml:"aliases"`
}

// Location points at a document, either over HTTP or on the local filesystem.
type Location struct {
	URL  string `yaml:"url"`
	Path string `yaml:"path"`
}

func (l Location) IsZero() bool { return l.URL == "" && l.Path == "" }

type SourcesConfig struct {
	Schedule Location       `yaml:"schedule"`
	Format   source.Format  `yaml:"format"`
	Columns  source.Columns `yaml:"columns"`
	Holidays Location       `yaml:"holidays"`

	// ETA feeds, keyed by the canonical direction name. Directions without a feed are not tracked live.
	ETA map[string]Location `yaml:"eta"`
}

type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type RetryConfig struct {
	Attempts        int           `yaml:"attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

func (r RetryConfig) Policy() source.RetryPolicy {
	return source.RetryPolicy{
		Attempts:        r.Attempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
	}
}

type EngineConfig struct {
	Tick time.Duration `yaml:"tick"`

	// FetchEvery is how often the ETA feeds are fetched. Defaults to every tick.
	FetchEvery    time.Duration `yaml:"fetch_every"`
	StaticRefresh time.Duration `yaml:"static_refresh"`
	Crossing      time.Duration `yaml:"crossing"`
}

type RedisConfig struct {
	// Address of the Redis server. Caching is disabled if empty.
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	Database int           `yaml:"database"`
	TTL      time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	// Listen is the address of the HTTP API. The API is disabled if empty.
	Listen string `yaml:"listen"`
}

type ExportConfig struct {
	// Target is where the GTFS-Realtime file is written. Export is disabled if empty.
	Target        string `yaml:"target"`
	HumanReadable bool   `yaml:"human_readable"`

	export.Options `yaml:",inline"`
}

func Default() *Config {
	return &Config{
		Timezone: "Asia/Hong_Kong",
		Sources: SourcesConfig{
			Schedule: Location{URL: "https://www.sunferry.com.hk/eta/timetable/SunFerry_central_muiwo_timetable_eng.csv"},
			Format:   source.FormatCSV,
			Columns:  source.DefaultColumns,
			Holidays: Location{URL: "https://www.1823.gov.hk/common/ical/en.json"},
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "muiwo-ferry (+https://github.com/MKuranowski/MuiWoFerry)",
		},
		Retry: RetryConfig{
			Attempts:        source.DefaultRetryPolicy.Attempts,
			InitialInterval: source.DefaultRetryPolicy.InitialInterval,
			MaxInterval:     source.DefaultRetryPolicy.MaxInterval,
		},
		Engine: EngineConfig{
			Tick:          time.Minute,
			StaticRefresh: time.Hour,
		},
		Redis: RedisConfig{TTL: 15 * time.Minute},
		API:   APIConfig{Listen: ":8080"},
		Export: ExportConfig{
			Options: export.Options{RouteID: "central-mui-wo"},
		},
	}
}

// Load reads the configuration from path, on top of the defaults. A missing file
// is not an error. Environment variables are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err == nil {
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if val := getenv("FERRY_REDIS_ADDRESS"); val != "" {
		c.Redis.Address = val
	}
	if val := getenv("FERRY_REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}
	if val := getenv("FERRY_REDIS_DATABASE"); val != "" {
		db, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("FERRY_REDIS_DATABASE: %w", err)
		}
		c.Redis.Database = db
	}
	if val := getenv("FERRY_LISTEN"); val != "" {
		c.API.Listen = val
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	if c.Sources.Schedule.IsZero() {
		return errors.New("sources.schedule: missing url or path")
	}
	if c.Sources.Holidays.IsZero() {
		return errors.New("sources.holidays: missing url or path")
	}
	if c.Sources.Format != source.FormatCSV && c.Sources.Format != source.FormatHTML {
		return fmt.Errorf("sources.format: unknown format %q", c.Sources.Format)
	}

	for name := range c.Sources.ETA {
		if _, ok := schedule.ParseDirectionName(name); !ok {
			return fmt.Errorf("sources.eta: unknown direction %q", name)
		}
	}
	for name := range c.Aliases {
		if _, ok := schedule.ParseDirectionName(name); !ok {
			return fmt.Errorf("aliases: unknown direction %q", name)
		}
	}

	if c.Engine.Tick <= 0 {
		return errors.New("engine.tick: must be positive")
	}
	if c.Engine.FetchEvery < 0 {
		return errors.New("engine.fetch_every: must not be negative")
	}
	return nil
}

// IngestOptions returns the timetable normalization options, with the built-in tables
// extended by the configured remarks and aliases.
func (c *Config) IngestOptions() schedule.Options {
	extra := make(map[schedule.Direction][]string, len(c.Aliases))
	for name, aliases := range c.Aliases {
		if d, ok := schedule.ParseDirectionName(name); ok {
			extra[d] = aliases
		}
	}

	return schedule.Options{
		Aliases:  schedule.DefaultAliases().With(extra),
		Remarks:  schedule.DefaultRemarks().With(c.Remarks),
		Crossing: c.Engine.Crossing,
	}
}
