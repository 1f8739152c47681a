/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package options holds the process configuration. Values resolve in precedence order:
// command-line flag, environment variable, user-level config file, built-in default.
package options

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/imdario/mergo"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"

	"github.com/confops/rostrum/pkg/assign"
	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/fetch"
	"github.com/confops/rostrum/pkg/schedule"
	"github.com/confops/rostrum/pkg/utils/env"
)

// Options is the resolved process configuration.
type Options struct {
	*flag.FlagSet

	BaseURL         string
	Token           string
	APIVersion      string
	RequestTimeout  time.Duration
	RateLimit       float64
	Burst           int
	Lenient         bool
	Prepopulate     bool
	Event           string
	Buffer          int
	TrackAliases    string
	Reviewers       string
	GridFile        string
	Upload          bool
	SolverBinary    string
	SolverTimeLimit time.Duration
	OutputDir       string
	ConfigFile      string
	LogLevel        string
}

// fileConfig is the user-level TOML config shape, ~/.rostrum/config.toml.
type fileConfig struct {
	Upstream struct {
		BaseURL    string `toml:"base_url"`
		Token      string `toml:"token"`
		APIVersion string `toml:"api_version"`
	} `toml:"upstream"`
	Assign struct {
		Buffer       int    `toml:"buffer"`
		TrackAliases string `toml:"track_aliases"`
	} `toml:"assign"`
	Schedule struct {
		Solver    string `toml:"solver"`
		TimeLimit string `toml:"time_limit"`
		OutputDir string `toml:"output_dir"`
	} `toml:"schedule"`
}

func defaults() Options {
	return Options{
		BaseURL:         "https://pretalx.com",
		APIVersion:      fetch.DefaultAPIVersion,
		RequestTimeout:  fetch.DefaultTimeout,
		RateLimit:       float64(fetch.DefaultRateLimit),
		Burst:           fetch.DefaultBurst,
		Buffer:          assign.DefaultBuffer,
		SolverBinary:    "cbc",
		SolverTimeLimit: schedule.DefaultTimeLimit,
		OutputDir:       ".",
		LogLevel:        "info",
	}
}

// New constructs options bound to a fresh flag set. Flag defaults come from the
// environment so container deployments can configure without argv.
func New() *Options {
	o := &Options{}
	f := flag.NewFlagSet("rostrum", flag.ContinueOnError)
	o.FlagSet = f

	f.StringVar(&o.BaseURL, "base-url", env.WithDefaultString("ROSTRUM_BASE_URL", ""), "Upstream base URL.")
	f.StringVar(&o.Token, "token", env.WithDefaultString("ROSTRUM_TOKEN", ""), "Upstream API token.")
	f.StringVar(&o.APIVersion, "api-version", env.WithDefaultString("ROSTRUM_API_VERSION", ""), "Pinned upstream wire version.")
	f.DurationVar(&o.RequestTimeout, "request-timeout", env.WithDefaultDuration("ROSTRUM_REQUEST_TIMEOUT", 0), "Per-request wall-clock deadline.")
	f.Float64Var(&o.RateLimit, "rate-limit", env.WithDefaultFloat64("ROSTRUM_RATE_LIMIT", 0), "Sustained upstream requests per second.")
	f.IntVar(&o.Burst, "burst", env.WithDefaultInt("ROSTRUM_BURST", 0), "Upstream request burst size.")
	f.BoolVar(&o.Lenient, "lenient", env.WithDefaultBool("ROSTRUM_LENIENT", false), "Drop malformed upstream records instead of failing.")
	f.BoolVar(&o.Prepopulate, "prepopulate", env.WithDefaultBool("ROSTRUM_PREPOPULATE", true), "Bulk-fill expansion caches on first list access.")
	f.StringVar(&o.Event, "event", env.WithDefaultString("ROSTRUM_EVENT", ""), "Event slug to operate on.")
	f.IntVar(&o.Buffer, "buffer", env.WithDefaultInt("ROSTRUM_BUFFER", 0), "Extra reviewers per proposal beyond the target.")
	f.StringVar(&o.TrackAliases, "track-aliases", env.WithDefaultString("ROSTRUM_TRACK_ALIASES", ""), "Path to the YAML track alias table.")
	f.StringVar(&o.Reviewers, "reviewers", env.WithDefaultString("ROSTRUM_REVIEWERS", ""), "Path to the YAML reviewer pool.")
	f.StringVar(&o.GridFile, "grid", env.WithDefaultString("ROSTRUM_GRID", ""), "Path to the YAML slot grid definition.")
	f.BoolVar(&o.Upload, "upload", env.WithDefaultBool("ROSTRUM_UPLOAD", false), "Upload the assignment document to the upstream.")
	f.StringVar(&o.SolverBinary, "solver", env.WithDefaultString("ROSTRUM_SOLVER", ""), "MIP solver binary.")
	f.DurationVar(&o.SolverTimeLimit, "solver-time-limit", env.WithDefaultDuration("ROSTRUM_SOLVER_TIME_LIMIT", 0), "Solver wall-clock limit.")
	f.StringVar(&o.OutputDir, "output-dir", env.WithDefaultString("ROSTRUM_OUTPUT_DIR", ""), "Directory for generated artifacts.")
	f.StringVar(&o.ConfigFile, "config", env.WithDefaultString("ROSTRUM_CONFIG", DefaultConfigPath()), "Path to the user-level config file.")
	f.StringVar(&o.LogLevel, "log-level", env.WithDefaultString("ROSTRUM_LOG_LEVEL", ""), "Log level (debug, info, warn, error).")
	return o
}

// DefaultConfigPath returns ~/.rostrum/config.toml, empty when the home directory is
// unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rostrum", "config.toml")
}

// Parse resolves the configuration from arguments, environment, config file and
// defaults, then validates it.
func (o *Options) Parse(args ...string) error {
	if err := o.FlagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return fmt.Errorf("parsing flags, %w", err)
	}
	fromFile, err := loadFile(o.ConfigFile)
	if err != nil {
		return err
	}
	// Unset fields fill from the config file, remaining gaps from the defaults.
	if err := multierr.Combine(
		mergo.Merge(o, fromFile),
		mergo.Merge(o, defaults()),
	); err != nil {
		return fmt.Errorf("merging configuration, %w", err)
	}
	return o.Validate()
}

// MustParse is Parse for main(), exiting on invalid configuration.
func MustParse(args ...string) *Options {
	o := New()
	if err := o.Parse(args...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return o
}

func loadFile(path string) (Options, error) {
	var file fileConfig
	if path == "" {
		return Options{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		// The config file is optional; only core credentials are validated later.
		if os.IsNotExist(err) {
			return Options{}, nil
		}
		return Options{}, fmt.Errorf("reading config file %s, %w", path, err)
	}
	if err := toml.Unmarshal(raw, &file); err != nil {
		return Options{}, fmt.Errorf("parsing config file %s, %w", path, err)
	}
	o := Options{
		BaseURL:      file.Upstream.BaseURL,
		Token:        file.Upstream.Token,
		APIVersion:   file.Upstream.APIVersion,
		Buffer:       file.Assign.Buffer,
		TrackAliases: file.Assign.TrackAliases,
		SolverBinary: file.Schedule.Solver,
		OutputDir:    file.Schedule.OutputDir,
	}
	if file.Schedule.TimeLimit != "" {
		limit, err := time.ParseDuration(file.Schedule.TimeLimit)
		if err != nil {
			return Options{}, fmt.Errorf("parsing schedule time limit in %s, %w", path, err)
		}
		o.SolverTimeLimit = limit
	}
	return o, nil
}

// Validate checks the resolved configuration. All violations are reported together.
func (o *Options) Validate() error {
	var err error
	if o.Token == "" {
		err = multierr.Append(err, &apierrors.ConfigMissingError{Field: "token"})
	}
	if o.BaseURL == "" {
		err = multierr.Append(err, &apierrors.ConfigMissingError{Field: "base-url"})
	}
	if o.RateLimit <= 0 {
		err = multierr.Append(err, fmt.Errorf("rate-limit must be positive, got %g", o.RateLimit))
	}
	if o.Burst < 1 {
		err = multierr.Append(err, fmt.Errorf("burst must be at least 1, got %d", o.Burst))
	}
	if o.RequestTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("request-timeout must be positive, got %s", o.RequestTimeout))
	}
	if o.Buffer < 0 {
		err = multierr.Append(err, fmt.Errorf("buffer must not be negative, got %d", o.Buffer))
	}
	return err
}
