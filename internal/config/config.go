// Package config loads triangulation scenarios: solver settings, the station
// catalog, the events to locate, and the server/logging sections used by the
// CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/internal/locate"
	"github.com/signalsfoundry/sight-triangulator/internal/logging"
	"github.com/signalsfoundry/sight-triangulator/kb"
	"github.com/signalsfoundry/sight-triangulator/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every Parse/Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultWorkers     = 4
	DefaultGRPCAddr    = ":50061"
	DefaultMetricsAddr = ":9091"
)

// Scenario is the root of a scenario file.
type Scenario struct {
	Solver   SolverConfig    `yaml:"solver"`
	Stations []StationConfig `yaml:"stations" validate:"dive"`
	Events   []EventConfig   `yaml:"events" validate:"dive"`
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type SolverConfig struct {
	ParallelTolerance float64 `yaml:"parallel_tolerance" validate:"gte=0"`
	BehindTolerance   float64 `yaml:"behind_tolerance" validate:"gte=0"`
	AcceptBehind      bool    `yaml:"accept_behind"`
	Workers           int     `yaml:"workers" validate:"gte=0,lte=1024"`
}

type StationConfig struct {
	ID           string  `yaml:"id" validate:"required"`
	Name         string  `yaml:"name"`
	LatitudeDeg  float64 `yaml:"latitude_deg" validate:"gte=-90,lte=90"`
	LongitudeDeg float64 `yaml:"longitude_deg" validate:"gte=-180,lte=180"`
	AltitudeM    float64 `yaml:"altitude_m"`
}

type SightingConfig struct {
	Station    string  `yaml:"station" validate:"required"`
	AzimuthDeg float64 `yaml:"azimuth_deg"`
	ZenithDeg  float64 `yaml:"zenith_deg" validate:"gte=0,lte=180"`
}

type EventConfig struct {
	ID        string         `yaml:"id" validate:"required"`
	Time      time.Time      `yaml:"time"`
	Label     string         `yaml:"label"`
	Primary   SightingConfig `yaml:"primary"`
	Secondary SightingConfig `yaml:"secondary"`
}

type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr" validate:"omitempty,hostname_port"`
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	File   string `yaml:"file"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report YAML keys rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads, defaults and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario from r, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ApplyDefaults fills zero-valued solver and server settings. The logging
// section is left empty so environment settings still apply.
func (s *Scenario) ApplyDefaults() {
	if s.Solver.ParallelTolerance == 0 {
		s.Solver.ParallelTolerance = core.DefaultParallelTolerance
	}
	if s.Solver.BehindTolerance == 0 {
		s.Solver.BehindTolerance = core.DefaultBehindTolerance
	}
	if s.Solver.Workers == 0 {
		s.Solver.Workers = DefaultWorkers
	}
	if s.Server.GRPCAddr == "" {
		s.Server.GRPCAddr = DefaultGRPCAddr
	}
	if s.Server.MetricsAddr == "" {
		s.Server.MetricsAddr = DefaultMetricsAddr
	}
}

// Validate checks field constraints and cross-references between stations
// and events. All problems are reported together.
func (s *Scenario) Validate() error {
	var problems []error

	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
		}
	}

	known := make(map[string]struct{}, len(s.Stations))
	for i, st := range s.Stations {
		if _, dup := known[st.ID]; dup {
			problems = append(problems, fmt.Errorf("stations[%d]: duplicate id %q", i, st.ID))
		}
		known[st.ID] = struct{}{}
	}

	eventIDs := make(map[string]struct{}, len(s.Events))
	for i, ev := range s.Events {
		if _, dup := eventIDs[ev.ID]; dup {
			problems = append(problems, fmt.Errorf("events[%d]: duplicate id %q", i, ev.ID))
		}
		eventIDs[ev.ID] = struct{}{}

		for _, ref := range []string{ev.Primary.Station, ev.Secondary.Station} {
			if ref == "" {
				continue
			}
			if _, ok := known[ref]; !ok {
				problems = append(problems, fmt.Errorf("events[%d]: unknown station %q", i, ref))
			}
		}
		if ev.Primary.Station != "" && ev.Primary.Station == ev.Secondary.Station {
			problems = append(problems, fmt.Errorf("events[%d]: primary and secondary are both %q", i, ev.Primary.Station))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(problems...))
	}
	return nil
}

// Populate adds every station to catalog.
func (s *Scenario) Populate(catalog *kb.Catalog) error {
	for _, st := range s.ModelStations() {
		if err := catalog.AddStation(st); err != nil {
			return err
		}
	}
	return nil
}

// ModelStations converts the station section.
func (s *Scenario) ModelStations() []model.Station {
	out := make([]model.Station, 0, len(s.Stations))
	for _, st := range s.Stations {
		out = append(out, model.Station{
			ID:   st.ID,
			Name: st.Name,
			Location: core.Geodetic{
				LatitudeDeg:  st.LatitudeDeg,
				LongitudeDeg: st.LongitudeDeg,
				AltitudeM:    st.AltitudeM,
			},
		})
	}
	return out
}

// ModelEvents converts the event section, preserving file order.
func (s *Scenario) ModelEvents() []model.Event {
	out := make([]model.Event, 0, len(s.Events))
	for _, ev := range s.Events {
		out = append(out, model.Event{
			ID:        ev.ID,
			Label:     ev.Label,
			Time:      ev.Time,
			Primary:   ev.Primary.model(),
			Secondary: ev.Secondary.model(),
		})
	}
	return out
}

func (c SightingConfig) model() model.Sighting {
	return model.Sighting{StationID: c.Station, AzimuthDeg: c.AzimuthDeg, ZenithDeg: c.ZenithDeg}
}

// LocateOptions returns the locator settings of the solver section.
func (s *Scenario) LocateOptions() locate.Options {
	return locate.Options{
		Solver: core.Options{
			ParallelTolerance: s.Solver.ParallelTolerance,
			BehindTolerance:   s.Solver.BehindTolerance,
		},
		AcceptBehind: s.Solver.AcceptBehind,
		Workers:      s.Solver.Workers,
	}
}

// LoggerConfig merges the logging section over base, which usually comes
// from the environment. Empty fields in the file leave base untouched.
func (s *Scenario) LoggerConfig(base logging.Config) logging.Config {
	if s.Logging.Level != "" {
		base.Level = s.Logging.Level
	}
	if s.Logging.Format != "" {
		base.Format = s.Logging.Format
	}
	if s.Logging.File != "" {
		base.File = s.Logging.File
	}
	return base
}
