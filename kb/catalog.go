package kb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/signalsfoundry/sight-triangulator/core"
	"github.com/signalsfoundry/sight-triangulator/model"
)

var (
	// ErrStationExists is returned when adding a station whose ID is taken.
	ErrStationExists = errors.New("station already exists")
	// ErrStationNotFound is returned when a station ID is unknown.
	ErrStationNotFound = errors.New("station not found")
	// ErrInvalidStation is returned for stations with a missing ID or an
	// out-of-range location.
	ErrInvalidStation = errors.New("invalid station")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventStationAdded EventType = iota
	EventStationRemoved
)

func (t EventType) String() string {
	switch t {
	case EventStationAdded:
		return "added"
	case EventStationRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the catalog changes.
type Event struct {
	Type    EventType
	Station model.Station
	Count   int // catalog size after the change
}

type entry struct {
	station model.Station
	ecef    core.Vec3
}

// Catalog is an in-memory, thread-safe registry of observing stations.
// Each entry caches its ECEF position, which never changes after insertion.
type Catalog struct {
	mu sync.RWMutex

	stations map[string]entry

	subs   map[int]func(Event)
	nextID int
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		stations: make(map[string]entry),
		subs:     make(map[int]func(Event)),
	}
}

// AddStation registers a station. It fails if the ID is empty or taken, or
// if the location is not a valid geodetic position.
func (c *Catalog) AddStation(s model.Station) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidStation)
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidStation, s.ID, err)
	}

	c.mu.Lock()
	if _, exists := c.stations[s.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrStationExists, s.ID)
	}
	c.stations[s.ID] = entry{station: s, ecef: s.ECEF()}
	ev := Event{Type: EventStationAdded, Station: s, Count: len(c.stations)}
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	notify(subs, ev)
	return nil
}

// RemoveStation deletes a station by ID.
func (c *Catalog) RemoveStation(id string) error {
	c.mu.Lock()
	e, ok := c.stations[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrStationNotFound, id)
	}
	delete(c.stations, id)
	ev := Event{Type: EventStationRemoved, Station: e.station, Count: len(c.stations)}
	subs := c.snapshotSubsLocked()
	c.mu.Unlock()

	notify(subs, ev)
	return nil
}

// GetStation returns the station with the given ID.
func (c *Catalog) GetStation(id string) (model.Station, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.stations[id]
	if !ok {
		return model.Station{}, fmt.Errorf("%w: %q", ErrStationNotFound, id)
	}
	return e.station, nil
}

// Position returns the cached ECEF position of a station.
func (c *Catalog) Position(id string) (core.Vec3, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.stations[id]
	if !ok {
		return core.Vec3{}, fmt.Errorf("%w: %q", ErrStationNotFound, id)
	}
	return e.ecef, nil
}

// ListStations returns a snapshot of all stations sorted by ID.
func (c *Catalog) ListStations() []model.Station {
	c.mu.RLock()
	res := make([]model.Station, 0, len(c.stations))
	for _, e := range c.stations {
		res = append(res, e.station)
	}
	c.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len returns the number of registered stations.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function that is safe to call more than once.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Catalog) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

// notify runs outside the lock so subscribers may call back into the catalog.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
