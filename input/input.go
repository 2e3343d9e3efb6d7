/*
Copyright © 2026 the GUESS authors.
This file is part of GUESS.

GUESS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GUESS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package input holds the registry of climate data sources. A Registry is
// built once at startup, filled by the Register functions of the source
// packages, and passed to whatever needs to create a source.
package input

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/spatialmodel/guess"
)

// ErrUnknownSource is returned by Registry.New for names that have not
// been registered.
var ErrUnknownSource = errors.New("input: unknown data source")

// Config holds the settings passed to a source factory.
type Config struct {
	// FirstYear is the first year the source will be asked for.
	FirstYear int

	// File is the path to the data file of file-based sources.
	File string

	// Lon and Lat are the geographic coordinates of the gridcells,
	// indexed by gridcell ID.
	Lon, Lat []float64

	// Options holds source-specific settings.
	Options map[string]string
}

// NGridcells returns the number of configured gridcells.
func (c Config) NGridcells() int { return len(c.Lat) }

// Factory creates a climate source.
type Factory func(cfg Config) (guess.ClimateSource, error)

// Registry maps data source names to factories. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name. Names are case sensitive
// and can only be registered once.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("input: registering data source %q: name and factory are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("input: data source %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// New creates the named data source.
func (r *Registry) New(name string, cfg Config) (guess.ClimateSource, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q; registered sources are [%s]", ErrUnknownSource, name, strings.Join(r.Names(), ", "))
	}
	if len(cfg.Lon) != len(cfg.Lat) {
		return nil, fmt.Errorf("input: %s: %d longitudes but %d latitudes", name, len(cfg.Lon), len(cfg.Lat))
	}
	src, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("input: %s: %w", name, err)
	}
	return src, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
