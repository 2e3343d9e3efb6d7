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

package guess

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts simulation events. The counters are registered in
// Registry, which can be served with promhttp.
type Metrics struct {
	Registry *prometheus.Registry

	Days           prometheus.Counter
	Years          prometheus.Counter
	ClimateGaps    prometheus.Counter
	Sowings        prometheus.Counter
	Harvests       prometheus.Counter
	MissedSowings  prometheus.Counter
	Establishments prometheus.Counter
	Deaths         prometheus.Counter
	Disturbances   prometheus.Counter
	Checkpoints    prometheus.Counter

	GridcellFailures prometheus.Counter
}

// NewMetrics returns a set of counters registered in a new registry.
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guess",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Registry:       prometheus.NewRegistry(),
		Days:           counter("days_total", "Number of simulated days."),
		Years:          counter("years_total", "Number of completed simulation years."),
		ClimateGaps:    counter("climate_gaps_total", "Number of invalid daily climate observations."),
		Sowings:        counter("sowings_total", "Number of crop sowing events."),
		Harvests:       counter("harvests_total", "Number of crop harvest events."),
		MissedSowings:  counter("missed_sowings_total", "Number of patch years that ended without sowing."),
		Establishments: counter("establishments_total", "Number of established individuals."),
		Deaths:         counter("deaths_total", "Number of individuals removed by mortality."),
		Disturbances:   counter("disturbances_total", "Number of patch-destroying disturbances."),
		Checkpoints:    counter("checkpoints_total", "Number of checkpoints written."),

		GridcellFailures: counter("gridcell_failures_total", "Number of gridcells disabled after an error."),
	}
	m.Registry.MustRegister(m.Days, m.Years, m.ClimateGaps, m.Sowings, m.Harvests,
		m.MissedSowings, m.Establishments, m.Deaths, m.Disturbances, m.Checkpoints, m.GridcellFailures)
	return m
}

// AddCheckpoint counts a written checkpoint.
func (m *Metrics) AddCheckpoint() {
	if m != nil {
		m.Checkpoints.Inc()
	}
}

func (m *Metrics) addDay(endOfYear bool) {
	if m == nil {
		return
	}
	m.Days.Inc()
	if endOfYear {
		m.Years.Inc()
	}
}

func (m *Metrics) addGridcellFailure() {
	if m != nil {
		m.GridcellFailures.Inc()
	}
}

func (m *Metrics) addClimateGap() {
	if m != nil {
		m.ClimateGaps.Inc()
	}
}

// addSowing counts the crop calendar events of one patch update.
func (m *Metrics) addSowing(before, after SowingState, missed int) {
	if m == nil {
		return
	}
	if after != before {
		switch after {
		case Sown:
			m.Sowings.Inc()
		case Harvested:
			m.Harvests.Inc()
		}
	}
	if missed > 0 {
		m.MissedSowings.Add(float64(missed))
	}
}

func (m *Metrics) addYearly(ev YearlyEvents) {
	if m == nil {
		return
	}
	m.Establishments.Add(float64(ev.Establishments))
	m.Deaths.Add(float64(ev.Deaths))
	m.Disturbances.Add(float64(ev.Disturbances))
}
