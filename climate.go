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

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
)

// Observation is the climate of one gridcell on one day.
type Observation struct {
	Year int
	Day  int // zero-based day of the year

	Temp float64 // mean air temperature [°C]
	Prec float64 // precipitation [mm]
}

// ClimateSource supplies daily climate observations. Implementations must be
// safe for concurrent calls with different gridcell IDs.
type ClimateSource interface {
	// NextDailyObservation returns the next day's observation for the
	// given gridcell.
	NextDailyObservation(gridcellID int) (Observation, error)
}

// Seeker is implemented by climate sources that can be repositioned, for
// example when a simulation is restored from a checkpoint.
type Seeker interface {
	// Seek sets the date of the next observation returned for every gridcell.
	Seek(year, day int) error
}

// ErrStaleObservation is returned when an observation is older than the
// most recent observation in a climate history.
var ErrStaleObservation = errors.New("guess: climate observation is older than the climate history")

// valid returns whether the observation holds usable values.
func (o Observation) valid() bool {
	return !math.IsNaN(o.Temp) && !math.IsInf(o.Temp, 0) &&
		!math.IsNaN(o.Prec) && !math.IsInf(o.Prec, 0) && o.Prec >= 0
}

// dayNumber returns the number of days since the start of year 0.
func (o Observation) dayNumber() int { return o.Year*DaysPerYear + o.Day }

func (o Observation) String() string {
	return fmt.Sprintf("%d-%03d T=%.2f P=%.2f", o.Year, o.Day, o.Temp, o.Prec)
}

// ClimateUpdate describes the outcome of UpdateGridcellClimateHistory.
type ClimateUpdate int

// Climate history update outcomes.
const (
	// ClimateAppended means the observation was added to the history.
	ClimateAppended ClimateUpdate = iota
	// ClimateReplaced means the observation replaced a different one
	// for the same day.
	ClimateReplaced
	// ClimateUnchanged means the same observation was already stored.
	ClimateUnchanged
	// ClimateGapFilled means the observation was invalid and the last
	// valid observation was carried forward in its place.
	ClimateGapFilled
	// ClimateSkipped means the observation was invalid and there was no
	// earlier observation to carry forward.
	ClimateSkipped
)

func (c ClimateUpdate) String() string {
	switch c {
	case ClimateAppended:
		return "appended"
	case ClimateReplaced:
		return "replaced"
	case ClimateUnchanged:
		return "unchanged"
	case ClimateGapFilled:
		return "gap filled"
	case ClimateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("ClimateUpdate(%d)", int(c))
	}
}

// SowingWindow is the sowing status of one crop in a gridcell.
type SowingWindow struct {
	Crop string
	// Open is whether sowing conditions are met on the latest day of
	// the climate history.
	Open bool
	// Year is the year the window state refers to.
	Year int
	// FirstDay is the first day of Year on which the window was open,
	// or -1 if it has not opened.
	FirstDay int
}

// ClimateHistory is a bounded record of the recent daily climate of a
// gridcell, kept in a ring buffer, together with the sowing windows it
// implies.
type ClimateHistory struct {
	retention int
	obs       []Observation
	start, n  int

	// Windows holds one entry per crop grown in the gridcell, in PFT
	// table order.
	Windows []SowingWindow
}

// NewClimateHistory returns an empty history holding at most retention days.
func NewClimateHistory(retention int) *ClimateHistory {
	if retention < 1 {
		retention = DaysPerYear
	}
	return &ClimateHistory{
		retention: retention,
		obs:       make([]Observation, retention),
	}
}

// Len returns the number of stored observations.
func (h *ClimateHistory) Len() int { return h.n }

// Retention returns the maximum number of stored observations.
func (h *ClimateHistory) Retention() int { return h.retention }

// At returns the i-th stored observation, where 0 is the oldest.
func (h *ClimateHistory) At(i int) Observation {
	if i < 0 || i >= h.n {
		panic(fmt.Errorf("guess: climate history index %d out of range [0,%d)", i, h.n))
	}
	return h.obs[(h.start+i)%h.retention]
}

// Latest returns the most recent observation and whether there is one.
func (h *ClimateHistory) Latest() (Observation, bool) {
	if h.n == 0 {
		return Observation{}, false
	}
	return h.At(h.n - 1), true
}

// Window returns the sowing window of the named crop.
func (h *ClimateHistory) Window(crop string) (SowingWindow, bool) {
	for _, w := range h.Windows {
		if w.Crop == crop {
			return w, true
		}
	}
	return SowingWindow{}, false
}

func (h *ClimateHistory) push(o Observation) {
	if h.n < h.retention {
		h.obs[(h.start+h.n)%h.retention] = o
		h.n++
		return
	}
	h.obs[h.start] = o
	h.start = (h.start + 1) % h.retention
}

func (h *ClimateHistory) setLatest(o Observation) {
	h.obs[(h.start+h.n-1)%h.retention] = o
}

// UpdateGridcellClimateHistory adds today's observation to the climate
// history of g and recomputes the sowing window of every crop grown in g.
// Repeating the call for the most recent day with the same observation
// changes nothing; a different observation for that day replaces it.
// Observations older than the most recent one are rejected with
// ErrStaleObservation.
//
// Observations with missing or invalid values are treated as a gap:
// the last valid observation is carried forward under today's date or,
// if the history is empty, the day is skipped.
func UpdateGridcellClimateHistory(g *Gridcell, obs Observation) (ClimateUpdate, error) {
	h := g.Climate
	if obs.Day < 0 || obs.Day >= DaysPerYear {
		return 0, fmt.Errorf("guess: observation day %d outside of the year", obs.Day)
	}
	latest, ok := h.Latest()
	if ok && obs.dayNumber() < latest.dayNumber() {
		return 0, fmt.Errorf("%w: got %d-%03d, have %d-%03d", ErrStaleObservation, obs.Year, obs.Day, latest.Year, latest.Day)
	}
	result := ClimateAppended
	if !obs.valid() {
		if !ok {
			return ClimateSkipped, nil
		}
		filled := latest
		filled.Year, filled.Day = obs.Year, obs.Day
		obs = filled
		result = ClimateGapFilled
	}
	switch {
	case ok && obs.dayNumber() == latest.dayNumber():
		if obs == latest {
			return ClimateUnchanged, nil
		}
		h.setLatest(obs)
		if result != ClimateGapFilled {
			result = ClimateReplaced
		}
	default:
		h.push(obs)
	}
	h.updateWindows(g.crops, obs)
	return result, nil
}

// updateWindows recomputes the sowing windows for the given crops after
// today's observation has been stored.
func (h *ClimateHistory) updateWindows(crops []*PFT, today Observation) {
	if len(h.Windows) != len(crops) {
		old := h.Windows
		h.Windows = make([]SowingWindow, len(crops))
		for i, c := range crops {
			h.Windows[i] = SowingWindow{Crop: c.Name, Year: today.Year, FirstDay: -1}
			for _, w := range old {
				if w.Crop == c.Name {
					h.Windows[i] = w
				}
			}
		}
	}
	for i, c := range crops {
		w := &h.Windows[i]
		w.Crop = c.Name
		if w.Year != today.Year {
			w.Year = today.Year
			w.FirstDay = -1
		}
		w.Open = h.sowingConditions(c, today)
		if w.Open && (w.FirstDay < 0 || today.Day < w.FirstDay) {
			w.FirstDay = today.Day
		}
		// A replaced observation can close the window it opened.
		if !w.Open && w.FirstDay == today.Day {
			w.FirstDay = -1
		}
	}
}

// sowingConditions returns whether crop c may be sown on the day of
// the latest observation.
func (h *ClimateHistory) sowingConditions(c *PFT, today Observation) bool {
	if !inDayWindow(today.Day, c.SowWindowStart, c.SowWindowEnd) {
		return false
	}
	if h.n < c.SowTempDays {
		return false
	}
	var prec float64
	for i := h.n - c.SowTempDays; i < h.n; i++ {
		o := h.At(i)
		if c.SowBelow {
			if !(o.Temp < c.SowTemp) {
				return false
			}
		} else if !(o.Temp > c.SowTemp) {
			return false
		}
		prec += o.Prec
	}
	return prec >= c.SowPrecMin
}

// inDayWindow returns whether day lies in [start, end], wrapping past the
// end of the year when end < start.
func inDayWindow(day, start, end int) bool {
	if start <= end {
		return day >= start && day <= end
	}
	return day >= start || day <= end
}

type climateHistoryState struct {
	Retention int
	Obs       []Observation
	Windows   []SowingWindow
}

// GobEncode implements gob.GobEncoder. Observations are stored oldest first.
func (h *ClimateHistory) GobEncode() ([]byte, error) {
	s := climateHistoryState{
		Retention: h.retention,
		Obs:       make([]Observation, h.n),
		Windows:   h.Windows,
	}
	for i := range s.Obs {
		s.Obs[i] = h.At(i)
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(s); err != nil {
		return nil, fmt.Errorf("guess: encoding climate history: %v", err)
	}
	return b.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (h *ClimateHistory) GobDecode(b []byte) error {
	var s climateHistoryState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return fmt.Errorf("guess: decoding climate history: %v", err)
	}
	if len(s.Obs) > s.Retention {
		return fmt.Errorf("guess: decoding climate history: %d observations exceed retention of %d", len(s.Obs), s.Retention)
	}
	*h = *NewClimateHistory(s.Retention)
	for _, o := range s.Obs {
		h.push(o)
	}
	h.Windows = s.Windows
	return nil
}
