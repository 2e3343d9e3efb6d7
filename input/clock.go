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

package input

import (
	"fmt"
	"sync"

	"github.com/spatialmodel/guess"
)

// Clock tracks the date of the next observation of each gridcell for
// sources that are read day by day. It is safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	start int
	next  []int
}

// NewClock returns a clock whose gridcells all start on the first day of
// firstYear.
func NewClock(firstYear, nGridcells int) *Clock {
	c := &Clock{next: make([]int, nGridcells)}
	c.reset(firstYear * guess.DaysPerYear)
	return c
}

func (c *Clock) reset(start int) {
	c.start = start
	for i := range c.next {
		c.next[i] = start
	}
}

// Next returns the date of the next observation of the gridcell and moves
// its clock forward by a day.
func (c *Clock) Next(gridcellID int) (year, day int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gridcellID < 0 || gridcellID >= len(c.next) {
		return 0, 0, fmt.Errorf("input: gridcell %d out of range [0, %d)", gridcellID, len(c.next))
	}
	n := c.next[gridcellID]
	c.next[gridcellID]++
	return n / guess.DaysPerYear, n % guess.DaysPerYear, nil
}

// Seek sets the date of the next observation of every gridcell.
func (c *Clock) Seek(year, day int) error {
	if day < 0 || day >= guess.DaysPerYear {
		return fmt.Errorf("input: day %d outside of the year", day)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset(year*guess.DaysPerYear + day)
	return nil
}

// Start returns the date the clock was started or last sought to.
func (c *Clock) Start() (year, day int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start / guess.DaysPerYear, c.start % guess.DaysPerYear
}
