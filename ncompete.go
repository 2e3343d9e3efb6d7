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
	"math"

	"gonum.org/v1/gonum/floats"
)

// GrassFloor is the fraction of their nitrogen demand that grass-type
// individuals receive before the remaining supply is shared, as long as
// the supply allows it.
const GrassFloor = 0.05

// NCompetingIndividual is a request for nitrogen by one individual.
type NCompetingIndividual struct {
	NDemand  float64 // nitrogen demand, ≥ 0
	Strength float64 // uptake strength, ≥ 0
	Grass    bool    // whether the individual belongs to the low-competitiveness class

	// FNUptake is set by NCompete to the fraction of NDemand that is
	// satisfied.
	FNUptake float64
}

// NCompete shares the available nitrogen among the competing individuals
// and sets their FNUptake fields. Grass-type individuals are first given
// GrassFloor of their demand. The rest of the supply is shared in proportion
// to demand × strength; individuals whose share would exceed their
// outstanding demand are satisfied exactly and the surplus is shared among
// the others in a further pass. Each pass either satisfies at least one more
// individual or hands out everything that is left, so there are at most
// len(inds) passes.
//
// NCompete panics with a *ContractViolation if available or any
// demand or strength is negative or NaN.
func NCompete(inds []NCompetingIndividual, available float64) {
	checkNCompete(inds, available)
	for i := range inds {
		inds[i].FNUptake = 0
	}
	demand := make([]float64, len(inds))
	grass := make([]float64, len(inds)) // demand of grass-type individuals
	for i, ind := range inds {
		demand[i] = ind.NDemand
		if ind.Grass {
			grass[i] = ind.NDemand
		}
	}
	totalDemand := floats.Sum(demand)
	grassDemand := floats.Sum(grass)
	if available <= 0 || totalDemand <= 0 {
		return
	}
	if totalDemand <= available {
		for i := range inds {
			if inds[i].NDemand > 0 {
				inds[i].FNUptake = 1
			}
		}
		return
	}

	received := make([]float64, len(inds))
	remaining := available

	if grassDemand > 0 {
		reserve := math.Min(remaining, GrassFloor*grassDemand)
		floats.ScaleTo(received, reserve/grassDemand, grass)
		remaining -= reserve
	}

	outstanding := floats.SubTo(make([]float64, len(inds)), demand, received)
	active := make([]int, 0, len(inds))
	for i, o := range outstanding {
		if o > 0 {
			active = append(active, i)
		}
	}
	weight := make([]float64, len(inds))
	for pass := 0; pass < len(inds) && remaining > 0 && len(active) > 0; pass++ {
		var total float64
		for _, i := range active {
			weight[i] = inds[i].NDemand * inds[i].Strength
			total += weight[i]
		}
		if total <= 0 {
			// Nobody left has any strength: share by outstanding demand.
			for _, i := range active {
				weight[i] = demand[i] - received[i]
				total += weight[i]
			}
		}
		capped := make([]int, 0, len(active))
		uncapped := make([]int, 0, len(active))
		for _, i := range active {
			if remaining*weight[i]/total >= demand[i]-received[i] {
				capped = append(capped, i)
			} else {
				uncapped = append(uncapped, i)
			}
		}
		if len(capped) == 0 {
			for _, i := range active {
				received[i] += remaining * weight[i] / total
			}
			remaining = 0
			break
		}
		for _, i := range capped {
			remaining -= demand[i] - received[i]
			received[i] = demand[i]
		}
		if remaining < 0 {
			remaining = 0
		}
		active = uncapped
	}

	for i := range inds {
		if demand[i] > 0 {
			inds[i].FNUptake = math.Min(1, math.Max(0, received[i]/demand[i]))
		}
	}
}

func checkNCompete(inds []NCompetingIndividual, available float64) {
	if math.IsNaN(available) || available < 0 {
		panic(&ContractViolation{Op: "NCompete", Msg: "available nitrogen must be a nonnegative number", Value: available})
	}
	for i, ind := range inds {
		if math.IsNaN(ind.NDemand) || ind.NDemand < 0 {
			panic(&ContractViolation{Op: "NCompete", Index: i, Msg: "nitrogen demand must be a nonnegative number", Value: ind.NDemand})
		}
		if math.IsNaN(ind.Strength) || ind.Strength < 0 {
			panic(&ContractViolation{Op: "NCompete", Index: i, Msg: "uptake strength must be a nonnegative number", Value: ind.Strength})
		}
	}
}
