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

	"github.com/spatialmodel/guess/internal/hash"
)

// TransferYearlyGrowth moves the growth accumulated during the year into
// the biomass pools of ind, records it in the increment pools and resets
// the yearly pools to zero. The individual's allometry must be recomputed
// before its next day of growth.
//
// Calling TransferYearlyGrowth again before another day of growth is a
// no-op that returns false, so growth is never counted twice.
func TransferYearlyGrowth(ind *Individual) bool {
	if ind.daysGrown == 0 {
		return false
	}
	ind.CMassLeafInc = ind.YCMassLeaf
	ind.CMassRootInc = ind.YCMassRoot
	ind.CMassStemInc = ind.YCMassStem
	ind.CMassHOInc = ind.YCMassHO
	ind.CMassAGPoolInc = ind.YCMassAGPool

	ind.CMassLeaf += ind.CMassLeafInc
	ind.CMassRoot += ind.CMassRootInc
	ind.CMassStem += ind.CMassStemInc
	ind.CMassHO += ind.CMassHOInc
	ind.CMassAGPool += ind.CMassAGPoolInc

	ind.YCMassLeaf, ind.YCMassRoot, ind.YCMassStem, ind.YCMassHO, ind.YCMassAGPool = 0, 0, 0, 0, 0
	ind.daysGrown = 0
	ind.allometryPending = true
	return true
}

// Allometry recomputes the structure of ind from its biomass pools.
// Crop individuals are handled by AllometryCrop.
func Allometry(ind *Individual) {
	if ind.PFT.Lifeform == Crop {
		AllometryCrop(ind)
		return
	}
	if ind.PFT.Lifeform == Tree {
		ind.Height = ind.PFT.HeightAllom * math.Sqrt(math.Max(0, ind.CMassStem))
	}
	ind.updateCanopy()
	ind.allometryPending = false
}

// AllometryCrop recomputes leaf area index and foliar projective cover of a
// crop individual from its biomass pools. Crops carried over the end of the
// year keep growing from the recomputed canopy.
func AllometryCrop(ind *Individual) {
	ind.Height = 0
	ind.updateCanopy()
	ind.allometryPending = false
}

// turnover moves the yearly leaf and root turnover of ind to the litter
// of its patch.
func turnover(ind *Individual) {
	p := ind.PFT
	leaf := ind.CMassLeaf * p.TurnoverLeaf
	root := ind.CMassRoot * p.TurnoverRoot
	if leaf+root <= 0 {
		return
	}
	n := math.Min(ind.NMass, leaf/p.CNLeaf+root/p.CNRoot)
	ind.CMassLeaf -= leaf
	ind.CMassRoot -= root
	ind.NMass -= n
	if pt := ind.patch; pt != nil {
		pt.Soil.LitterC += leaf + root
		pt.Soil.LitterN += n
	}
}

// mortality removes the individuals of p whose total carbon has dropped
// below the minimum of their PFT.
func mortality(p *Patch) int {
	var dead []*Individual
	for _, ind := range p.Individuals {
		if ind.Alive && ind.PFT.Lifeform != Crop && ind.TotalCMass() < ind.PFT.MinCMass {
			dead = append(dead, ind)
		}
	}
	for _, ind := range dead {
		p.RemoveIndividual(ind)
	}
	return len(dead)
}

// establishmentCover is the patch foliar projective cover above which no
// new individuals establish.
const establishmentCover = 0.95

// establish adds an individual of every natural PFT that is missing from
// p, as long as the canopy is not closed and the mean temperature of the
// climate history lies within the PFT's assimilation range.
func establish(p *Patch, pfts *PFTSet, h *ClimateHistory) int {
	if p.stand.LandUse != Natural || h.Len() == 0 {
		return 0
	}
	var tsum float64
	for i := 0; i < h.Len(); i++ {
		tsum += h.At(i).Temp
	}
	tmean := tsum / float64(h.Len())
	n := 0
	for _, pft := range pfts.All() {
		if pft.Lifeform == Crop || p.FPCTotal() >= establishmentCover {
			continue
		}
		if tmean <= pft.TMin || tmean >= pft.TMax {
			continue
		}
		present := false
		for _, ind := range p.Individuals {
			if ind.Alive && ind.PFT == pft {
				present = true
				break
			}
		}
		if !present {
			p.AddIndividual(pft, pft.EstablishC)
			p.UpdateFPC()
			n++
		}
	}
	return n
}

// disturbanceKey identifies one disturbance draw.
type disturbanceKey struct {
	Gridcell, Stand, Patch, Year int
}

// disturb destroys every individual in a natural patch with the given
// annual probability. The draw depends only on the location and year, so
// it is repeatable across runs and checkpoint restores.
func disturb(g *Gridcell, standIndex int, p *Patch, year int, probability float64) bool {
	if probability <= 0 || p.stand.LandUse != Natural {
		return false
	}
	if hash.Uniform(disturbanceKey{g.ID, standIndex, p.Index, year}) >= probability {
		return false
	}
	for len(p.Individuals) > 0 {
		p.RemoveIndividual(p.Individuals[0])
	}
	p.DisturbedYear = year
	return true
}

// YearlyEvents counts the events of one end-of-year update.
type YearlyEvents struct {
	Transfers, Deaths, Establishments, Disturbances int
}

// EndOfYearPatch carries out the end-of-year update of patch p in
// gridcell g: yearly growth transfer, turnover, allometry, mortality,
// disturbance and establishment, in that order. A second call for the same
// year is a no-op.
func EndOfYearPatch(p *Patch, g *Gridcell, standIndex int, year int, pfts *PFTSet, disturbance float64) YearlyEvents {
	var ev YearlyEvents
	if p.LastYearly == year {
		return ev
	}
	p.LastYearly = year
	for _, ind := range p.Individuals {
		if !ind.Alive {
			continue
		}
		if TransferYearlyGrowth(ind) {
			ev.Transfers++
			turnover(ind)
		}
		if ind.allometryPending {
			Allometry(ind)
		}
	}
	ev.Deaths = mortality(p)
	if disturb(g, standIndex, p, year, disturbance) {
		ev.Disturbances++
	}
	ev.Establishments = establish(p, pfts, g.Climate)
	p.UpdateFPC()
	return ev
}
