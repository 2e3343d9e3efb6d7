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
	"errors"
	"fmt"
	"math"
)

// ErrAllometryPending is returned when daily growth is requested for an
// individual whose yearly growth has been transferred but whose
// allometry has not been recomputed.
var ErrAllometryPending = errors.New("guess: allometry must be recomputed after the yearly growth transfer")

// Assimilator computes the potential carbon assimilation of an individual.
type Assimilator interface {
	// Assimilate returns the potential carbon assimilation of ind on the
	// day of obs at latitude lat [kgC/m²/day], before any nitrogen
	// limitation.
	Assimilate(ind *Individual, lat float64, obs Observation) float64
}

// LUEAssimilator is a light use efficiency model: assimilation is the
// product of the PFT's light use efficiency, the photosynthetically active
// radiation absorbed by the individual's canopy and a temperature response.
type LUEAssimilator struct{}

// Assimilate implements Assimilator.
func (LUEAssimilator) Assimilate(ind *Individual, lat float64, obs Observation) float64 {
	return ind.PFT.LUE * PAR(lat, obs.Day) * ind.fpc * temperatureResponse(ind.PFT, obs.Temp)
}

// PAR returns the daily photosynthetically active radiation at the
// surface [MJ/m²/day] at latitude lat [degrees] on the given zero-based day
// of the year, as a fixed fraction of the extraterrestrial radiation.
func PAR(lat float64, day int) float64 {
	const (
		solarConstant = 0.0820 // MJ/m²/min
		transmission  = 0.5
		parFraction   = 0.5
	)
	j := 2 * math.Pi * float64(day+1) / DaysPerYear
	dr := 1 + 0.033*math.Cos(j)
	decl := 0.409 * math.Sin(j-1.39)
	phi := lat * math.Pi / 180
	x := -math.Tan(phi) * math.Tan(decl)
	x = math.Max(-1, math.Min(1, x))
	ws := math.Acos(x) // sunset hour angle
	ra := 24 * 60 / math.Pi * solarConstant * dr *
		(ws*math.Sin(phi)*math.Sin(decl) + math.Cos(phi)*math.Cos(decl)*math.Sin(ws))
	return math.Max(0, ra*transmission*parFraction)
}

// temperatureResponse scales assimilation between 0 at TMin and TMax and
// 1 at TOpt.
func temperatureResponse(p *PFT, t float64) float64 {
	switch {
	case t <= p.TMin || t >= p.TMax:
		return 0
	case t <= p.TOpt:
		return (t - p.TMin) / (p.TOpt - p.TMin)
	default:
		return (p.TMax - t) / (p.TMax - p.TOpt)
	}
}

// growing returns whether ind takes part in today's growth.
func (p *Patch) growing(ind *Individual) bool {
	if !ind.Alive {
		return false
	}
	if ind.PFT.Lifeform == Crop {
		return p.Sowing.State == Growing
	}
	return true
}

// AdvanceGrowth carries out one day of growth in patch p:
//
//  1. the potential assimilation and nitrogen demand of every growing
//     individual is computed;
//  2. the soil mineral nitrogen is shared among the individuals with a
//     positive demand by a single call to NCompete;
//  3. realized growth, the potential assimilation scaled by the satisfied
//     fraction of the nitrogen demand, is added to the yearly growth pools
//     and the nitrogen taken up is removed from the soil;
//  4. the canopy of every individual and the patch canopy aggregates are
//     recomputed.
//
// It returns an error wrapping ErrAllometryPending if an individual's
// yearly growth has been transferred without recomputing its allometry.
func AdvanceGrowth(p *Patch, obs Observation, a Assimilator) error {
	lat := p.stand.gridcell.Lat
	rescale := p.FPCRescale()
	var growing []*Individual
	var fracs []allocFractions
	for _, ind := range p.Individuals {
		if !ind.Alive {
			continue
		}
		if ind.allometryPending {
			return fmt.Errorf("%w: patch %d, PFT %s", ErrAllometryPending, p.Index, ind.PFT.Name)
		}
		ind.NDemand, ind.Strength, ind.FNUptake, ind.Assimilate = 0, 0, 0, 0
		if !p.growing(ind) {
			continue
		}
		gpp := a.Assimilate(ind, lat, obs) * rescale
		if math.IsNaN(gpp) || math.IsInf(gpp, 0) {
			panic(&ContractViolation{Op: "AdvanceGrowth", Index: len(growing), Msg: "assimilation must be finite", Value: gpp})
		}
		if gpp <= 0 {
			continue
		}
		f := ind.PFT.allocation(p.Sowing.HeatUnitFraction(ind.PFT))
		ind.Assimilate = gpp
		ind.NDemand = gpp * f.nPerC(ind.PFT)
		ind.Strength = (ind.CMassRoot + ind.YCMassRoot) * ind.PFT.NUptakeStrength
		growing = append(growing, ind)
		fracs = append(fracs, f)
	}

	if len(growing) > 0 {
		comps := make([]NCompetingIndividual, len(growing))
		for i, ind := range growing {
			comps[i] = NCompetingIndividual{
				NDemand:  ind.NDemand,
				Strength: ind.Strength,
				Grass:    ind.PFT.Lifeform == Grass,
			}
		}
		NCompete(comps, math.Max(0, p.Soil.NMineral))
		for i, ind := range growing {
			fn := comps[i].FNUptake
			ind.FNUptake = fn
			growth := ind.Assimilate * fn
			uptake := ind.NDemand * fn
			p.Soil.NMineral = math.Max(0, p.Soil.NMineral-uptake)
			ind.NMass += uptake

			f := fracs[i]
			ind.YCMassLeaf += growth * f.leaf
			ind.YCMassRoot += growth * f.root
			ind.YCMassStem += growth * f.stem
			ind.YCMassHO += growth * f.ho
			ind.YCMassAGPool += growth * f.agpool
		}
	}
	for _, ind := range p.Individuals {
		if ind.Alive {
			ind.daysGrown++
			ind.updateCanopy()
		}
	}
	p.UpdateFPC()
	return nil
}

// updateCanopy recomputes leaf area index and foliar projective cover
// from the leaf carbon of the individual, including growth that has not
// yet been transferred.
func (ind *Individual) updateCanopy() {
	p := ind.PFT
	lai := math.Min(p.SLA*(ind.CMassLeaf+ind.YCMassLeaf), p.LAIMax)
	ind.setCanopy(lai, 1-math.Exp(-p.Kext*lai))
}

// Soil process rates.
const (
	litterDecay = 0.3 / DaysPerYear // litter decomposition at 10 °C [1/day]
	litterQ10   = 2.0
	leachRate   = 0.002 // fraction of mineral nitrogen leached per day at 20 mm of precipitation
)

// UpdateSoil carries out one day of soil nitrogen cycling in patch p:
// litter decomposition releases mineral nitrogen, deposition adds
// ndep [kgN/m²/day], and precipitation leaches part of the mineral pool.
func UpdateSoil(p *Patch, obs Observation, ndep float64) {
	k := 0.0
	if obs.Temp > -5 {
		k = math.Min(1, litterDecay*math.Pow(litterQ10, (obs.Temp-10)/10))
	}
	dc := p.Soil.LitterC * k
	dn := p.Soil.LitterN * k
	p.Soil.LitterC -= dc
	p.Soil.LitterN -= dn
	p.Soil.NMineral += dn + ndep
	p.Soil.NMineral *= 1 - leachRate*math.Min(1, math.Max(0, obs.Prec)/20)
}
