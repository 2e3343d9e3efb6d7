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
	"fmt"
	"math"
)

// LandUse is the management class of a stand.
type LandUse int

// Land use classes.
const (
	Natural LandUse = iota
	Cropland
)

func (l LandUse) String() string {
	switch l {
	case Natural:
		return "natural"
	case Cropland:
		return "cropland"
	default:
		return fmt.Sprintf("LandUse(%d)", int(l))
	}
}

// Gridcell holds the state of one simulated geographic point.
type Gridcell struct {
	ID int

	Lon, Lat float64 // geographic coordinates [degrees]
	X, Y     float64 // coordinates in the grid projection

	// NDeposition is the atmospheric nitrogen deposition rate [kgN/m²/day].
	NDeposition float64

	Stands []*Stand

	// Climate is the recent daily climate of the gridcell.
	Climate *ClimateHistory

	// Disabled gridcells are skipped by Calculations.
	Disabled bool

	// crops are the crop PFTs grown in the gridcell's cropland stands,
	// in PFT table order.
	crops []*PFT
}

// Stand is a land-use unit within a gridcell.
type Stand struct {
	LandUse LandUse

	// CropPFT is the name of the crop grown in a cropland stand.
	CropPFT string

	// Fraction is the fraction of the gridcell area covered by the stand.
	Fraction float64

	Patches []*Patch

	gridcell *Gridcell
	crop     *PFT
}

// Soil holds the below-ground pools of a patch.
type Soil struct {
	NMineral float64 `desc:"Soil mineral nitrogen" units:"kgN/m²"`
	LitterC  float64 `desc:"Litter carbon" units:"kgC/m²"`
	LitterN  float64 `desc:"Litter nitrogen" units:"kgN/m²"`
}

// Patch is a replicate simulation unit within a stand. Canopy aggregates
// are computed at the patch level.
type Patch struct {
	// Index is the position of the patch within its stand.
	Index int

	Individuals []*Individual

	Soil Soil

	// Sowing tracks the crop calendar of a cropland patch.
	Sowing SowingRecord

	// HarvestC is the carbon harvested from the patch during the
	// current year [kgC/m²].
	HarvestC float64

	// DisturbedYear is the last year the patch was destroyed by
	// disturbance, or -1.
	DisturbedYear int

	// LastYearly is the last year for which the end-of-year update
	// was carried out, or -1.
	LastYearly int

	stand *Stand

	fpcTotal, fpcRescale float64
	fpcStale             bool
}

// Individual is one plant cohort within a patch. Carbon pools are
// in kgC/m² of patch area and nitrogen pools in kgN/m².
type Individual struct {
	PFT *PFT

	// NDemand is today's nitrogen demand.
	NDemand float64
	// Strength is the nitrogen uptake strength.
	Strength float64
	// FNUptake is the fraction of today's demand that was satisfied.
	FNUptake float64
	// Assimilate is today's potential carbon assimilation.
	Assimilate float64

	CMassLeaf, CMassRoot, CMassStem, CMassHO, CMassAGPool float64

	NMass float64

	// Yearly accumulated growth.
	YCMassLeaf, YCMassRoot, YCMassStem, YCMassHO, YCMassAGPool float64

	// Increments applied at the last yearly transfer.
	CMassLeafInc, CMassRootInc, CMassStemInc, CMassHOInc, CMassAGPoolInc float64

	Height float64 // [m]

	Alive bool

	lai, fpc float64

	// daysGrown is the number of growth days since the last
	// yearly transfer.
	daysGrown int
	// allometryPending is set by the yearly transfer and cleared
	// by the allometry recompute.
	allometryPending bool

	patch *Patch
}

// NewGridcell returns a gridcell with an empty climate history that
// retains the given number of days.
func NewGridcell(id int, lon, lat float64, retention int) *Gridcell {
	return &Gridcell{
		ID:      id,
		Lon:     lon,
		Lat:     lat,
		Climate: NewClimateHistory(retention),
	}
}

// AddStand adds a stand to the gridcell. For cropland stands, crop must
// be a PFT with the Crop lifeform.
func (g *Gridcell) AddStand(lu LandUse, crop *PFT, fraction float64) (*Stand, error) {
	s := &Stand{LandUse: lu, Fraction: fraction, gridcell: g}
	if lu == Cropland {
		if crop == nil || crop.Lifeform != Crop {
			return nil, fmt.Errorf("guess: cropland stand in gridcell %d needs a crop PFT", g.ID)
		}
		s.CropPFT = crop.Name
		s.crop = crop
	}
	g.Stands = append(g.Stands, s)
	g.indexCrops()
	return s, nil
}

// indexCrops rebuilds the ordered list of crops grown in g.
func (g *Gridcell) indexCrops() {
	g.crops = g.crops[:0]
	for _, s := range g.Stands {
		if s.crop == nil {
			continue
		}
		dup := false
		for _, c := range g.crops {
			if c == s.crop {
				dup = true
				break
			}
		}
		if !dup {
			g.crops = append(g.crops, s.crop)
		}
	}
	// Insertion sort by table position; the list is short.
	for i := 1; i < len(g.crops); i++ {
		for j := i; j > 0 && g.crops[j].index < g.crops[j-1].index; j-- {
			g.crops[j], g.crops[j-1] = g.crops[j-1], g.crops[j]
		}
	}
}

// Crops returns the crop PFTs grown in the gridcell, in PFT table order.
func (g *Gridcell) Crops() []*PFT { return g.crops }

// Gridcell returns the gridcell the stand belongs to.
func (s *Stand) Gridcell() *Gridcell { return s.gridcell }

// Crop returns the crop PFT of a cropland stand, or nil.
func (s *Stand) Crop() *PFT { return s.crop }

// AddPatch adds an empty patch to the stand.
func (s *Stand) AddPatch(soil Soil) *Patch {
	p := &Patch{
		Index:         len(s.Patches),
		Soil:          soil,
		Sowing:        newSowingRecord(),
		DisturbedYear: -1,
		LastYearly:    -1,
		stand:         s,
		fpcRescale:    1,
	}
	s.Patches = append(s.Patches, p)
	return p
}

// Stand returns the stand the patch belongs to.
func (p *Patch) Stand() *Stand { return p.stand }

// AddIndividual establishes a new individual of the given PFT in the patch
// with an initial carbon mass distributed according to the PFT's
// allocation fractions.
func (p *Patch) AddIndividual(pft *PFT, cmass float64) *Individual {
	ind := &Individual{
		PFT:   pft,
		Alive: true,
		patch: p,
	}
	f := pft.allocation(0)
	ind.CMassLeaf = cmass * f.leaf
	ind.CMassRoot = cmass * f.root
	ind.CMassStem = cmass * f.stem
	ind.CMassAGPool = cmass * f.agpool
	ind.NMass = cmass * f.nPerC(pft)
	p.Individuals = append(p.Individuals, ind)
	ind.updateCanopy()
	return ind
}

// RemoveIndividual removes ind from the patch, returning its biomass to
// the litter pools. It returns false if ind does not belong to p.
func (p *Patch) RemoveIndividual(ind *Individual) bool {
	for i, x := range p.Individuals {
		if x != ind {
			continue
		}
		p.Soil.LitterC += ind.TotalCMass()
		p.Soil.LitterN += ind.NMass
		ind.kill()
		p.Individuals = append(p.Individuals[:i], p.Individuals[i+1:]...)
		p.fpcStale = true
		return true
	}
	return false
}

// FPCTotal returns the summed foliar projective cover of the patch's
// living individuals.
func (p *Patch) FPCTotal() float64 {
	if p.fpcStale {
		p.UpdateFPC()
	}
	return p.fpcTotal
}

// FPCRescale returns the factor by which individual foliar projective
// cover must be scaled so that the patch total does not exceed 1.
func (p *Patch) FPCRescale() float64 {
	if p.fpcStale {
		p.UpdateFPC()
	}
	return p.fpcRescale
}

// UpdateFPC recomputes the patch canopy aggregates from its individuals.
func (p *Patch) UpdateFPC() {
	var total float64
	for _, ind := range p.Individuals {
		if ind.Alive {
			total += ind.fpc
		}
	}
	p.fpcTotal = total
	p.fpcRescale = 1 / math.Max(total, 1)
	p.fpcStale = false
}

// crop returns the crop individual of the patch, or nil.
func (p *Patch) crop() *Individual {
	for _, ind := range p.Individuals {
		if ind.Alive && ind.PFT.Lifeform == Crop {
			return ind
		}
	}
	return nil
}

// Patch returns the patch the individual belongs to.
func (ind *Individual) Patch() *Patch { return ind.patch }

// LAI returns the leaf area index of the individual.
func (ind *Individual) LAI() float64 { return ind.lai }

// FPC returns the foliar projective cover of the individual.
func (ind *Individual) FPC() float64 { return ind.fpc }

// AllometryPending returns whether the yearly growth of the individual has
// been transferred but its allometry has not been recomputed.
func (ind *Individual) AllometryPending() bool { return ind.allometryPending }

// TotalCMass returns the sum of all carbon pools of the individual,
// including growth that has not yet been transferred.
func (ind *Individual) TotalCMass() float64 {
	return ind.CMassLeaf + ind.CMassRoot + ind.CMassStem + ind.CMassHO + ind.CMassAGPool +
		ind.YCMassLeaf + ind.YCMassRoot + ind.YCMassStem + ind.YCMassHO + ind.YCMassAGPool
}

// setCanopy sets the canopy state of the individual and marks the
// patch aggregates stale.
func (ind *Individual) setCanopy(lai, fpc float64) {
	ind.lai = lai
	ind.fpc = fpc
	if ind.patch != nil {
		ind.patch.fpcStale = true
	}
}

func (ind *Individual) kill() {
	ind.Alive = false
	ind.setCanopy(0, 0)
	ind.CMassLeaf, ind.CMassRoot, ind.CMassStem, ind.CMassHO, ind.CMassAGPool = 0, 0, 0, 0, 0
	ind.YCMassLeaf, ind.YCMassRoot, ind.YCMassStem, ind.YCMassHO, ind.YCMassAGPool = 0, 0, 0, 0, 0
	ind.NMass = 0
}

// walk calls f for every patch in the gridcell, in order.
func (g *Gridcell) walk(f func(s *Stand, p *Patch) error) error {
	for _, s := range g.Stands {
		for _, p := range s.Patches {
			if err := f(s, p); err != nil {
				return err
			}
		}
	}
	return nil
}
