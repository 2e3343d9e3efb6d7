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
	"fmt"
	"io"
)

// savedState is the content of a saved simulation.
type savedState struct {
	Year, Day int
	Gridcells []*Gridcell
}

// Save returns a function that saves the model clock and the state of every
// gridcell to w. It should be run between days, after all gridcell
// calculations have finished.
func Save(w io.Writer) DomainManipulator {
	return func(d *GUESS) error {
		e := gob.NewEncoder(w)
		s := savedState{Year: d.Year, Day: d.Day, Gridcells: d.Gridcells}
		if err := e.Encode(s); err != nil {
			return fmt.Errorf("guess.GUESS.Save: %v", err)
		}
		return nil
	}
}

// Load returns a function that loads the data from a previously Saved file
// into the model. PFTs are looked up by name in d.PFTs. If d.Climate
// implements Seeker, it is moved to the restored date.
func Load(r io.Reader) DomainManipulator {
	return func(d *GUESS) error {
		if d.PFTs == nil {
			return fmt.Errorf("guess.GUESS.Load: no PFT table")
		}
		dec := gob.NewDecoder(r)
		var s savedState
		if err := dec.Decode(&s); err != nil {
			return fmt.Errorf("guess.GUESS.Load: %v", err)
		}
		if s.Year < d.FirstYear {
			return fmt.Errorf("guess.GUESS.Load: saved year %d is before the first simulation year %d", s.Year, d.FirstYear)
		}
		for _, g := range s.Gridcells {
			if err := g.rebind(d.PFTs); err != nil {
				return fmt.Errorf("guess.GUESS.Load: gridcell %d: %v", g.ID, err)
			}
		}
		d.Gridcells = s.Gridcells
		d.Year, d.Day = s.Year, s.Day
		d.Done = d.Year >= d.FirstYear+d.NYears
		if sk, ok := d.Climate.(Seeker); ok {
			if err := sk.Seek(d.Year, d.Day); err != nil {
				return fmt.Errorf("guess.GUESS.Load: %v", err)
			}
		}
		return nil
	}
}

// rebind restores the links between the levels of the hierarchy of g and
// to the PFT table after decoding.
func (g *Gridcell) rebind(pfts *PFTSet) error {
	if g.Climate == nil {
		g.Climate = NewClimateHistory(0)
	}
	for _, s := range g.Stands {
		s.gridcell = g
		s.crop = nil
		if s.LandUse == Cropland {
			c, ok := pfts.Get(s.CropPFT)
			if !ok || c.Lifeform != Crop {
				return fmt.Errorf("crop %q is not in the PFT table", s.CropPFT)
			}
			s.crop = c
		}
		for _, p := range s.Patches {
			p.stand = s
			p.fpcStale = true
			for _, ind := range p.Individuals {
				pft, ok := pfts.Get(ind.PFT.Name)
				if !ok {
					return fmt.Errorf("PFT %q is not in the PFT table", ind.PFT.Name)
				}
				ind.PFT = pft
				ind.patch = p
			}
		}
	}
	g.indexCrops()
	return nil
}

// individualState holds the saved state of an Individual. The PFT is
// stored by name.
type individualState struct {
	PFT string

	NDemand, Strength, FNUptake, Assimilate float64

	CMassLeaf, CMassRoot, CMassStem, CMassHO, CMassAGPool float64

	NMass float64

	YCMassLeaf, YCMassRoot, YCMassStem, YCMassHO, YCMassAGPool float64

	CMassLeafInc, CMassRootInc, CMassStemInc, CMassHOInc, CMassAGPoolInc float64

	Height   float64
	Alive    bool
	LAI, FPC float64

	DaysGrown        int
	AllometryPending bool
}

// GobEncode implements gob.GobEncoder.
func (ind *Individual) GobEncode() ([]byte, error) {
	s := individualState{
		PFT:              ind.PFT.Name,
		NDemand:          ind.NDemand,
		Strength:         ind.Strength,
		FNUptake:         ind.FNUptake,
		Assimilate:       ind.Assimilate,
		CMassLeaf:        ind.CMassLeaf,
		CMassRoot:        ind.CMassRoot,
		CMassStem:        ind.CMassStem,
		CMassHO:          ind.CMassHO,
		CMassAGPool:      ind.CMassAGPool,
		NMass:            ind.NMass,
		YCMassLeaf:       ind.YCMassLeaf,
		YCMassRoot:       ind.YCMassRoot,
		YCMassStem:       ind.YCMassStem,
		YCMassHO:         ind.YCMassHO,
		YCMassAGPool:     ind.YCMassAGPool,
		CMassLeafInc:     ind.CMassLeafInc,
		CMassRootInc:     ind.CMassRootInc,
		CMassStemInc:     ind.CMassStemInc,
		CMassHOInc:       ind.CMassHOInc,
		CMassAGPoolInc:   ind.CMassAGPoolInc,
		Height:           ind.Height,
		Alive:            ind.Alive,
		LAI:              ind.lai,
		FPC:              ind.fpc,
		DaysGrown:        ind.daysGrown,
		AllometryPending: ind.allometryPending,
	}
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(s); err != nil {
		return nil, fmt.Errorf("guess: encoding individual: %v", err)
	}
	return b.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The PFT of the decoded individual
// only carries its name until the hierarchy is rebound to a PFT table.
func (ind *Individual) GobDecode(b []byte) error {
	var s individualState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return fmt.Errorf("guess: decoding individual: %v", err)
	}
	*ind = Individual{
		PFT:              &PFT{Name: s.PFT},
		NDemand:          s.NDemand,
		Strength:         s.Strength,
		FNUptake:         s.FNUptake,
		Assimilate:       s.Assimilate,
		CMassLeaf:        s.CMassLeaf,
		CMassRoot:        s.CMassRoot,
		CMassStem:        s.CMassStem,
		CMassHO:          s.CMassHO,
		CMassAGPool:      s.CMassAGPool,
		NMass:            s.NMass,
		YCMassLeaf:       s.YCMassLeaf,
		YCMassRoot:       s.YCMassRoot,
		YCMassStem:       s.YCMassStem,
		YCMassHO:         s.YCMassHO,
		YCMassAGPool:     s.YCMassAGPool,
		CMassLeafInc:     s.CMassLeafInc,
		CMassRootInc:     s.CMassRootInc,
		CMassStemInc:     s.CMassStemInc,
		CMassHOInc:       s.CMassHOInc,
		CMassAGPoolInc:   s.CMassAGPoolInc,
		Height:           s.Height,
		Alive:            s.Alive,
		lai:              s.LAI,
		fpc:              s.FPC,
		daysGrown:        s.DaysGrown,
		allometryPending: s.AllometryPending,
	}
	return nil
}
