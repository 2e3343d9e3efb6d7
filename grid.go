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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// geographicSR is the spatial reference of gridcell coordinates.
const geographicSR = "+proj=longlat +datum=WGS84 +no_defs"

// GridConfig holds the gridcell and land-use configuration of a simulation.
type GridConfig struct {
	// Lon and Lat are the geographic coordinates of the gridcells
	// [degrees]. They must have the same length.
	Lon, Lat []float64

	// GridProj is the spatial reference of the output grid, as a proj4
	// string or WKT. If it is empty, gridcells keep their geographic
	// coordinates.
	GridProj string

	// NPatches is the number of replicate patches in each stand.
	NPatches int

	// Crops are the names of the crop PFTs grown in the gridcells. Each
	// crop gets its own cropland stand.
	Crops []string

	// CropFraction is the fraction of each gridcell under cropland. It is
	// shared equally among the crop stands; the rest is natural vegetation.
	CropFraction float64

	// NDeposition is the nitrogen deposition rate [kgN/m²/day].
	NDeposition float64

	// SoilNInit is the initial soil mineral nitrogen [kgN/m²].
	SoilNInit float64

	// ClimateRetention is the number of days kept in each gridcell's
	// climate history.
	ClimateRetention int
}

func (c *GridConfig) check() error {
	if len(c.Lon) == 0 {
		return fmt.Errorf("guess: no gridcells configured")
	}
	if len(c.Lon) != len(c.Lat) {
		return fmt.Errorf("guess: %d gridcell longitudes but %d latitudes", len(c.Lon), len(c.Lat))
	}
	for i := range c.Lon {
		if c.Lat[i] < -90 || c.Lat[i] > 90 || c.Lon[i] < -180 || c.Lon[i] > 360 {
			return fmt.Errorf("guess: gridcell %d: invalid coordinates (%g, %g)", i, c.Lon[i], c.Lat[i])
		}
	}
	if c.CropFraction < 0 || c.CropFraction > 1 {
		return fmt.Errorf("guess: crop fraction %g outside of [0, 1]", c.CropFraction)
	}
	if len(c.Crops) > 0 && c.CropFraction == 0 {
		return fmt.Errorf("guess: crops %v configured with a zero crop fraction", c.Crops)
	}
	if len(c.Crops) == 0 && c.CropFraction > 0 {
		return fmt.Errorf("guess: crop fraction %g configured without crops", c.CropFraction)
	}
	if c.NDeposition < 0 || c.SoilNInit < 0 {
		return fmt.Errorf("guess: nitrogen deposition and initial soil nitrogen must not be negative")
	}
	return nil
}

// gridTransform returns a function that projects geographic coordinates
// to the grid projection.
func gridTransform(gridProj string) (proj.Transformer, error) {
	if gridProj == "" {
		return func(x, y float64) (float64, float64, error) { return x, y, nil }, nil
	}
	src, err := proj.Parse(geographicSR)
	if err != nil {
		return nil, fmt.Errorf("guess: parsing geographic projection: %v", err)
	}
	dst, err := proj.Parse(gridProj)
	if err != nil {
		return nil, fmt.Errorf("guess: parsing grid projection: %v", err)
	}
	return src.NewTransform(dst)
}

// SetupGridcells returns a function that creates the gridcells of the
// simulation from config and sets the model clock to the start of the
// first year. Natural patches are seeded with one individual of every
// tree and grass PFT.
func SetupGridcells(config *GridConfig) DomainManipulator {
	return func(d *GUESS) error {
		if d.PFTs == nil {
			return fmt.Errorf("guess: SetupGridcells: no PFT table")
		}
		if err := config.check(); err != nil {
			return err
		}
		crops := make([]*PFT, len(config.Crops))
		for i, name := range config.Crops {
			p, ok := d.PFTs.Get(name)
			if !ok {
				return fmt.Errorf("guess: crop %q is not in the PFT table %v", name, d.PFTs.Names())
			}
			if p.Lifeform != Crop {
				return fmt.Errorf("guess: PFT %q is a %s, not a crop", name, p.Lifeform)
			}
			crops[i] = p
		}
		trans, err := gridTransform(config.GridProj)
		if err != nil {
			return err
		}
		npatch := config.NPatches
		if npatch < 1 {
			npatch = 1
		}
		soil := Soil{NMineral: config.SoilNInit}

		d.Gridcells = make([]*Gridcell, len(config.Lon))
		for i := range config.Lon {
			g := NewGridcell(i, config.Lon[i], config.Lat[i], config.ClimateRetention)
			g.NDeposition = config.NDeposition
			pt, err := geom.Point{X: g.Lon, Y: g.Lat}.Transform(trans)
			if err != nil {
				return fmt.Errorf("guess: projecting gridcell %d: %v", i, err)
			}
			g.X, g.Y = pt.(geom.Point).X, pt.(geom.Point).Y

			if natural := 1 - config.CropFraction; natural > 0 {
				s, err := g.AddStand(Natural, nil, natural)
				if err != nil {
					return err
				}
				for j := 0; j < npatch; j++ {
					p := s.AddPatch(soil)
					for _, pft := range d.PFTs.All() {
						if pft.Lifeform != Crop {
							p.AddIndividual(pft, pft.EstablishC)
						}
					}
					p.UpdateFPC()
				}
			}
			for _, c := range crops {
				s, err := g.AddStand(Cropland, c, config.CropFraction/float64(len(crops)))
				if err != nil {
					return err
				}
				for j := 0; j < npatch; j++ {
					s.AddPatch(soil)
				}
			}
			d.Gridcells[i] = g
		}
		d.Year, d.Day = d.FirstYear, 0
		d.Done = d.NYears <= 0
		return nil
	}
}
