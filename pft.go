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
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Lifeform is the physiological strategy of a PFT.
type Lifeform int

// Lifeforms.
const (
	Tree Lifeform = iota
	Grass
	Crop
)

func (l Lifeform) String() string {
	switch l {
	case Tree:
		return "tree"
	case Grass:
		return "grass"
	case Crop:
		return "crop"
	default:
		return fmt.Sprintf("Lifeform(%d)", int(l))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Lifeform) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "tree":
		*l = Tree
	case "grass":
		*l = Grass
	case "crop":
		*l = Crop
	default:
		return fmt.Errorf("guess: invalid lifeform %q", string(b))
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (l Lifeform) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Lifeform) UnmarshalYAML(n *yaml.Node) error {
	return l.UnmarshalText([]byte(n.Value))
}

// PFT holds the parameters of a plant functional type.
type PFT struct {
	Name     string   `toml:"name" yaml:"name"`
	Lifeform Lifeform `toml:"lifeform" yaml:"lifeform"`

	// LUE is the light use efficiency [kgC/MJ PAR].
	LUE float64 `toml:"lue" yaml:"lue"`
	// Temperature limits of assimilation [°C].
	TMin float64 `toml:"tmin" yaml:"tmin"`
	TOpt float64 `toml:"topt" yaml:"topt"`
	TMax float64 `toml:"tmax" yaml:"tmax"`

	// Carbon to nitrogen mass ratios of the tissues.
	CNLeaf float64 `toml:"cn_leaf" yaml:"cn_leaf"`
	CNRoot float64 `toml:"cn_root" yaml:"cn_root"`
	CNStem float64 `toml:"cn_stem" yaml:"cn_stem"`
	CNHO   float64 `toml:"cn_ho" yaml:"cn_ho"`

	// Allocation fractions of new growth. They are normalized to sum to 1.
	AllocLeaf   float64 `toml:"alloc_leaf" yaml:"alloc_leaf"`
	AllocRoot   float64 `toml:"alloc_root" yaml:"alloc_root"`
	AllocStem   float64 `toml:"alloc_stem" yaml:"alloc_stem"`
	AllocAGPool float64 `toml:"alloc_agpool" yaml:"alloc_agpool"`

	// SLA is the specific leaf area [m²/kgC].
	SLA float64 `toml:"sla" yaml:"sla"`
	// Kext is the light extinction coefficient.
	Kext float64 `toml:"kext" yaml:"kext"`
	// LAIMax caps the leaf area index.
	LAIMax float64 `toml:"lai_max" yaml:"lai_max"`

	// NUptakeStrength scales root carbon to nitrogen uptake strength [m²/kgC].
	NUptakeStrength float64 `toml:"n_uptake_strength" yaml:"n_uptake_strength"`

	// Yearly turnover fractions.
	TurnoverLeaf float64 `toml:"turnover_leaf" yaml:"turnover_leaf"`
	TurnoverRoot float64 `toml:"turnover_root" yaml:"turnover_root"`

	// MinCMass is the total carbon below which an individual dies [kgC/m²].
	MinCMass float64 `toml:"min_cmass" yaml:"min_cmass"`
	// EstablishC is the carbon mass of a newly established or sown individual [kgC/m²].
	EstablishC float64 `toml:"establish_c" yaml:"establish_c"`
	// HeightAllom relates stem carbon to tree height [m/(kgC/m²)^0.5].
	HeightAllom float64 `toml:"height_allom" yaml:"height_allom"`

	// Crop phenology.
	TBase       float64 `toml:"tbase" yaml:"tbase"`             // base temperature for heat units [°C]
	PHU         float64 `toml:"phu" yaml:"phu"`                 // heat units to maturity [°C day]
	MaxGrowDays int     `toml:"max_grow_days" yaml:"max_grow_days"`
	HOAllocMax  float64 `toml:"ho_alloc_max" yaml:"ho_alloc_max"` // harvestable organ allocation at maturity

	// Sowing window. Days are zero-based days of the year; the window
	// wraps past the end of the year when SowWindowEnd < SowWindowStart.
	SowWindowStart int     `toml:"sow_window_start" yaml:"sow_window_start"`
	SowWindowEnd   int     `toml:"sow_window_end" yaml:"sow_window_end"`
	SowTemp        float64 `toml:"sow_temp" yaml:"sow_temp"`
	SowTempDays    int     `toml:"sow_temp_days" yaml:"sow_temp_days"`
	SowBelow       bool    `toml:"sow_below" yaml:"sow_below"`
	SowPrecMin     float64 `toml:"sow_prec_min" yaml:"sow_prec_min"`

	index int
}

// PFTSet is an ordered table of PFTs.
type PFTSet struct {
	pfts   []*PFT
	byName map[string]*PFT
}

// NewPFTSet checks the given PFTs and returns them as a table. The order
// of the arguments is the table order.
func NewPFTSet(pfts ...*PFT) (*PFTSet, error) {
	s := &PFTSet{byName: make(map[string]*PFT)}
	for i, p := range pfts {
		if err := p.check(); err != nil {
			return nil, err
		}
		if _, ok := s.byName[p.Name]; ok {
			return nil, fmt.Errorf("guess: duplicate PFT %q", p.Name)
		}
		p.index = i
		s.pfts = append(s.pfts, p)
		s.byName[p.Name] = p
	}
	return s, nil
}

func (p *PFT) check() error {
	if p.Name == "" {
		return fmt.Errorf("guess: PFT without a name")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"lue", p.LUE}, {"cn_leaf", p.CNLeaf}, {"cn_root", p.CNRoot},
		{"sla", p.SLA}, {"kext", p.Kext}, {"establish_c", p.EstablishC},
	} {
		if !(f.v > 0) {
			return fmt.Errorf("guess: PFT %s: %s must be positive", p.Name, f.name)
		}
	}
	if p.CNStem <= 0 {
		p.CNStem = p.CNRoot
	}
	if p.CNHO <= 0 {
		p.CNHO = p.CNLeaf
	}
	if p.LAIMax <= 0 {
		p.LAIMax = 10
	}
	if !(p.TMin < p.TOpt && p.TOpt < p.TMax) {
		return fmt.Errorf("guess: PFT %s: need tmin < topt < tmax", p.Name)
	}
	sum := p.AllocLeaf + p.AllocRoot + p.AllocStem + p.AllocAGPool
	if !(sum > 0) || p.AllocLeaf < 0 || p.AllocRoot < 0 || p.AllocStem < 0 || p.AllocAGPool < 0 {
		return fmt.Errorf("guess: PFT %s: invalid allocation fractions", p.Name)
	}
	p.AllocLeaf /= sum
	p.AllocRoot /= sum
	p.AllocStem /= sum
	p.AllocAGPool /= sum
	if p.Lifeform == Crop {
		if !(p.PHU > 0) || p.MaxGrowDays <= 0 {
			return fmt.Errorf("guess: crop PFT %s: phu and max_grow_days must be positive", p.Name)
		}
		if p.HOAllocMax < 0 || p.HOAllocMax > 1 {
			return fmt.Errorf("guess: crop PFT %s: ho_alloc_max must be within [0, 1]", p.Name)
		}
		if p.SowWindowStart < 0 || p.SowWindowStart >= DaysPerYear ||
			p.SowWindowEnd < 0 || p.SowWindowEnd >= DaysPerYear {
			return fmt.Errorf("guess: crop PFT %s: sowing window outside of the year", p.Name)
		}
		if p.SowTempDays < 1 {
			p.SowTempDays = 1
		}
	}
	return nil
}

// Get returns the PFT with the given name.
func (s *PFTSet) Get(name string) (*PFT, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// All returns the PFTs in table order.
func (s *PFTSet) All() []*PFT { return s.pfts }

// Names returns the PFT names in table order.
func (s *PFTSet) Names() []string {
	n := make([]string, len(s.pfts))
	for i, p := range s.pfts {
		n[i] = p.Name
	}
	return n
}

// Lifeform returns the PFTs of the given lifeform in table order.
func (s *PFTSet) Lifeform(l Lifeform) []*PFT {
	var o []*PFT
	for _, p := range s.pfts {
		if p.Lifeform == l {
			o = append(o, p)
		}
	}
	return o
}

type pftFile struct {
	PFT []*PFT `toml:"pft" yaml:"pft"`
}

// ReadPFTs reads a PFT table from r. format is either "toml" or "yaml".
func ReadPFTs(r io.Reader, format string) (*PFTSet, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("guess: reading PFT table: %v", err)
	}
	var f pftFile
	switch strings.ToLower(format) {
	case "toml":
		if _, err := toml.Decode(string(b), &f); err != nil {
			return nil, fmt.Errorf("guess: parsing PFT table: %v", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("guess: parsing PFT table: %v", err)
		}
	default:
		return nil, fmt.Errorf("guess: unsupported PFT table format %q", format)
	}
	if len(f.PFT) == 0 {
		return nil, fmt.Errorf("guess: PFT table is empty")
	}
	return NewPFTSet(f.PFT...)
}

// ReadPFTFile reads a PFT table from the named file, choosing the format
// by the file extension. An empty name returns the default table.
func ReadPFTFile(name string) (*PFTSet, error) {
	if name == "" {
		return DefaultPFTs(), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("guess: opening PFT table: %v", err)
	}
	defer f.Close()
	return ReadPFTs(f, strings.TrimPrefix(filepath.Ext(name), "."))
}

// WritePFTs writes s to w in the given format ("toml" or "yaml"), as read
// by ReadPFTs.
func WritePFTs(w io.Writer, s *PFTSet, format string) error {
	f := pftFile{PFT: s.All()}
	switch strings.ToLower(format) {
	case "toml":
		if err := toml.NewEncoder(w).Encode(f); err != nil {
			return fmt.Errorf("guess: writing PFT table: %v", err)
		}
	case "yaml", "yml":
		e := yaml.NewEncoder(w)
		if err := e.Encode(f); err != nil {
			return fmt.Errorf("guess: writing PFT table: %v", err)
		}
		return e.Close()
	default:
		return fmt.Errorf("guess: unsupported PFT table format %q", format)
	}
	return nil
}

// DefaultPFTs returns the built-in PFT table: a temperate broadleaved
// tree, a C3 grass, and spring wheat, winter wheat and maize crops.
func DefaultPFTs() *PFTSet {
	s, err := ReadPFTs(strings.NewReader(defaultPFTTable), "toml")
	if err != nil {
		panic(err)
	}
	return s
}

const defaultPFTTable = `
[[pft]]
name = "TeBS"
lifeform = "tree"
lue = 0.0006
tmin = -2.0
topt = 20.0
tmax = 38.0
cn_leaf = 30.0
cn_root = 40.0
cn_stem = 300.0
alloc_leaf = 0.3
alloc_root = 0.3
alloc_stem = 0.4
sla = 24.0
kext = 0.5
lai_max = 7.0
n_uptake_strength = 1.0
turnover_leaf = 1.0
turnover_root = 0.7
min_cmass = 0.002
establish_c = 0.05
height_allom = 10.0

[[pft]]
name = "C3G"
lifeform = "grass"
lue = 0.0005
tmin = -5.0
topt = 18.0
tmax = 40.0
cn_leaf = 25.0
cn_root = 40.0
alloc_leaf = 0.5
alloc_root = 0.5
sla = 32.0
kext = 0.5
lai_max = 5.0
n_uptake_strength = 0.6
turnover_leaf = 0.5
turnover_root = 0.5
min_cmass = 0.001
establish_c = 0.02

[[pft]]
name = "TeSW"
lifeform = "crop"
lue = 0.0007
tmin = 0.0
topt = 20.0
tmax = 35.0
cn_leaf = 20.0
cn_root = 40.0
cn_ho = 35.0
alloc_leaf = 0.5
alloc_root = 0.3
alloc_stem = 0.15
alloc_agpool = 0.05
sla = 30.0
kext = 0.6
lai_max = 6.0
n_uptake_strength = 1.2
min_cmass = 0.0
establish_c = 0.005
tbase = 0.0
phu = 1600.0
max_grow_days = 160
ho_alloc_max = 0.8
sow_window_start = 59
sow_window_end = 150
sow_temp = 5.0
sow_temp_days = 5
sow_prec_min = 0.0

[[pft]]
name = "TeWW"
lifeform = "crop"
lue = 0.0007
tmin = -2.0
topt = 18.0
tmax = 35.0
cn_leaf = 20.0
cn_root = 40.0
cn_ho = 35.0
alloc_leaf = 0.5
alloc_root = 0.3
alloc_stem = 0.15
alloc_agpool = 0.05
sla = 30.0
kext = 0.6
lai_max = 6.0
n_uptake_strength = 1.2
min_cmass = 0.0
establish_c = 0.005
tbase = 0.0
phu = 2000.0
max_grow_days = 300
ho_alloc_max = 0.8
sow_window_start = 243
sow_window_end = 334
sow_temp = 12.0
sow_temp_days = 5
sow_below = true
sow_prec_min = 0.0

[[pft]]
name = "TeCo"
lifeform = "crop"
lue = 0.0009
tmin = 8.0
topt = 28.0
tmax = 42.0
cn_leaf = 25.0
cn_root = 40.0
cn_ho = 50.0
alloc_leaf = 0.45
alloc_root = 0.25
alloc_stem = 0.25
alloc_agpool = 0.05
sla = 25.0
kext = 0.65
lai_max = 6.0
n_uptake_strength = 1.4
min_cmass = 0.0
establish_c = 0.005
tbase = 8.0
phu = 1400.0
max_grow_days = 180
ho_alloc_max = 0.7
sow_window_start = 90
sow_window_end = 170
sow_temp = 12.0
sow_temp_days = 7
sow_prec_min = 2.0
`

// allocFractions are the fractions of new growth allocated to each pool.
type allocFractions struct {
	leaf, root, stem, ho, agpool float64
}

// allocation returns the growth allocation of the PFT. For crops, huFrac is
// the fraction of the heat units to maturity accumulated so far; growth
// shifts to the harvestable organ as the crop matures.
func (p *PFT) allocation(huFrac float64) allocFractions {
	f := allocFractions{
		leaf:   p.AllocLeaf,
		root:   p.AllocRoot,
		stem:   p.AllocStem,
		agpool: p.AllocAGPool,
	}
	if p.Lifeform != Crop {
		return f
	}
	if huFrac < 0 {
		huFrac = 0
	} else if huFrac > 1 {
		huFrac = 1
	}
	f.ho = p.HOAllocMax * huFrac
	rest := 1 - f.ho
	f.leaf *= rest
	f.root *= rest
	f.stem *= rest
	f.agpool *= rest
	return f
}

// nPerC returns the nitrogen needed per unit of carbon growth.
func (f allocFractions) nPerC(p *PFT) float64 {
	return f.leaf/p.CNLeaf + f.root/p.CNRoot + f.stem/p.CNStem + f.ho/p.CNHO + f.agpool/p.CNStem
}
