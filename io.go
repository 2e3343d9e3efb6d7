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
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/gocarina/gocsv"
	goshp "github.com/jonas-p/go-shp"
)

// wgs84WKT is written as the .prj file of shapefiles in geographic
// coordinates.
const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["Degree",0.017453292519943295]]`

// gridcellVar is a gridcell-level model variable available to output
// expressions.
type gridcellVar struct {
	desc, units string
	f           func(g *Gridcell) float64
}

var gridcellVars = map[string]gridcellVar{
	"Lon": {"Longitude", "degrees", func(g *Gridcell) float64 { return g.Lon }},
	"Lat": {"Latitude", "degrees", func(g *Gridcell) float64 { return g.Lat }},
	"VegC": {"Vegetation carbon", "kgC/m²", func(g *Gridcell) float64 {
		return g.standMean(patchVegC)
	}},
	"LeafC": {"Leaf carbon", "kgC/m²", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 {
			var c float64
			for _, ind := range p.Individuals {
				if ind.Alive {
					c += ind.CMassLeaf + ind.YCMassLeaf
				}
			}
			return c
		})
	}},
	"HarvestC": {"Carbon harvested this year", "kgC/m²", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 { return p.HarvestC })
	}},
	"LAI": {"Leaf area index", "m²/m²", func(g *Gridcell) float64 {
		return g.standMean(patchLAI)
	}},
	"FPC": {"Foliar projective cover", "fraction", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 { return p.FPCTotal() })
	}},
	"SoilN": {"Soil mineral nitrogen", "kgN/m²", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 { return p.Soil.NMineral })
	}},
	"LitterC": {"Litter carbon", "kgC/m²", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 { return p.Soil.LitterC })
	}},
	"NInd": {"Individuals per patch", "count", func(g *Gridcell) float64 {
		return g.standMean(func(p *Patch) float64 { return float64(len(p.Individuals)) })
	}},
	"Temp": {"Latest air temperature", "°C", func(g *Gridcell) float64 {
		if o, ok := g.Climate.Latest(); ok {
			return o.Temp
		}
		return math.NaN()
	}},
	"Prec": {"Latest precipitation", "mm", func(g *Gridcell) float64 {
		if o, ok := g.Climate.Latest(); ok {
			return o.Prec
		}
		return math.NaN()
	}},
}

// OutputOptions returns the names of the model variables that can be used
// in output expressions, along with their descriptions and units.
func OutputOptions() (names []string, descriptions []string, units []string) {
	for n := range gridcellVars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		descriptions = append(descriptions, gridcellVars[n].desc)
		units = append(units, gridcellVars[n].units)
	}
	return
}

// Outputter writes gridcell-level results to a shapefile at the end of
// every simulated year.
//
// outputVariables maps the names of the output fields to expressions that
// define how they are calculated from the model variables listed by
// OutputOptions and the output functions.
type Outputter struct {
	fileName        string
	gridProj        string
	outputVariables map[string]string
	expressions     map[string]*govaluate.EvaluableExpression
	modelVariables  []string
	outputFunctions map[string]govaluate.ExpressionFunction
}

// NewOutputter initializes a new Outputter. gridProj is the spatial reference
// of the gridcell coordinates, as in GridConfig. Default functions include:
//
// 'exp(x)' and 'log(x)', the natural exponential and logarithm.
//
// 'min(x, y)' and 'max(x, y)'.
func NewOutputter(fileName, gridProj string, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp": unaryFunc("exp", math.Exp),
		"log": unaryFunc("log", math.Log),
		"min": binaryFunc("min", math.Min),
		"max": binaryFunc("max", math.Max),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}
	if len(outputVariables) == 0 {
		return nil, fmt.Errorf("guess: no output variables")
	}
	if err := checkOutputNames(outputVariables); err != nil {
		return nil, err
	}
	o := &Outputter{
		fileName:        fileName,
		gridProj:        gridProj,
		outputVariables: outputVariables,
		expressions:     make(map[string]*govaluate.EvaluableExpression),
		outputFunctions: defaultOutputFuncs,
	}
	for name, expr := range outputVariables {
		expression, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("guess: output variable %s: %v", name, err)
		}
		for _, v := range expression.Vars() {
			if _, ok := gridcellVars[v]; !ok {
				return nil, fmt.Errorf("guess: output variable %s: undefined variable name '%s'", name, v)
			}
			o.modelVariables = append(o.modelVariables, v)
		}
		o.expressions[name] = expression
	}
	o.modelVariables = removeDuplicates(o.modelVariables)
	sort.Strings(o.modelVariables)
	return o, nil
}

func unaryFunc(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("guess: got %d arguments for function '%s', but needs 1", len(args), name)
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("guess: function '%s' needs a number", name)
		}
		return f(x), nil
	}
}

func binaryFunc(name string, f func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("guess: got %d arguments for function '%s', but needs 2", len(args), name)
		}
		x, ok1 := args[0].(float64)
		y, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("guess: function '%s' needs numbers", name)
		}
		return f(x, y), nil
	}
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]struct{})
	for _, val := range s {
		if _, ok := seen[val]; !ok {
			result = append(result, val)
			seen[val] = struct{}{}
		}
	}
	return result
}

var shpFieldName = regexp.MustCompile(`^[A-Za-z]\w*$`)

// checkOutputNames checks (1) if any output variable names exceed 10 characters
// and (2) if any output variable names include characters that are unsupported
// in shapefile field names.
func checkOutputNames(o map[string]string) error {
	for key := range o {
		long := len(key) > 10
		ok := shpFieldName.MatchString(key)
		if long && !ok {
			return fmt.Errorf("guess: output variable name '%s' exceeds 10 characters and includes unsupported character(s)", key)
		} else if long {
			return fmt.Errorf("guess: output variable name '%s' exceeds 10 characters", key)
		} else if !ok {
			return fmt.Errorf("guess: output variable name '%s' includes unsupported characters", key)
		}
	}
	return nil
}

// Results evaluates the output expressions for every gridcell. The
// returned map holds one value per gridcell, in gridcell order.
func (o *Outputter) Results(d *GUESS) (map[string][]float64, error) {
	r := make(map[string][]float64, len(o.expressions))
	for name := range o.expressions {
		r[name] = make([]float64, len(d.Gridcells))
	}
	params := make(map[string]interface{}, len(o.modelVariables))
	for i, g := range d.Gridcells {
		for _, v := range o.modelVariables {
			params[v] = gridcellVars[v].f(g)
		}
		for name, expr := range o.expressions {
			val, err := expr.Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("guess: evaluating output %s for gridcell %d: %v", name, g.ID, err)
			}
			f, ok := val.(float64)
			if !ok {
				return nil, fmt.Errorf("guess: output %s for gridcell %d is %T, not a number", name, g.ID, val)
			}
			r[name][i] = f
		}
	}
	return r, nil
}

// yearFile returns the name of the shapefile for the given year.
func (o *Outputter) yearFile(year int) string {
	base := strings.TrimSuffix(o.fileName, filepath.Ext(o.fileName))
	return fmt.Sprintf("%s_%d.shp", base, year)
}

// Output returns a function that writes the results of the year to
// a point shapefile named after the output file and the year, on the last
// day of every year. It should be placed after EndOfYear.
func (o *Outputter) Output() DomainManipulator {
	return func(d *GUESS) error {
		if !d.LastDayOfYear() {
			return nil
		}
		results, err := o.Results(d)
		if err != nil {
			return err
		}
		vars := make([]string, 0, len(results))
		for v := range results {
			vars = append(vars, v)
		}
		sort.Strings(vars)
		fields := make([]goshp.Field, len(vars))
		for i, v := range vars {
			fields[i] = goshp.FloatField(v, 14, 8)
		}

		fileName := o.yearFile(d.Year)
		shape, err := shp.NewEncoderFromFields(fileName, goshp.POINT, fields...)
		if err != nil {
			return fmt.Errorf("error creating output shapefile: %v", err)
		}
		for i, g := range d.Gridcells {
			outFields := make([]interface{}, len(vars))
			for j, v := range vars {
				outFields[j] = results[v][i]
			}
			if err = shape.EncodeFields(geom.Point{X: g.X, Y: g.Y}, outFields...); err != nil {
				shape.Close()
				return fmt.Errorf("error writing output shapefile: %v", err)
			}
		}
		shape.Close()

		// A .prj file can only be written when the projection is known
		// in WKT form.
		var prj string
		switch {
		case o.gridProj == "":
			prj = wgs84WKT
		case !strings.HasPrefix(strings.TrimSpace(o.gridProj), "+"):
			prj = o.gridProj
		default:
			return nil
		}
		f, err := os.Create(strings.TrimSuffix(fileName, ".shp") + ".prj")
		if err != nil {
			return fmt.Errorf("error creating output prj file: %v", err)
		}
		fmt.Fprint(f, prj)
		return f.Close()
	}
}

// PatchRecord is one row of the yearly patch report.
type PatchRecord struct {
	Year       int     `csv:"year"`
	Gridcell   int     `csv:"gridcell"`
	Stand      int     `csv:"stand"`
	LandUse    string  `csv:"landuse"`
	Crop       string  `csv:"crop"`
	Patch      int     `csv:"patch"`
	NInd       int     `csv:"nind"`
	VegC       float64 `csv:"veg_c"`
	LAI        float64 `csv:"lai"`
	FPC        float64 `csv:"fpc"`
	SoilN      float64 `csv:"soil_n"`
	LitterC    float64 `csv:"litter_c"`
	HarvestC   float64 `csv:"harvest_c"`
	SowDay     int     `csv:"sow_day"`
	HarvestDay int     `csv:"harvest_day"`
	Missed     int     `csv:"missed_years"`
}

// PatchRecords returns the report rows of every patch in the model.
func PatchRecords(d *GUESS) []PatchRecord {
	var recs []PatchRecord
	for _, g := range d.Gridcells {
		for si, s := range g.Stands {
			for _, p := range s.Patches {
				r := PatchRecord{
					Year:       d.Year,
					Gridcell:   g.ID,
					Stand:      si,
					LandUse:    s.LandUse.String(),
					Crop:       s.CropPFT,
					Patch:      p.Index,
					NInd:       len(p.Individuals),
					VegC:       patchVegC(p),
					LAI:        patchLAI(p),
					FPC:        p.FPCTotal(),
					SoilN:      p.Soil.NMineral,
					LitterC:    p.Soil.LitterC,
					HarvestC:   p.HarvestC,
					SowDay:     -1,
					HarvestDay: -1,
					Missed:     p.Sowing.MissedYears,
				}
				if p.Sowing.SowYear == d.Year {
					r.SowDay = p.Sowing.SowDay
				}
				if p.Sowing.HarvestYear == d.Year {
					r.HarvestDay = p.Sowing.HarvestDay
				}
				recs = append(recs, r)
			}
		}
	}
	return recs
}

// PatchReport returns a function that writes the state of every patch as
// CSV rows to w on the last day of every year. The header is written with
// the first rows. It should be placed after EndOfYear.
func PatchReport(w io.Writer) DomainManipulator {
	headerWritten := false
	return func(d *GUESS) error {
		if !d.LastDayOfYear() {
			return nil
		}
		recs := PatchRecords(d)
		if len(recs) == 0 {
			return nil
		}
		if !headerWritten {
			if err := gocsv.Marshal(recs, w); err != nil {
				return fmt.Errorf("guess: writing patch report: %w", err)
			}
			headerWritten = true
			return nil
		}
		if err := gocsv.MarshalWithoutHeaders(recs, w); err != nil {
			return fmt.Errorf("guess: writing patch report: %w", err)
		}
		return nil
	}
}
