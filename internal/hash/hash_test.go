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

package hash

import (
	"math"
	"testing"
)

type key struct{ A, B int }

func TestHash(t *testing.T) {
	if Hash([]byte("state")) != Hash([]byte("state")) {
		t.Error("hash is not stable")
	}
	if Hash([]byte("state")) == Hash([]byte("State")) {
		t.Error("different data gave the same hash")
	}
	if h := Hash(math.NaN()); h == "" {
		t.Error("no hash for NaN")
	}
}

func TestUniform(t *testing.T) {
	const n = 20000
	var sum float64
	var low int
	for i := 0; i < n; i++ {
		u := Uniform(key{A: 7, B: i})
		if u < 0 || u >= 1 {
			t.Fatalf("%d: %g", i, u)
		}
		if u != Uniform(key{A: 7, B: i}) {
			t.Fatalf("%d: draw is not reproducible", i)
		}
		if u < 0.1 {
			low++
		}
		sum += u
	}
	if mean := sum / n; math.Abs(mean-0.5) > 0.01 {
		t.Errorf("mean %g", mean)
	}
	if f := float64(low) / n; math.Abs(f-0.1) > 0.01 {
		t.Errorf("fraction below 0.1 is %g", f)
	}
}
