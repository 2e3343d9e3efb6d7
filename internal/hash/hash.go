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
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.*/

// Package hash computes stable hashes of Go values.
package hash

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Hash returns a hash key for the specified object.
func Hash(object interface{}) string {
	h := fnv.New128a()
	write(h, object)
	bKey := h.Sum([]byte{})
	return fmt.Sprintf("%x", bKey[0:h.Size()])
}

// Uniform returns a number in [0, 1) derived from the hash of object.
// Equal objects always give the same number, so it can stand in for a
// random draw that must be reproducible.
func Uniform(object interface{}) float64 {
	h := fnv.New64a()
	write(h, object)
	x := mix(binary.BigEndian.Uint64(h.Sum(nil)))
	const mantissa = 1 << 53
	return float64(x>>11) / mantissa
}

// mix is the 64-bit finalizer of MurmurHash3. FNV spreads changes in the
// last bytes of the input poorly into the high bits.
func mix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// write writes a representation of object to h.
func write(h hash.Hash, object interface{}) {
	if s, ok := object.(fmt.Stringer); ok {
		fmt.Fprint(h, s.String())
		return
	}
	e := gob.NewEncoder(h)
	if err := e.Encode(object); err == nil {
		return
	}
	// If there is an error (e.g., there are NaN values)
	// use spew instead of gob.
	h.Reset()
	printer := spew.ConfigState{
		Indent:                  " ",
		SortKeys:                true,
		DisableMethods:          true,
		SpewKeys:                true,
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}
	printer.Fprintf(h, "%#v", object)
}
