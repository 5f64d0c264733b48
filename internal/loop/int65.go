/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package loop

import (
	"math/bits"
)

// Int65 is a 65-bit two's complement integer, wide enough to hold the exact
// sum or difference of any two 64-bit integers.
type Int65 struct {
	u uint64
	s uint64
}

func Int65i(v int64) Int65 {
	return Int65{
		u: uint64(v),
		s: uint64(v) >> 63,
	}
}

func (self Int65) Add(other Int65) (r Int65) {
	var c uint64
	r.u, c = bits.Add64(self.u, other.u, 0)
	r.s = (self.s + other.s + c) & 1
	return
}

func (self Int65) Compare(other Int65) int {
	if self.s == 0 && other.s != 0 {
		return 1
	} else if self.s != 0 && other.s == 0 {
		return -1
	} else {
		return cmpu64(self.u, other.u)
	}
}

// InSigned reports whether the value fits in a signed integer of the given width.
func (self Int65) InSigned(width uint8) bool {
	lo := int64(-1) << (width - 1)
	hi := ^lo
	return self.Compare(Int65i(lo)) >= 0 && self.Compare(Int65i(hi)) <= 0
}

func cmpu64(a uint64, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	} else {
		return 0
	}
}
