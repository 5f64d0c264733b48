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

package opts

import (
	"go.uber.org/zap"
)

// Options controls the loop transformation driver. A nil Logger keeps the
// logger already attached to the graph.
type Options struct {
	Verify          bool
	MaxUnrollFactor int
	MaxPeelings     int
	Passes          []string
	Logger          *zap.Logger
}

// CanUnroll reports whether a loop with the given unroll factor may be
// unrolled once more. A zero limit means unlimited.
func (self *Options) CanUnroll(factor int) bool {
	return self.MaxUnrollFactor == 0 || factor*2 <= self.MaxUnrollFactor
}

// CanPeel reports whether a loop which was already peeled the given number
// of times may be peeled again. A zero limit means unlimited.
func (self *Options) CanPeel(peelings int) bool {
	return self.MaxPeelings == 0 || peelings < self.MaxPeelings
}

func GetDefaultOptions() Options {
	return Options{
		Verify:          Verify,
		MaxUnrollFactor: MaxUnrollFactor,
		MaxPeelings:     MaxPeelings,
	}
}
