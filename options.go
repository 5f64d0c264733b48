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

package loopfrag

import (
	"fmt"

	"github.com/cloudwego/loopfrag/internal/opts"
	"go.uber.org/zap"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithVerify checks the structure of the graph after every transformed loop.
//
// The default value of this option is taken from the `LOOPFRAG_VERIFY`
// environment variable, and is "false" if it is not set.
func WithVerify(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithMaxUnrollFactor sets the largest unroll factor a loop may reach.
// Every partial unroll doubles the factor, so a value of "8" allows three
// rounds of unrolling.
//
// Set this option to "0" disables this limit.
//
// The default value of this option is "8".
func WithMaxUnrollFactor(factor int) Option {
	if factor < 0 || factor == 1 {
		panic(fmt.Sprintf("loopfrag: invalid unroll factor: %d", factor))
	} else {
		return func(o *opts.Options) { o.MaxUnrollFactor = factor }
	}
}

// WithMaxPeelings sets how many times the same loop may be peeled.
//
// Set this option to "0" disables this limit.
//
// The default value of this option is "1".
func WithMaxPeelings(n int) Option {
	if n < 0 {
		panic(fmt.Sprintf("loopfrag: invalid peeling count: %d", n))
	} else {
		return func(o *opts.Options) { o.MaxPeelings = n }
	}
}

// WithPasses selects the passes run by Transform, in order. The names are
// the keys of the descriptors in Passes.
//
// The default is to peel only. Unrolling leaves the trailing iterations of
// every loop to the caller.
func WithPasses(names ...string) Option {
	for _, name := range names {
		if lookupPass(name) == nil {
			panic(fmt.Sprintf("loopfrag: unknown pass: %s", name))
		}
	}
	return func(o *opts.Options) { o.Passes = names }
}

// WithLogger attaches a logger to the transformed graph.
func WithLogger(logger *zap.Logger) Option {
	return func(o *opts.Options) { o.Logger = logger }
}

// SetMaxUnrollFactor sets the default maximum unroll factor from now on.
//
// This value can also be configured with the `LOOPFRAG_MAX_UNROLL_FACTOR`
// environment variable.
//
// Returns the old opts.MaxUnrollFactor value.
func SetMaxUnrollFactor(factor int) int {
	factor, opts.MaxUnrollFactor = opts.MaxUnrollFactor, factor
	return factor
}

// SetMaxPeelings sets the default maximum peeling count from now on.
//
// This value can also be configured with the `LOOPFRAG_MAX_PEELINGS`
// environment variable.
//
// Returns the old opts.MaxPeelings value.
func SetMaxPeelings(n int) int {
	n, opts.MaxPeelings = opts.MaxPeelings, n
	return n
}
