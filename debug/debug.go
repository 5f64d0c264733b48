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

package debug

import (
	"sync/atomic"

	"github.com/cloudwego/loopfrag/internal/loop"
)

// A Stats records statistics about the loop transformations.
type Stats struct {
	Loops LoopStats
	Nodes NodeStats
}

// A LoopStats records how many loops were transformed or rejected.
type LoopStats struct {
	Peeled   int
	Unrolled int
	Rejected int
}

// A NodeStats records how many nodes the transformations created.
type NodeStats struct {
	Duplicated int
}

// GetStats returns statistics of the loop transformations since the
// program started.
func GetStats() Stats {
	return Stats{
		Loops: LoopStats{
			Peeled:   int(atomic.LoadUint64(&loop.PeelCount)),
			Unrolled: int(atomic.LoadUint64(&loop.UnrollCount)),
			Rejected: int(atomic.LoadUint64(&loop.RejectCount)),
		},
		Nodes: NodeStats{
			Duplicated: int(atomic.LoadUint64(&loop.DuplicatedNodes)),
		},
	}
}
