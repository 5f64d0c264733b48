/*
 * Copyright 2021 ByteDance Inc.
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
    `fmt`

    `github.com/cloudwego/loopfrag/internal/ir`
    `github.com/cloudwego/loopfrag/internal/loop`
)

// UnsupportedShapeError occures when a loop does not have a shape the
// transformations can handle. The graph is never modified in that case.
type UnsupportedShapeError = loop.UnsupportedShapeError

// VerifyError lists the structural problems found in a graph.
type VerifyError = ir.VerifyError

// PassError occures when the graph no longer verifies after a pass was
// applied to one of its loops.
type PassError struct {
    Pass  string
    Loop  int
    Cause error
}

func (self PassError) Error() string {
    return fmt.Sprintf("PassError(%s, loop %d): %v", self.Pass, self.Loop, self.Cause)
}

func (self PassError) Unwrap() error {
    return self.Cause
}
