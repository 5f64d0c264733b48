/*
 * Copyright 2022 ByteDance Inc.
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
    `fmt`

    `github.com/cloudwego/loopfrag/internal/ir`
)

// UnsupportedShapeError is returned when a loop cannot be transformed. It is
// always reported before the graph is modified.
type UnsupportedShapeError struct {
    Loop   *ir.Node
    Reason string
}

func (self *UnsupportedShapeError) Error() string {
    return fmt.Sprintf("unsupported loop shape at %s: %s", self.Loop, self.Reason)
}

func unsupported(lb *ir.Node, format string, args ...interface{}) error {
    return &UnsupportedShapeError {
        Loop   : lb,
        Reason : fmt.Sprintf(format, args...),
    }
}
