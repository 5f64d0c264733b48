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

package ir

import (
    `fmt`
    `strings`
)

func refs(list []*Node) string {
    buf := make([]string, len(list))
    for i, p := range list {
        if p == nil {
            buf[i] = "_"
        } else {
            buf[i] = fmt.Sprintf("%%%d", p.ID)
        }
    }
    return strings.Join(buf, ", ")
}

// Format returns the textual form of a node with its edges.
func (self *Node) Format() string {
    var buf strings.Builder
    buf.WriteString(self.String())

    /* inputs */
    if len(self.in) != 0 {
        fmt.Fprintf(&buf, " (%s)", refs(self.in))
    }

    /* control flow */
    if len(self.sux) != 0 {
        fmt.Fprintf(&buf, " -> [%s]", refs(self.sux))
    }

    /* loop bookkeeping */
    switch self.Op {
        case OpLoopBegin : fmt.Fprintf(&buf, " unroll=%d peel=%d", self.UnrollFactor, self.Peelings)
        case OpLoopEnd   : fmt.Fprintf(&buf, " index=%d", self.endIndex)
        case OpGuard     : if self.Negated { buf.WriteString(" negated") }
    }
    return buf.String()
}

// Dump returns the textual form of every live node, one per line.
func (self *Graph) Dump() string {
    var buf []string
    for _, p := range self.Nodes() {
        buf = append(buf, p.Format())
    }
    return strings.Join(buf, "\n")
}
