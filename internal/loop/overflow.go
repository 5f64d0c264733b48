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
    `github.com/cloudwego/loopfrag/internal/ir`
)

// PartialUnrollOverflowCheck returns the limit the unrolled loop is tested
// against. Moving the limit by the opaque stride may leave the domain of the
// comparison, in which case the extremum of the domain is used instead:
//
//     up:   limit - MIN <u stride     ? MIN : limit - stride
//     down: MAX - limit <u 0 - stride ? MAX : limit - stride
//
func PartialUnrollOverflowCheck(opaque *ir.Node, limit *ir.Node, counted *CountedInfo) *ir.Node {
    var ext *ir.Node
    var check *ir.Node
    g := opaque.Graph()
    bits := limit.Bits
    helper := counted.CounterIntegerHelper()

    /* the new limit, if it is representable */
    moved := g.SubValues(limit, opaque)
    if counted.Direction == Up {
        ext = g.Const(bits, helper.MinValue())
        check = g.BelowValues(g.SubValues(limit, ext), opaque)
    } else {
        ext = g.Const(bits, helper.MaxValue())
        check = g.BelowValues(g.SubValues(ext, limit), g.SubValues(g.Const(bits, 0), opaque))
    }
    return g.ConditionalValue(check, ext, moved)
}

// StrideAdditionOverflows reports whether doubling the stride of the loop
// overflows the width of the induction variable.
func StrideAdditionOverflows(loop *Loop) bool {
    iv := loop.Counted().IV
    s := Int65i(iv.Stride)
    return !s.Add(s).InSigned(iv.Bits)
}
