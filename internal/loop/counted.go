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

type Direction uint8

const (
    Up Direction = iota
    Down
)

func (self Direction) String() string {
    switch self {
        case Up   : return "up"
        case Down : return "down"
        default   : panic(fmt.Sprintf("invalid direction: %d", self))
    }
}

// IntegerHelper describes the integer domain a loop counter is compared in.
type IntegerHelper struct {
    Bits   uint8
    Signed bool
}

// MinValue returns the smallest value of the domain, as a wrapped constant.
func (self IntegerHelper) MinValue() int64 {
    if self.Signed {
        return int64(-1) << (self.Bits - 1)
    } else {
        return 0
    }
}

// MaxValue returns the largest value of the domain, as a wrapped constant.
func (self IntegerHelper) MaxValue() int64 {
    if self.Signed {
        return ^(int64(-1) << (self.Bits - 1))
    } else {
        return ir.Wrap(self.Bits, -1)
    }
}

// InductionVariable is the loop phi stepping by a constant stride on every
// iteration. The limit test may check the phi plus a constant offset.
type InductionVariable struct {
    Phi    *ir.Node
    Offset int64
    Stride int64
    Bits   uint8
}

// CountedInfo describes a loop whose trip count is controlled by comparing an
// induction variable with a loop invariant limit.
type CountedInfo struct {
    LimitTest   *ir.Node
    Body        *ir.Node
    CountedExit *ir.Node
    Limit       *ir.Node
    IV          InductionVariable
    Direction   Direction
    Inverted    bool
    Helper      IntegerHelper
}

// CounterIntegerHelper returns the integer domain of the limit comparison.
func (self *CountedInfo) CounterIntegerHelper() IntegerHelper {
    return self.Helper
}

// analyzeCounted recognizes "while (iv < limit)" and "while (limit < iv)"
// loops. The test either directly follows the loop begin, or precedes the
// back edge in an inverted loop.
func analyzeCounted(loop *Loop) *CountedInfo {
    lb := loop.begin
    ends := lb.LoopEnds()
    if len(ends) != 1 {
        return nil
    }

    /* a test right after the loop begin */
    if test := lb.Next(); test != nil && test.Op == ir.OpIf {
        if ret := analyzeLimitTest(loop, test); ret != nil {
            ret.Body = ret.bodySuccessor(test)
            return ret
        }
    }

    /* or right before the back edge */
    p := ends[0].Pred()
    if p != nil && p.Op == ir.OpSafepoint {
        p = p.Pred()
    }
    if p == nil || p.Op != ir.OpBegin || p.Pred() == nil || p.Pred().Op != ir.OpIf {
        return nil
    }
    if ret := analyzeLimitTest(loop, p.Pred()); ret != nil {
        ret.Body = lb
        ret.Inverted = true
        return ret
    }
    return nil
}

func (self *CountedInfo) bodySuccessor(test *ir.Node) *ir.Node {
    if test.Successor(0) == self.CountedExit {
        return test.Successor(1)
    } else {
        return test.Successor(0)
    }
}

func analyzeLimitTest(loop *Loop, test *ir.Node) *CountedInfo {
    lb := loop.begin
    cond := test.Input(0)
    if cond.Op != ir.OpLessThan && cond.Op != ir.OpBelow {
        return nil
    }

    /* the loop is left when the condition does not hold */
    exit := test.Successor(1)
    if !isOwnExit(lb, exit) {
        return nil
    }

    /* find the induction variable and the limit */
    var dir Direction
    var ivn, limit *ir.Node
    x, y := cond.Input(0), cond.Input(1)
    switch {
        case loop.IsOutsideLoop(y) : dir, ivn, limit = Up, x, y
        case loop.IsOutsideLoop(x) : dir, ivn, limit = Down, y, x
        default                    : return nil
    }

    /* the compared value is the phi with an optional offset */
    iv, ok := inductionVariable(lb, ivn)
    if !ok {
        return nil
    }

    /* the stride must move the counter towards the limit */
    if (dir == Up && iv.Stride <= 0) || (dir == Down && iv.Stride >= 0) {
        return nil
    }
    return &CountedInfo {
        LimitTest   : test,
        CountedExit : exit,
        Limit       : limit,
        IV          : iv,
        Direction   : dir,
        Helper      : IntegerHelper { Bits: limit.Bits, Signed: cond.Op == ir.OpLessThan },
    }
}

func constOperand(p *ir.Node) (*ir.Node, int64, bool) {
    if p.Op != ir.OpAdd && p.Op != ir.OpSub {
        return nil, 0, false
    }
    x, y := p.Input(0), p.Input(1)
    switch {
        case y.IsConstant() && p.Op == ir.OpSub : return x, -y.Value, true
        case y.IsConstant()                     : return x, y.Value, true
        case x.IsConstant() && p.Op == ir.OpAdd : return y, x.Value, true
        default                                 : return nil, 0, false
    }
}

func inductionVariable(lb *ir.Node, p *ir.Node) (InductionVariable, bool) {
    var off int64
    for !lb.IsPhiAtMerge(p) {
        if v, c, ok := constOperand(p); !ok {
            return InductionVariable{}, false
        } else {
            p, off = v, off + c
        }
    }

    /* the back edge value is the phi plus a constant */
    var stride int64
    phi := p
    for v := phi.PhiValueAt(1); v != phi; {
        if q, c, ok := constOperand(v); !ok {
            return InductionVariable{}, false
        } else {
            v, stride = q, stride + c
        }
    }

    /* build the variable */
    return InductionVariable {
        Phi    : phi,
        Offset : ir.Wrap(phi.Bits, off),
        Stride : ir.Wrap(phi.Bits, stride),
        Bits   : phi.Bits,
    }, stride != 0
}
