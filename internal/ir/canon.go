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

func isConst(p *Node, v int64) bool {
    return p.Op == OpConst && p.Value == v
}

// AddValues creates x + y, folding constants.
func (self *Graph) AddValues(x *Node, y *Node) *Node {
    if x.Op == OpConst && y.Op == OpConst {
        return self.Const(x.Bits, x.Value + y.Value)
    } else if isConst(y, 0) {
        return x
    } else if isConst(x, 0) {
        return y
    } else {
        return self.Add(x, y)
    }
}

// SubValues creates x - y, folding constants.
func (self *Graph) SubValues(x *Node, y *Node) *Node {
    if x.Op == OpConst && y.Op == OpConst {
        return self.Const(x.Bits, x.Value - y.Value)
    } else if isConst(y, 0) {
        return x
    } else if x == y {
        return self.Const(x.Bits, 0)
    } else {
        return self.Sub(x, y)
    }
}

// BelowValues creates the unsigned comparison x < y, folding constants.
func (self *Graph) BelowValues(x *Node, y *Node) *Node {
    if x.Op == OpConst && y.Op == OpConst {
        if Unsigned(x.Bits, x.Value) < Unsigned(y.Bits, y.Value) {
            return self.Const(1, 1)
        } else {
            return self.Const(1, 0)
        }
    } else if x == y || isConst(y, 0) {
        return self.Const(1, 0)
    } else {
        return self.Below(x, y)
    }
}

// ConditionalValue creates cond ? tv : fv, folding constant conditions.
func (self *Graph) ConditionalValue(cond *Node, tv *Node, fv *Node) *Node {
    if tv == fv {
        return tv
    } else if cond.Op != OpConst {
        return self.Conditional(cond, tv, fv)
    } else if cond.Value != 0 {
        return tv
    } else {
        return fv
    }
}
