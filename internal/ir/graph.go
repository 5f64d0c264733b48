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

    `go.uber.org/zap`
)

type _ConstKey struct {
    bits  uint8
    value int64
}

// Graph is the arena owning every node of one compilation unit. Nodes are
// addressed by stable ids which are never reused.
type Graph struct {
    Start          *Node
    Debug          *zap.Logger
    FloatingGuards bool
    ValueProxies   bool
    FrameStates    bool
    nodes          []*Node
    consts         map[_ConstKey]*Node
}

func NewGraph() *Graph {
    g := &Graph {
        Debug  : zap.NewNop(),
        consts : make(map[_ConstKey]*Node),
    }

    /* every graph starts with a start node */
    g.Start = g.newNode(OpStart, 1)
    g.Start.addInput(nil, InputState)
    return g
}

func (self *Graph) newNode(op Op, nsux int) *Node {
    p := &Node {
        ID : len(self.nodes),
        Op : op,
        g  : self,
    }

    /* allocate the successor slots */
    if nsux != 0 {
        p.sux = make([]*Node, nsux)
    }

    /* add to the arena */
    self.nodes = append(self.nodes, p)
    return p
}

// NodeCount returns the number of ids ever allocated, including deleted nodes.
func (self *Graph) NodeCount() int {
    return len(self.nodes)
}

// NodeAt returns the node with the given id, or nil if it was deleted.
func (self *Graph) NodeAt(id int) *Node {
    if p := self.nodes[id]; p.deleted {
        return nil
    } else {
        return p
    }
}

// Nodes returns a snapshot of all live nodes in id order.
func (self *Graph) Nodes() []*Node {
    ret := make([]*Node, 0, len(self.nodes))
    for _, p := range self.nodes {
        if !p.deleted {
            ret = append(ret, p)
        }
    }
    return ret
}

// LiveCount returns the number of live nodes of the given kind.
func (self *Graph) LiveCount(op Op) int {
    n := 0
    for _, p := range self.nodes {
        if !p.deleted && p.Op == op {
            n++
        }
    }
    return n
}

func (self *Graph) Begin() *Node {
    return self.newNode(OpBegin, 1)
}

func (self *Graph) Merge() *Node {
    p := self.newNode(OpMerge, 1)
    p.addInput(nil, InputState)
    return p
}

func (self *Graph) LoopBegin() *Node {
    p := self.newNode(OpLoopBegin, 1)
    p.UnrollFactor = 1
    p.addInput(nil, InputState)
    return p
}

func (self *Graph) LoopExit(loopBegin *Node) *Node {
    self.checkOp(loopBegin, OpLoopBegin)
    p := self.newNode(OpLoopExit, 1)
    p.addInput(loopBegin, InputAssociation)
    p.addInput(nil, InputState)
    return p
}

func (self *Graph) Safepoint() *Node {
    return self.newNode(OpSafepoint, 1)
}

func (self *Graph) ValueAnchor() *Node {
    return self.newNode(OpValueAnchor, 1)
}

func (self *Graph) Load(base *Node, index *Node, guard *Node) *Node {
    p := self.newNode(OpLoad, 1)
    p.Bits = base.Bits
    p.addInput(base, InputValue)
    p.addInput(index, InputValue)
    p.addInput(guard, InputGuard)
    return p
}

func (self *Graph) Store(base *Node, index *Node, value *Node, guard *Node) *Node {
    p := self.newNode(OpStore, 1)
    p.addInput(base, InputValue)
    p.addInput(index, InputValue)
    p.addInput(value, InputValue)
    p.addInput(guard, InputGuard)
    p.addInput(nil, InputState)
    return p
}

func (self *Graph) End() *Node {
    return self.newNode(OpEnd, 0)
}

// LoopEnd creates a back edge of loopBegin, registered after all existing ones.
func (self *Graph) LoopEnd(loopBegin *Node) *Node {
    self.checkOp(loopBegin, OpLoopBegin)
    p := self.newNode(OpLoopEnd, 0)
    p.endIndex = loopBegin.nextEnd
    loopBegin.nextEnd++
    p.addInput(loopBegin, InputAssociation)
    return p
}

// If creates a two-way split, successor 0 is taken when cond holds.
func (self *Graph) If(cond *Node) *Node {
    p := self.newNode(OpIf, 2)
    p.addInput(cond, InputCondition)
    return p
}

func (self *Graph) Return(value *Node) *Node {
    p := self.newNode(OpReturn, 0)
    p.addInput(value, InputValue)
    return p
}

func (self *Graph) Param(name string, bits uint8) *Node {
    p := self.newNode(OpParam, 0)
    p.Name = name
    p.Bits = bits
    return p
}

// Const returns the unique constant node of the given width, the value is
// truncated and sign-extended to the width.
func (self *Graph) Const(bits uint8, value int64) *Node {
    key := _ConstKey { bits, Wrap(bits, value) }
    if p, ok := self.consts[key]; ok && !p.deleted {
        return p
    }

    /* create a new constant */
    p := self.newNode(OpConst, 0)
    p.Bits = bits
    p.Value = key.value
    self.consts[key] = p
    return p
}

func (self *Graph) binary(op Op, x *Node, y *Node) *Node {
    p := self.newNode(op, 0)
    p.Bits = x.Bits
    p.addInput(x, InputValue)
    p.addInput(y, InputValue)
    return p
}

func (self *Graph) Add(x *Node, y *Node) *Node      { return self.binary(OpAdd, x, y) }
func (self *Graph) Sub(x *Node, y *Node) *Node      { return self.binary(OpSub, x, y) }
func (self *Graph) Mul(x *Node, y *Node) *Node      { return self.binary(OpMul, x, y) }
func (self *Graph) LessThan(x *Node, y *Node) *Node { return self.compare(OpLessThan, x, y) }
func (self *Graph) Below(x *Node, y *Node) *Node    { return self.compare(OpBelow, x, y) }
func (self *Graph) Equal(x *Node, y *Node) *Node    { return self.compare(OpEqual, x, y) }

func (self *Graph) compare(op Op, x *Node, y *Node) *Node {
    p := self.binary(op, x, y)
    p.Bits = 1
    return p
}

func (self *Graph) Conditional(cond *Node, tv *Node, fv *Node) *Node {
    p := self.newNode(OpConditional, 0)
    p.Bits = tv.Bits
    p.addInput(cond, InputCondition)
    p.addInput(tv, InputValue)
    p.addInput(fv, InputValue)
    return p
}

func (self *Graph) Opaque(value *Node) *Node {
    p := self.newNode(OpOpaque, 0)
    p.Bits = value.Bits
    p.addInput(value, InputValue)
    return p
}

// Phi creates a phi at merge, values are indexed like the merge predecessors.
func (self *Graph) Phi(kind ValueKind, merge *Node, values ...*Node) *Node {
    if !merge.Op.IsMerge() {
        panic("phi on non-merge node: " + merge.String())
    }
    p := self.newNode(OpPhi, 0)
    p.Kind = kind
    p.addInput(merge, InputAssociation)

    /* add all the values */
    for _, v := range values {
        p.AddPhiInput(v)
    }
    return p
}

// Proxy wraps value as it leaves the loop through exit.
func (self *Graph) Proxy(kind ValueKind, value *Node, exit *Node) *Node {
    self.checkOp(exit, OpLoopExit)
    p := self.newNode(OpProxy, 0)
    p.Kind = kind
    if value != nil {
        p.Bits = value.Bits
    }
    p.addInput(value, kind.InputType())
    p.addInput(exit, InputAssociation)
    return p
}

// Guard creates a floating check which deoptimizes unless cond differs from negated.
func (self *Graph) Guard(cond *Node, anchor *Node, negated bool) *Node {
    if anchor != nil && !anchor.Op.IsAnchoring() {
        panic("guard anchored on non-anchoring node: " + anchor.String())
    }
    p := self.newNode(OpGuard, 0)
    p.Negated = negated
    p.addInput(cond, InputCondition)
    p.addInput(anchor, InputAnchor)
    return p
}

// FrameState snapshots values by position, mappings are the virtual states
// of the escaped objects visible at this point.
func (self *Graph) FrameState(outer *Node, values []*Node, mappings []*Node) *Node {
    p := self.newNode(OpFrameState, 0)
    p.nvals = len(values)
    p.addInput(outer, InputState)

    /* add the values and mappings */
    for _, v := range values {
        p.addInput(v, InputValue)
    }
    for _, m := range mappings {
        p.addInput(m, InputExtension)
    }
    return p
}

func (self *Graph) VirtualObject(name string) *Node {
    p := self.newNode(OpVirtualObject, 0)
    p.Name = name
    return p
}

func (self *Graph) VirtualState(object *Node, values ...*Node) *Node {
    self.checkOp(object, OpVirtualObject)
    p := self.newNode(OpVirtualState, 0)
    p.addInput(object, InputAssociation)
    for _, v := range values {
        p.addInput(v, InputValue)
    }
    return p
}

func (self *Graph) checkOp(p *Node, op Op) {
    if p.g != self {
        panic("node from another graph: " + p.String())
    } else if p.Op != op {
        panic(fmt.Sprintf("%s is not a %s", p, op))
    }
}

// Wrap truncates v to the given width and sign-extends it back.
func Wrap(bits uint8, v int64) int64 {
    switch bits {
        case 0, 64 : return v
        case 1     : return v & 1
        case 32    : return int64(int32(v))
        case 16    : return int64(int16(v))
        case 8     : return int64(int8(v))
        default    : panic(fmt.Sprintf("invalid integer width: %d", bits))
    }
}

// Unsigned returns v reinterpreted as an unsigned integer of the given width.
func Unsigned(bits uint8, v int64) uint64 {
    if bits == 0 || bits == 64 {
        return uint64(v)
    } else {
        return uint64(v) & (1 << bits - 1)
    }
}
