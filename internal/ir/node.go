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
)

type Op uint8

const (
    OpStart Op = iota
    OpBegin
    OpMerge
    OpLoopBegin
    OpLoopExit
    OpSafepoint
    OpValueAnchor
    OpLoad
    OpStore
    OpEnd
    OpLoopEnd
    OpIf
    OpReturn
    OpParam
    OpConst
    OpAdd
    OpSub
    OpMul
    OpLessThan
    OpBelow
    OpEqual
    OpConditional
    OpOpaque
    OpPhi
    OpProxy
    OpGuard
    OpFrameState
    OpVirtualObject
    OpVirtualState
    _OpCount
)

var _OpNames = [_OpCount]string {
    OpStart         : "Start",
    OpBegin         : "Begin",
    OpMerge         : "Merge",
    OpLoopBegin     : "LoopBegin",
    OpLoopExit      : "LoopExit",
    OpSafepoint     : "Safepoint",
    OpValueAnchor   : "ValueAnchor",
    OpLoad          : "Load",
    OpStore         : "Store",
    OpEnd           : "End",
    OpLoopEnd       : "LoopEnd",
    OpIf            : "If",
    OpReturn        : "Return",
    OpParam         : "Param",
    OpConst         : "Const",
    OpAdd           : "Add",
    OpSub           : "Sub",
    OpMul           : "Mul",
    OpLessThan      : "LessThan",
    OpBelow         : "Below",
    OpEqual         : "Equal",
    OpConditional   : "Conditional",
    OpOpaque        : "Opaque",
    OpPhi           : "Phi",
    OpProxy         : "Proxy",
    OpGuard         : "Guard",
    OpFrameState    : "FrameState",
    OpVirtualObject : "VirtualObject",
    OpVirtualState  : "VirtualState",
}

func (self Op) String() string {
    if self < _OpCount {
        return _OpNames[self]
    } else {
        return fmt.Sprintf("Op(%d)", self)
    }
}

// IsFixed reports whether nodes of this kind take part in the control flow.
func (self Op) IsFixed() bool {
    return self <= OpReturn
}

// HasNext reports whether nodes of this kind have exactly one control successor.
func (self Op) HasNext() bool {
    return self <= OpStore
}

// IsBegin reports whether nodes of this kind start a straight-line control chain.
func (self Op) IsBegin() bool {
    switch self {
        case OpStart, OpBegin, OpMerge, OpLoopBegin, OpLoopExit : return true
        default                                                 : return false
    }
}

func (self Op) IsMerge() bool {
    return self == OpMerge || self == OpLoopBegin
}

func (self Op) IsEnd() bool {
    return self == OpEnd || self == OpLoopEnd
}

func (self Op) IsCompare() bool {
    return self == OpLessThan || self == OpBelow || self == OpEqual
}

// IsStateSplit reports whether nodes of this kind may carry a frame state.
func (self Op) IsStateSplit() bool {
    switch self {
        case OpStart, OpMerge, OpLoopBegin, OpLoopExit, OpStore : return true
        default                                                 : return false
    }
}

// IsAnchoring reports whether nodes of this kind can serve as a guard anchor.
func (self Op) IsAnchoring() bool {
    return self.IsBegin() || self == OpValueAnchor
}

type InputType uint8

const (
    InputValue InputType = iota
    InputCondition
    InputAnchor
    InputGuard
    InputState
    InputAssociation
    InputMemory
    InputExtension
)

var _InputTypeNames = [...]string {
    InputValue       : "Value",
    InputCondition   : "Condition",
    InputAnchor      : "Anchor",
    InputGuard       : "Guard",
    InputState       : "State",
    InputAssociation : "Association",
    InputMemory      : "Memory",
    InputExtension   : "Extension",
}

func (self InputType) String() string {
    return _InputTypeNames[self]
}

// ValueKind is the family of a Phi or a Proxy.
type ValueKind uint8

const (
    KindValue ValueKind = iota
    KindMemory
    KindGuard
)

func (self ValueKind) String() string {
    switch self {
        case KindValue  : return "value"
        case KindMemory : return "memory"
        case KindGuard  : return "guard"
        default         : panic(fmt.Sprintf("invalid value kind: %d", self))
    }
}

// InputType returns the edge type used by a Phi or Proxy of this kind.
func (self ValueKind) InputType() InputType {
    switch self {
        case KindValue  : return InputValue
        case KindMemory : return InputMemory
        case KindGuard  : return InputGuard
        default         : panic(fmt.Sprintf("invalid value kind: %d", self))
    }
}

// Node is a vertex of the graph. Every input edge has exactly one matching
// entry in the usage list of its target, every successor edge has a matching
// predecessor reference.
type Node struct {
    ID           int
    Op           Op
    Bits         uint8
    Kind         ValueKind
    Negated      bool
    Value        int64
    Name         string
    UnrollFactor int
    Peelings     int
    g            *Graph
    in           []*Node
    it           []InputType
    out          []*Node
    sux          []*Node
    pred         *Node
    endIndex     int
    nextEnd      int
    nvals        int
    deleted      bool
}

func (self *Node) Graph() *Graph {
    return self.g
}

func (self *Node) IsDeleted() bool {
    return self.deleted
}

func (self *Node) Pred() *Node {
    return self.pred
}

func (self *Node) InputCount() int {
    return len(self.in)
}

func (self *Node) Input(i int) *Node {
    return self.in[i]
}

func (self *Node) InputTypeAt(i int) InputType {
    return self.it[i]
}

// Inputs returns a snapshot of the input list.
func (self *Node) Inputs() []*Node {
    return append([]*Node(nil), self.in...)
}

func (self *Node) SuccessorCount() int {
    return len(self.sux)
}

func (self *Node) Successor(i int) *Node {
    return self.sux[i]
}

// Successors returns a snapshot of the successor list.
func (self *Node) Successors() []*Node {
    return append([]*Node(nil), self.sux...)
}

// Next returns the control successor of a fixed-with-next node.
func (self *Node) Next() *Node {
    if !self.Op.HasNext() {
        panic("next of non-sequential node: " + self.String())
    }
    return self.sux[0]
}

// Usages returns a snapshot of the usage list, one entry per input edge.
func (self *Node) Usages() []*Node {
    return append([]*Node(nil), self.out...)
}

// UniqueUsages returns a snapshot of the distinct usages in first-use order.
func (self *Node) UniqueUsages() []*Node {
    var ret []*Node
    seen := make(map[*Node]struct{}, len(self.out))

    /* remove duplicated edges */
    for _, u := range self.out {
        if _, ok := seen[u]; !ok {
            seen[u] = struct{}{}
            ret = append(ret, u)
        }
    }
    return ret
}

func (self *Node) UsageCount() int {
    return len(self.out)
}

func (self *Node) HasNoUsages() bool {
    return len(self.out) == 0
}

// HasExactlyOneUsage reports whether exactly one input edge refers to this node.
func (self *Node) HasExactlyOneUsage() bool {
    return len(self.out) == 1
}

func (self *Node) IsConstant() bool {
    return self.Op == OpConst
}

func (self *Node) String() string {
    if self == nil {
        return "<nil>"
    }
    switch self.Op {
        case OpConst : return fmt.Sprintf("%%%d = Const(%d)", self.ID, self.Value)
        case OpParam : return fmt.Sprintf("%%%d = Param(%s)", self.ID, self.Name)
        case OpPhi   : return fmt.Sprintf("%%%d = Phi[%s]", self.ID, self.Kind)
        case OpProxy : return fmt.Sprintf("%%%d = Proxy[%s]", self.ID, self.Kind)
        default      : return fmt.Sprintf("%%%d = %s", self.ID, self.Op)
    }
}
