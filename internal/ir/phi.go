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
    `sort`
)

func (self *Node) usagesWith(op Op, idx int) []*Node {
    var ret []*Node
    for _, u := range self.UniqueUsages() {
        if u.Op == op && len(u.in) > idx && u.in[idx] == self {
            ret = append(ret, u)
        }
    }
    return ret
}

func (self *Node) checkMerge() {
    if !self.Op.IsMerge() {
        panic("not a merge: " + self.String())
    }
}

// Phis returns the phis defined at this merge.
func (self *Node) Phis() []*Node {
    self.checkMerge()
    return self.usagesWith(OpPhi, 0)
}

// IsPhiAtMerge reports whether v is a phi defined at this merge.
func (self *Node) IsPhiAtMerge(v *Node) bool {
    return v != nil && v.Op == OpPhi && len(v.in) != 0 && v.in[0] == self
}

// ForwardEnds returns the forward predecessors of a merge. A loop begin has
// exactly one forward end.
func (self *Node) ForwardEnds() []*Node {
    self.checkMerge()
    return append([]*Node(nil), self.in[1:]...)
}

// ForwardEnd returns the loop entry edge of a loop begin.
func (self *Node) ForwardEnd() *Node {
    self.checkLoopBegin()
    return self.in[1]
}

// AddForwardEnd registers end as the next forward predecessor of this merge.
// The caller is responsible for adding a value to every phi.
func (self *Node) AddForwardEnd(end *Node) {
    self.checkMerge()
    if end.Op != OpEnd {
        panic("forward end is not an end: " + end.String())
    }

    /* loop begins have a single forward end */
    if self.Op == OpLoopBegin {
        if len(self.in) > 1 {
            panic("loop begin already has a forward end: " + self.String())
        }
    }
    self.addInput(end, InputAssociation)
}

// Merge returns the merge an end flows into, or nil.
func (self *Node) Merge() *Node {
    switch self.Op {
        case OpLoopEnd : return self.in[0]
        case OpEnd     : break
        default        : panic("not an end: " + self.String())
    }
    for _, u := range self.out {
        if u.Op.IsMerge() {
            return u
        }
    }
    return nil
}

func (self *Node) checkLoopBegin() {
    if self.Op != OpLoopBegin {
        panic("not a loop begin: " + self.String())
    }
}

// LoopBeginOf returns the loop begin owning a loop end or a loop exit.
func (self *Node) LoopBeginOf() *Node {
    if self.Op != OpLoopEnd && self.Op != OpLoopExit {
        panic("not a loop end or exit: " + self.String())
    }
    return self.in[0]
}

// LoopEnds returns the back edges of a loop begin in registration order.
func (self *Node) LoopEnds() []*Node {
    self.checkLoopBegin()
    ret := self.usagesWith(OpLoopEnd, 0)
    sort.Slice(ret, func(i int, j int) bool { return ret[i].endIndex < ret[j].endIndex })
    return ret
}

// SingleLoopEnd returns the only back edge of a loop begin.
func (self *Node) SingleLoopEnd() *Node {
    if ends := self.LoopEnds(); len(ends) != 1 {
        panic(fmt.Sprintf("%s has %d loop ends", self, len(ends)))
    } else {
        return ends[0]
    }
}

// LoopExits returns the exits of a loop begin in creation order.
func (self *Node) LoopExits() []*Node {
    self.checkLoopBegin()
    ret := self.usagesWith(OpLoopExit, 0)
    sort.Slice(ret, func(i int, j int) bool { return ret[i].ID < ret[j].ID })
    return ret
}

// Proxies returns the proxies attached to a loop exit.
func (self *Node) Proxies() []*Node {
    if self.Op != OpLoopExit {
        panic("not a loop exit: " + self.String())
    }
    return self.usagesWith(OpProxy, 1)
}

// PredecessorIndex returns the phi value index corresponding to end.
func (self *Node) PredecessorIndex(end *Node) int {
    self.checkMerge()
    if end.Op == OpLoopEnd {
        if end.in[0] != self {
            panic(fmt.Sprintf("%s does not belong to %s", end, self))
        }
        return end.endIndex + 1
    }
    for i, p := range self.in[1:] {
        if p == end {
            return i
        }
    }
    panic(fmt.Sprintf("%s is not a predecessor of %s", end, self))
}

// PhiMerge returns the merge a phi is defined at.
func (self *Node) PhiMerge() *Node {
    self.checkPhi()
    return self.in[0]
}

func (self *Node) checkPhi() {
    if self.Op != OpPhi {
        panic("not a phi: " + self.String())
    }
}

func (self *Node) PhiValueCount() int {
    self.checkPhi()
    return len(self.in) - 1
}

func (self *Node) PhiValueAt(i int) *Node {
    self.checkPhi()
    return self.in[i + 1]
}

// PhiValueAtEnd returns the value selected when control arrives through end.
func (self *Node) PhiValueAtEnd(end *Node) *Node {
    return self.PhiValueAt(self.PhiMerge().PredecessorIndex(end))
}

func (self *Node) SetPhiValueAt(i int, v *Node) {
    self.checkPhi()
    self.SetInput(i + 1, v)
}

func (self *Node) AddPhiInput(v *Node) {
    self.checkPhi()
    if v != nil && self.Bits == 0 {
        self.Bits = v.Bits
    }
    self.addInput(v, self.Kind.InputType())
}

func (self *Node) removePhiValue(i int) {
    self.SetInput(i + 1, nil)
    copy(self.in[i + 1:], self.in[i + 2:])
    copy(self.it[i + 1:], self.it[i + 2:])
    self.in = self.in[:len(self.in) - 1]
    self.it = self.it[:len(self.it) - 1]
}

// DuplicatePhiOn creates an empty phi of the same kind at merge.
func (self *Node) DuplicatePhiOn(merge *Node) *Node {
    self.checkPhi()
    p := self.g.Phi(self.Kind, merge)
    p.Bits = self.Bits
    return p
}

// RemoveEnd unregisters a back edge or a forward end together with its slot
// in every phi of this merge. The end itself is left to the caller.
func (self *Node) RemoveEnd(end *Node) {
    idx := self.PredecessorIndex(end)
    for _, phi := range self.Phis() {
        phi.removePhiValue(idx)
    }

    /* forward ends are inputs of the merge */
    if end.Op == OpEnd {
        self.SetInput(idx + 1, nil)
        copy(self.in[idx + 1:], self.in[idx + 2:])
        copy(self.it[idx + 1:], self.it[idx + 2:])
        self.in = self.in[:len(self.in) - 1]
        self.it = self.it[:len(self.it) - 1]
        return
    }

    /* shift the registration order of the later back edges */
    for _, e := range self.LoopEnds() {
        if e.endIndex > end.endIndex {
            e.endIndex--
        }
    }
    self.nextEnd--
    end.SetInput(0, nil)
}

// ProxyValue returns the value wrapped by a proxy.
func (self *Node) ProxyValue() *Node {
    if self.Op != OpProxy {
        panic("not a proxy: " + self.String())
    }
    return self.in[0]
}

func (self *Node) ProxyExit() *Node {
    if self.Op != OpProxy {
        panic("not a proxy: " + self.String())
    }
    return self.in[1]
}

// UniqueProxy returns a proxy of value at exit, reusing an equivalent one.
func (self *Graph) UniqueProxy(kind ValueKind, value *Node, exit *Node) *Node {
    for _, p := range exit.Proxies() {
        if p.Kind == kind && p.in[0] == value {
            return p
        }
    }
    return self.Proxy(kind, value, exit)
}

// DuplicateProxyOn creates a proxy of the same kind at exit wrapping value.
func (self *Node) DuplicateProxyOn(exit *Node, value *Node) *Node {
    return self.g.UniqueProxy(self.Kind, value, exit)
}

// CreatePhi creates an empty phi at merge of the same kind as this proxy.
func (self *Node) CreatePhi(merge *Node) *Node {
    p := self.g.Phi(self.Kind, merge)
    p.Bits = self.Bits
    return p
}

func (self *Node) GuardCondition() *Node {
    self.checkGuard()
    return self.in[0]
}

func (self *Node) GuardAnchor() *Node {
    self.checkGuard()
    return self.in[1]
}

func (self *Node) SetGuardAnchor(anchor *Node) {
    if self.checkGuard(); !anchor.Op.IsAnchoring() {
        panic("guard anchored on non-anchoring node: " + anchor.String())
    }
    self.SetInput(1, anchor)
}

func (self *Node) checkGuard() {
    if self.Op != OpGuard {
        panic("not a guard: " + self.String())
    }
}
