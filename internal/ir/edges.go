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

func (self *Node) checkAlive() {
    if self.deleted {
        panic("operation on deleted node: " + self.String())
    }
}

func (self *Node) addUsage(u *Node) {
    self.out = append(self.out, u)
}

func (self *Node) removeUsage(u *Node) {
    for i, v := range self.out {
        if v == u {
            copy(self.out[i:], self.out[i + 1:])
            self.out[len(self.out) - 1] = nil
            self.out = self.out[:len(self.out) - 1]
            return
        }
    }
    panic(fmt.Sprintf("dangling edge: %s is not a usage of %s", u, self))
}

func (self *Node) addInput(v *Node, t InputType) {
    self.in = append(self.in, v)
    self.it = append(self.it, t)

    /* nil inputs have no reciprocal edge */
    if v != nil {
        v.checkAlive()
        v.addUsage(self)
    }
}

// SetInput rewires the i-th input, updating the usage lists of both the old
// and the new target.
func (self *Node) SetInput(i int, v *Node) {
    self.checkAlive()
    old := self.in[i]
    if old == v {
        return
    }

    /* unlink the old target */
    if old != nil {
        old.removeUsage(self)
    }

    /* link the new target */
    if self.in[i] = v; v != nil {
        v.checkAlive()
        v.addUsage(self)
    }
}

// ReplaceFirstInput rewires the first input edge referring to old, and
// reports whether such an edge exists.
func (self *Node) ReplaceFirstInput(old *Node, v *Node) bool {
    for i, p := range self.in {
        if p == old {
            self.SetInput(i, v)
            return true
        }
    }
    return false
}

// ReplaceAllInputs rewires every input edge referring to old.
func (self *Node) ReplaceAllInputs(old *Node, v *Node) {
    for i, p := range self.in {
        if p == old {
            self.SetInput(i, v)
        }
    }
}

func matchesType(t InputType, types []InputType) bool {
    if len(types) == 0 {
        return true
    }
    for _, v := range types {
        if v == t {
            return true
        }
    }
    return false
}

// ReplaceAtUsages redirects every usage edge of this node to v. When types is
// not empty, only edges of those input types are redirected.
func (self *Node) ReplaceAtUsages(v *Node, types ...InputType) {
    for _, u := range self.UniqueUsages() {
        for i, p := range u.in {
            if p == self && matchesType(u.it[i], types) {
                u.SetInput(i, v)
            }
        }
    }
}

// ReplaceAtMatchingUsages redirects the usage edges of every usage accepted by
// pred. The predicate sees the graph as it is when the usage is visited.
func (self *Node) ReplaceAtMatchingUsages(v *Node, pred func(u *Node) bool) {
    for _, u := range self.UniqueUsages() {
        if pred(u) {
            u.ReplaceAllInputs(self, v)
        }
    }
}

// ForEachUsage calls fn for every distinct usage matching filter, the filter
// is evaluated again right before each call so that edits done by fn are
// taken into account.
func (self *Node) ForEachUsage(filter func(u *Node) bool, fn func(u *Node)) {
    for _, u := range self.UniqueUsages() {
        if !u.deleted && u.uses(self) && (filter == nil || filter(u)) {
            fn(u)
        }
    }
}

// UsagesOf returns the distinct usages referring to this node through an
// edge of one of the given types.
func (self *Node) UsagesOf(types ...InputType) []*Node {
    var ret []*Node
    for _, u := range self.UniqueUsages() {
        for i, p := range u.in {
            if p == self && matchesType(u.it[i], types) {
                ret = append(ret, u)
                break
            }
        }
    }
    return ret
}

// Anchored returns the usages anchored or guarded by this node.
func (self *Node) Anchored() []*Node {
    return self.UsagesOf(InputAnchor, InputGuard)
}

func (self *Node) uses(v *Node) bool {
    for _, p := range self.in {
        if p == v {
            return true
        }
    }
    return false
}

// ClearInputs removes every input edge, the input list becomes empty.
func (self *Node) ClearInputs() {
    for _, p := range self.in {
        if p != nil {
            p.removeUsage(self)
        }
    }
    self.in = self.in[:0]
    self.it = self.it[:0]
}

func (self *Node) setSuccessor(i int, v *Node) {
    old := self.sux[i]
    if old == v {
        return
    }

    /* unlink the old successor */
    if old != nil {
        old.pred = nil
    }

    /* link the new one, a node has at most one predecessor */
    if self.sux[i] = v; v != nil {
        if v.checkAlive(); v.pred != nil {
            panic(fmt.Sprintf("%s already has predecessor %s", v, v.pred))
        }
        v.pred = self
    }
}

// SetNext sets the control successor of a fixed-with-next node.
func (self *Node) SetNext(v *Node) {
    if !self.Op.HasNext() {
        panic("set next of non-sequential node: " + self.String())
    }
    self.setSuccessor(0, v)
}

// SetSuccessor sets the i-th control successor.
func (self *Node) SetSuccessor(i int, v *Node) {
    self.setSuccessor(i, v)
}

// ReplaceFirstSuccessor replaces the first successor edge pointing to old.
func (self *Node) ReplaceFirstSuccessor(old *Node, v *Node) {
    for i, p := range self.sux {
        if p == old {
            self.setSuccessor(i, v)
            return
        }
    }
    panic(fmt.Sprintf("%s is not a successor of %s", old, self))
}

// ReplaceAtPredecessor makes the predecessor of this node point to v instead.
func (self *Node) ReplaceAtPredecessor(v *Node) {
    if self.pred != nil {
        self.pred.ReplaceFirstSuccessor(self, v)
    }
}

// ClearSuccessors unlinks every control successor.
func (self *Node) ClearSuccessors() {
    for i := range self.sux {
        self.setSuccessor(i, nil)
    }
}

// SafeDelete removes a node which is no longer referenced. Deleting a node
// which still has usages or a predecessor is a programming error.
func (self *Node) SafeDelete() {
    self.checkAlive()
    if len(self.out) != 0 {
        panic(fmt.Sprintf("cannot delete %s: still used by %v", self, self.UniqueUsages()))
    } else if self.pred != nil {
        panic(fmt.Sprintf("cannot delete %s: still reachable from %s", self, self.pred))
    }
    self.ClearInputs()
    self.ClearSuccessors()
    self.deleted = true
}

// StateAfter returns the frame state of a state split, or nil.
func (self *Node) StateAfter() *Node {
    if i := self.stateIndex(); i < 0 {
        return nil
    } else {
        return self.in[i]
    }
}

func (self *Node) SetStateAfter(fs *Node) {
    if i := self.stateIndex(); i < 0 {
        panic("not a state split: " + self.String())
    } else {
        self.SetInput(i, fs)
    }
}

func (self *Node) stateIndex() int {
    switch self.Op {
        case OpStart, OpMerge, OpLoopBegin : return 0
        case OpLoopExit                    : return 1
        case OpStore                       : return 4
        default                            : return -1
    }
}
