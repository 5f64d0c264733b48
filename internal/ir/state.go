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

func (self *Node) checkFrameState() {
    if self.Op != OpFrameState {
        panic("not a frame state: " + self.String())
    }
}

// Outer returns the state of the enclosing frame, or nil.
func (self *Node) Outer() *Node {
    self.checkFrameState()
    return self.in[0]
}

func (self *Node) StateValueCount() int {
    self.checkFrameState()
    return self.nvals
}

func (self *Node) StateValueAt(i int) *Node {
    self.checkFrameState()
    return self.in[i + 1]
}

// VirtualMappings returns the virtual object states of a frame state.
func (self *Node) VirtualMappings() []*Node {
    self.checkFrameState()
    return append([]*Node(nil), self.in[self.nvals + 1:]...)
}

// DuplicateWithVirtualState copies a frame state together with its outer
// states and its virtual object mappings. Values are shared.
func (self *Node) DuplicateWithVirtualState() *Node {
    var outer *Node
    self.checkFrameState()

    /* copy the enclosing frames first */
    if o := self.in[0]; o != nil {
        outer = o.DuplicateWithVirtualState()
    }

    /* copy the virtual object states */
    maps := self.VirtualMappings()
    for i, m := range maps {
        if m != nil {
            maps[i] = self.g.VirtualState(m.in[0], m.in[1:]...)
        }
    }
    return self.g.FrameState(outer, self.in[1:self.nvals + 1], maps)
}

// ApplyToVirtual calls fn for this state, its virtual mappings and all the
// outer states.
func (self *Node) ApplyToVirtual(fn func(v *Node)) {
    for p := self; p != nil; p = p.in[0] {
        fn(p)
        for _, m := range p.in[p.nvals + 1:] {
            if m != nil {
                fn(m)
            }
        }
    }
}

// ApplyToNonVirtual calls fn for every non-nil value position of this state,
// of its virtual mappings and of the outer states. The position is the i-th
// input of from.
func (self *Node) ApplyToNonVirtual(fn func(from *Node, i int)) {
    for p := self; p != nil; p = p.in[0] {
        for i := 1; i <= p.nvals; i++ {
            if p.in[i] != nil {
                fn(p, i)
            }
        }
        for _, m := range p.in[p.nvals + 1:] {
            if m == nil {
                continue
            }
            for i := 1; i < len(m.in); i++ {
                if m.in[i] != nil {
                    fn(m, i)
                }
            }
        }
    }
}

// IsPartOfState reports whether v is this state, one of its virtual mappings
// or part of an outer state.
func (self *Node) IsPartOfState(v *Node) bool {
    found := false
    self.ApplyToVirtual(func(p *Node) { found = found || p == v })
    return found
}
