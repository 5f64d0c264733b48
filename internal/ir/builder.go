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

// Builder appends fixed nodes to the control chain ending at its cursor.
type Builder struct {
    G   *Graph
    cur *Node
}

func NewBuilder(g *Graph) *Builder {
    return &Builder {
        G   : g,
        cur : g.Start,
    }
}

// Current returns the cursor, nil after a terminating node was appended.
func (self *Builder) Current() *Node {
    return self.cur
}

// At moves the cursor to p, which must not have a successor yet.
func (self *Builder) At(p *Node) *Builder {
    self.cur = p
    return self
}

// Append links p after the cursor. The cursor moves to p unless p ends the
// control chain.
func (self *Builder) Append(p *Node) *Node {
    if self.cur == nil {
        panic("appending to a terminated control chain: " + p.String())
    }
    self.cur.SetNext(p)
    if p.Op.HasNext() {
        self.cur = p
    } else {
        self.cur = nil
    }
    return p
}

// Jump terminates the chain with a forward end into merge. The caller adds
// the phi values.
func (self *Builder) Jump(merge *Node) *Node {
    end := self.Append(self.G.End())
    merge.AddForwardEnd(end)
    return end
}

// EnterLoop terminates the chain with the forward end of a new loop and
// moves the cursor to the loop begin.
func (self *Builder) EnterLoop() *Node {
    lb := self.G.LoopBegin()
    self.Jump(lb)
    self.cur = lb
    return lb
}

// LoopBack terminates the chain with a new back edge of lb.
func (self *Builder) LoopBack(lb *Node) *Node {
    return self.Append(self.G.LoopEnd(lb))
}

// Branch terminates the chain with an If whose branches start with the given
// begin nodes. A nil branch gets a fresh Begin.
func (self *Builder) Branch(cond *Node, tb *Node, fb *Node) (*Node, *Node, *Node) {
    if tb == nil {
        tb = self.G.Begin()
    }
    if fb == nil {
        fb = self.G.Begin()
    }

    /* link the split */
    sw := self.Append(self.G.If(cond))
    sw.SetSuccessor(0, tb)
    sw.SetSuccessor(1, fb)
    return sw, tb, fb
}
