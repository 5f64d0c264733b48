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
    `sort`

    `github.com/cloudwego/loopfrag/internal/ir`
)

// Loop is the analysis view of one natural loop, identified by its
// LoopBegin. The node sets are computed on demand and cached until the loop
// is invalidated.
type Loop struct {
    g       *ir.Graph
    begin   *ir.Node
    parent  *Loop
    depth   int
    whole   *Whole
    inside  *Inside
    counted *CountedInfo
    done    bool
}

func newLoop(lb *ir.Node) *Loop {
    return &Loop {
        g     : lb.Graph(),
        begin : lb,
    }
}

// Detect returns every loop of the graph, outer loops first.
func Detect(g *ir.Graph) []*Loop {
    var ret []*Loop
    for _, p := range g.Nodes() {
        if p.Op == ir.OpLoopBegin {
            ret = append(ret, newLoop(p))
        }
    }

    /* find the innermost enclosing loop of every loop */
    for _, lp := range ret {
        for _, outer := range ret {
            if outer == lp || !outer.Whole().Contains(lp.begin) {
                continue
            }
            if lp.parent == nil || lp.parent.Whole().Contains(outer.begin) {
                lp.parent = outer
            }
        }
    }

    /* compute the nesting depths */
    for _, lp := range ret {
        for p := lp.parent; p != nil; p = p.parent {
            lp.depth++
        }
    }

    /* outer loops first */
    sort.SliceStable(ret, func(i int, j int) bool {
        return ret[i].depth < ret[j].depth
    })
    return ret
}

// Of returns the loop view of a single loop begin.
func Of(lb *ir.Node) *Loop {
    if lb.Op != ir.OpLoopBegin {
        panic("not a loop begin: " + lb.String())
    }
    return newLoop(lb)
}

func (self *Loop) Graph() *ir.Graph {
    return self.g
}

func (self *Loop) LoopBegin() *ir.Node {
    return self.begin
}

func (self *Loop) Parent() *Loop {
    return self.parent
}

func (self *Loop) Depth() int {
    return self.depth
}

// EntryPoint returns the forward end entering the loop.
func (self *Loop) EntryPoint() *ir.Node {
    return self.begin.ForwardEnd()
}

// Whole returns the fragment made of every node belonging to the loop.
func (self *Loop) Whole() *Whole {
    if self.whole == nil {
        self.whole = newWhole(self)
    }
    return self.whole
}

// Inside returns the fragment of the loop body that is duplicated by the
// transformations.
func (self *Loop) Inside() *Inside {
    if self.inside == nil {
        self.inside = newInside(self)
    }
    return self.inside
}

// Counted returns the counted-loop description, or nil when the loop is not
// counted.
func (self *Loop) Counted() *CountedInfo {
    if !self.done {
        self.done = true
        self.counted = analyzeCounted(self)
    }
    return self.counted
}

// IsOutsideLoop reports whether p does not belong to the loop.
func (self *Loop) IsOutsideLoop(p *ir.Node) bool {
    return !self.Whole().Contains(p)
}

// IsInnermost reports whether the loop contains no other loop.
func (self *Loop) IsInnermost() bool {
    for _, p := range self.Whole().Nodes().Filter(ir.OpLoopBegin) {
        if p != self.begin {
            return false
        }
    }
    return true
}

// Invalidate drops every cached analysis result. It must be called after
// the graph was modified.
func (self *Loop) Invalidate() {
    self.whole = nil
    self.inside = nil
    self.counted = nil
    self.done = false
}
