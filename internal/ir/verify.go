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
    `strings`

    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

// VerifyError lists every structural violation found in a graph.
type VerifyError struct {
    Problems []string
}

func (self *VerifyError) Error() string {
    return fmt.Sprintf("graph verification failed with %d problem(s):\n\t%s", len(self.Problems), strings.Join(self.Problems, "\n\t"))
}

type _Verifier struct {
    g    *Graph
    errs []string
}

func (self *_Verifier) fail(format string, args ...interface{}) {
    self.errs = append(self.errs, fmt.Sprintf(format, args...))
}

func count(list []*Node, p *Node) int {
    n := 0
    for _, v := range list {
        if v == p {
            n++
        }
    }
    return n
}

// Verify checks the structural invariants of g: reciprocal input and usage
// edges, reciprocal successor and predecessor edges, phi arities, loop
// bookkeeping, guard anchoring and the absence of cycles other than through
// back edges and phis.
func Verify(g *Graph) error {
    v := &_Verifier { g: g }
    for _, p := range g.Nodes() {
        v.edges(p)
        v.control(p)
        v.kind(p)
    }

    /* global properties only make sense on a linked graph */
    if len(v.errs) == 0 {
        v.acyclic()
        v.anchors()
    }

    /* check for errors */
    if len(v.errs) == 0 {
        return nil
    } else {
        return &VerifyError { Problems: v.errs }
    }
}

func (self *_Verifier) edges(p *Node) {
    for _, in := range p.in {
        if in == nil {
            continue
        } else if in.deleted {
            self.fail("%s uses deleted node %s", p, in)
        } else if count(in.out, p) != count(p.in, in) {
            self.fail("%s uses %s %d time(s) but is recorded %d time(s) as its usage", p, in, count(p.in, in), count(in.out, p))
        }
    }
    for _, u := range p.out {
        if u.deleted {
            self.fail("%s is used by deleted node %s", p, u)
        } else if !u.uses(p) {
            self.fail("%s records %s as a usage without an input edge", p, u)
        }
    }
}

func (self *_Verifier) control(p *Node) {
    for _, s := range p.sux {
        if s == nil {
            continue
        } else if s.deleted {
            self.fail("%s flows into deleted node %s", p, s)
        } else if s.pred != p {
            self.fail("%s flows into %s whose predecessor is %s", p, s, s.pred)
        }
    }

    /* predecessor back references */
    if p.pred != nil {
        if p.pred.deleted || count(p.pred.sux, p) != 1 {
            self.fail("%s has a stale predecessor %s", p, p.pred)
        }
    }

    /* every fixed node except merges and the start is entered through its predecessor */
    if p.Op.IsFixed() && p.pred == nil && !p.Op.IsMerge() && p.Op != OpStart {
        self.fail("%s is not connected to any predecessor", p)
    }

    /* sequential nodes always have a successor */
    if p.Op.HasNext() && p.sux[0] == nil {
        self.fail("%s has no successor", p)
    } else if p.Op == OpIf && (p.sux[0] == nil || p.sux[1] == nil) {
        self.fail("%s has a missing branch", p)
    }
}

func (self *_Verifier) kind(p *Node) {
    switch p.Op {
        case OpPhi: {
            m := p.in[0]
            if m == nil || m.deleted || !m.Op.IsMerge() {
                self.fail("%s is not defined at a live merge", p)
            } else if m.Op == OpLoopBegin && p.PhiValueCount() != 1 + len(m.LoopEnds()) {
                self.fail("%s has %d value(s) but %s has %d loop end(s)", p, p.PhiValueCount(), m, len(m.LoopEnds()))
            } else if m.Op == OpMerge && p.PhiValueCount() != len(m.in) - 1 {
                self.fail("%s has %d value(s) but %s has %d forward end(s)", p, p.PhiValueCount(), m, len(m.in) - 1)
            }
        }
        case OpLoopEnd, OpLoopExit: {
            if lb := p.in[0]; lb == nil || lb.deleted || lb.Op != OpLoopBegin {
                self.fail("%s does not belong to a live loop begin", p)
            }
        }
        case OpLoopBegin: {
            if len(p.in) != 2 || p.in[1] == nil {
                self.fail("%s has no forward end", p)
            }
            seen := make(map[int]bool)
            for _, e := range p.LoopEnds() {
                if seen[e.endIndex] || e.endIndex >= p.nextEnd {
                    self.fail("%s has an inconsistent end index %d", e, e.endIndex)
                }
                seen[e.endIndex] = true
            }
        }
        case OpProxy: {
            if e := p.in[1]; e == nil || e.Op != OpLoopExit {
                self.fail("%s is not attached to a loop exit", p)
            }
        }
        case OpGuard: {
            if a := p.in[1]; a == nil || !a.Op.IsAnchoring() {
                self.fail("%s has no valid anchor", p)
            }
        }
    }
}

func (self *_Verifier) acyclic() {
    cfg := simple.NewDirectedGraph()
    dfg := simple.NewDirectedGraph()

    /* add all the nodes */
    for _, p := range self.g.Nodes() {
        dfg.AddNode(simple.Node(p.ID))
        if p.Op.IsFixed() {
            cfg.AddNode(simple.Node(p.ID))
        }
    }

    /* control edges, without the back edges */
    for _, p := range self.g.Nodes() {
        if p.Op.IsFixed() && p.Op != OpLoopEnd {
            for _, s := range ControlSuccessors(p) {
                cfg.SetEdge(cfg.NewEdge(simple.Node(p.ID), simple.Node(s.ID)))
            }
        }
    }

    /* data edges, without the phi values and the associations */
    for _, p := range self.g.Nodes() {
        if p.Op != OpPhi {
            for i, in := range p.in {
                if in != nil && in != p && p.it[i] != InputAssociation {
                    dfg.SetEdge(dfg.NewEdge(simple.Node(in.ID), simple.Node(p.ID)))
                }
            }
        }
    }

    /* check for cycles */
    if _, err := topo.Sort(cfg); err != nil {
        self.fail("control flow has a cycle without a loop end: %v", err)
    }
    if _, err := topo.Sort(dfg); err != nil {
        self.fail("data flow has a cycle without a phi: %v", err)
    }
}

func (self *_Verifier) anchors() {
    dt := BuildDominatorTree(self.g.Start)
    for _, p := range self.g.Nodes() {
        if p.Op != OpGuard || !dt.Reachable(p.in[1]) {
            continue
        }
        for _, u := range p.UsagesOf(InputGuard) {
            if u.Op.IsFixed() && dt.Reachable(u) && !dt.Dominates(p.in[1], u) {
                self.fail("%s is anchored at %s which does not dominate its user %s", p, p.in[1], u)
            }
        }
    }
}
