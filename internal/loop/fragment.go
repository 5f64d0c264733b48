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
    `sync/atomic`

    `github.com/oleiade/lane`
    `github.com/cloudwego/loopfrag/internal/ir`
)

type fragment struct {
    loop  *Loop
    nodes *ir.NodeBitMap
}

func (self *fragment) Loop() *Loop {
    return self.loop
}

func (self *fragment) Nodes() *ir.NodeBitMap {
    return self.nodes
}

func (self *fragment) Contains(p *ir.Node) bool {
    return self.nodes.Contains(p)
}

// Whole is the set of every node belonging to a loop: the control nodes from
// the LoopBegin to the LoopEnds, the loop's own exits with their proxies,
// the states of the state splits and every floating node depending on them.
type Whole struct {
    fragment
}

func newWhole(loop *Loop) *Whole {
    return &Whole {
        fragment { loop, computeNodes(loop) },
    }
}

func isOwnExit(lb *ir.Node, p *ir.Node) bool {
    return p.Op == ir.OpLoopExit && p.LoopBeginOf() == lb
}

func isOwnProxy(lb *ir.Node, p *ir.Node) bool {
    return p.Op == ir.OpProxy && p.ProxyExit().LoopBeginOf() == lb
}

func isState(p *ir.Node) bool {
    return p.Op == ir.OpFrameState || p.Op == ir.OpVirtualState
}

func computeNodes(loop *Loop) *ir.NodeBitMap {
    lb := loop.begin
    ret := ir.NewNodeBitMap(loop.g)
    stack := lane.NewStack()

    /* walk backwards from the back edges to the loop begin */
    ret.Mark(lb)
    for _, le := range lb.LoopEnds() {
        stack.Push(le)
    }

    /* collect the fixed nodes */
    for !stack.Empty() {
        p := stack.Pop().(*ir.Node)
        if ret.IsMarked(p) {
            continue
        }

        /* mark the node and find the way back */
        ret.Mark(p)
        switch p.Op {
            case ir.OpMerge: {
                for _, e := range p.ForwardEnds() {
                    stack.Push(e)
                }
            }

            /* inner loops are entered through their forward end */
            case ir.OpLoopBegin: {
                stack.Push(p.ForwardEnd())
                for _, e := range p.LoopEnds() {
                    stack.Push(e)
                }
            }

            /* everything else has a single predecessor */
            default: {
                if p.Pred() == nil {
                    panic(fmt.Sprintf("%s: %s is not dominated by the loop begin", lb, p))
                }
                stack.Push(p.Pred())
            }
        }
    }

    /* the exits of this loop and their proxies */
    for _, exit := range lb.LoopExits() {
        ret.Mark(exit)
        for _, vp := range exit.Proxies() {
            ret.Mark(vp)
        }
    }

    /* states of the state splits */
    for _, p := range ret.Nodes() {
        if p.Op.IsFixed() {
            if fs := p.StateAfter(); fs != nil {
                fs.ApplyToVirtual(ret.Mark)
            }
        }
    }

    /* floating nodes depending on the loop, the values leaving the loop
     * through proxies and the frame states are not followed */
    for _, p := range ret.Nodes() {
        if !isOwnExit(lb, p) && !isOwnProxy(lb, p) && !isState(p) {
            stack.Push(p)
        }
    }
    for !stack.Empty() {
        p := stack.Pop().(*ir.Node)
        for _, u := range p.UniqueUsages() {
            if !u.Op.IsFixed() && !ret.IsMarked(u) {
                if ret.Mark(u); !isState(u) {
                    stack.Push(u)
                }
            }
        }
    }
    return ret
}

// Inside is the part of a loop that gets duplicated: the whole loop without
// its phis, the proxies of its exits and the states owned by the loop begin
// and the exits. A duplicate view of an Inside fragment owns the mapping
// from the original nodes to their copies.
type Inside struct {
    fragment
    original           *Inside
    dup                map[*ir.Node]*ir.Node
    ready              bool
    cfg                map[*ir.Node]*ir.Node
    mergedInitializers map[*ir.Node]*ir.Node
}

func newInside(loop *Loop) *Inside {
    lb := loop.begin
    nodes := loop.Whole().Nodes().Copy()

    /* the loop phis stay with the loop */
    for _, phi := range lb.Phis() {
        nodes.Clear(phi)
    }

    /* and so do the loop-owned states and proxies */
    clearStateNodes(lb, nodes)
    for _, exit := range lb.LoopExits() {
        clearStateNodes(exit, nodes)
        for _, vp := range exit.Proxies() {
            nodes.Clear(vp)
        }
    }

    /* build the fragment */
    return &Inside {
        fragment : fragment { loop, nodes },
    }
}

// clearStateNodes removes the state of split from nodes, together with the
// virtual parts which are not used by any other node of the set.
func clearStateNodes(split *ir.Node, nodes *ir.NodeBitMap) {
    if fs := split.StateAfter(); fs != nil {
        fs.ApplyToVirtual(func(v *ir.Node) {
            for _, u := range v.UniqueUsages() {
                if u != split && !nodes.IsNew(u) && nodes.IsMarked(u) {
                    return
                }
            }
            nodes.Clear(v)
        })
    }
}

// Duplicate creates the duplicate view of this fragment. Nothing is copied
// until the view is inserted into the graph.
func (self *Inside) Duplicate() *Inside {
    if self.IsDuplicate() {
        panic("duplicating a duplicate fragment")
    }
    return &Inside {
        fragment : fragment { loop: self.loop },
        original : self,
    }
}

func (self *Inside) IsDuplicate() bool {
    return self.original != nil
}

func (self *Inside) Original() *Inside {
    return self.original
}

// DuplicatedNode returns the copy of p in this duplicate, or nil.
func (self *Inside) DuplicatedNode(p *ir.Node) *ir.Node {
    return self.dup[p]
}

func (self *Inside) putDuplicatedNode(p *ir.Node, d *ir.Node) {
    self.dup[p] = d
}

// replacement returns the control placeholders used while copying the
// original fragment: the loop begin and the exits of the loop become plain
// begins, the back edges become plain ends. Placeholders are created once.
func (self *Inside) replacement() ir.Replacement {
    if self.cfg == nil {
        self.cfg = make(map[*ir.Node]*ir.Node)
    }
    lb := self.loop.begin
    g := self.loop.g

    /* create the placeholders on demand */
    return func(p *ir.Node) *ir.Node {
        if r, ok := self.cfg[p]; ok {
            return r
        }
        switch {
            case p == lb                 : self.cfg[p] = g.Begin()
            case isOwnExit(lb, p)        : self.cfg[p] = g.Begin()
            case p.Op == ir.OpLoopEnd &&
                 p.LoopBeginOf() == lb   : self.cfg[p] = g.End()
            default                      : return nil
        }
        return self.cfg[p]
    }
}

// patchNodes copies the original fragment, data inputs are resolved by
// dataFix first and by the control placeholders next.
func (self *Inside) patchNodes(dataFix ir.Replacement) {
    if !self.IsDuplicate() || self.ready {
        return
    }
    g := self.loop.g
    cfgFix := self.original.replacement()

    /* combine the data and control replacements */
    repl := func(p *ir.Node) *ir.Node {
        if r := dataFix(p); r != nil && r != p {
            return r
        } else {
            return cfgFix(p)
        }
    }

    /* copy the nodes */
    self.dup = g.AddDuplicates(self.original.nodes.Nodes(), repl)
    self.nodes = ir.NewNodeBitMap(g)
    self.ready = true

    /* the duplicate fragment is made of the copies */
    for _, d := range self.dup {
        self.nodes.Mark(d)
    }
    atomic.AddUint64(&DuplicatedNodes, uint64(len(self.dup)))
}

// mergeEarlyExits joins every exit of the duplicated segment with the
// corresponding exit of the original loop. The values leaving the loop get
// a phi selecting between the two paths.
func (self *Inside) mergeEarlyExits() {
    g := self.loop.g
    lb := self.loop.begin
    orig := self.original

    /* process every exit of the loop */
    for _, exit := range lb.LoopExits() {
        if !orig.Contains(exit) {
            continue
        }
        next := exit.Next()
        newExit := self.DuplicatedNode(exit)
        if newExit == nil {
            continue
        }

        /* join both paths */
        merge := g.Merge()
        oend := g.End()
        nend := g.End()
        merge.AddForwardEnd(oend)
        merge.AddForwardEnd(nend)
        exit.SetNext(oend)
        newExit.SetNext(nend)
        merge.SetNext(next)

        /* the exit keeps a copy of its state, the merge takes the original */
        var exitState *ir.Node
        if fs := exit.StateAfter(); fs != nil {
            exitState = fs.DuplicateWithVirtualState()
            exit.SetStateAfter(exitState)
            merge.SetStateAfter(fs)
            fs.ApplyToVirtual(orig.nodes.Clear)
            exitState.ApplyToVirtual(orig.nodes.MarkAndGrow)
        }

        /* nodes anchored at the exit are now anchored at the merge */
        for _, u := range exit.Anchored() {
            u.ReplaceAllInputs(exit, merge)
        }

        /* values leaving the loop are selected by phis at the merge */
        for _, vp := range exit.Proxies() {
            if vp.HasNoUsages() {
                continue
            }

            /* guard proxies without a value are simply dropped */
            if vp.ProxyValue() == nil {
                vp.ReplaceAtUsages(nil)
                continue
            }

            /* build the phi */
            phi := vp.CreatePhi(merge)
            phi.AddPhiInput(vp)
            phi.AddPhiInput(self.prim(vp.ProxyValue()))

            /* the phi and the state of the exit keep using the proxy */
            vp.ReplaceAtMatchingUsages(phi, func(u *ir.Node) bool {
                if merge.IsPhiAtMerge(u) {
                    return false
                } else if isState(u) && exitState != nil && exitState.IsPartOfState(u) {
                    return false
                } else {
                    return true
                }
            })
        }
    }
}
