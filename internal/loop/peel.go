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
    `go.uber.org/zap`
    `github.com/cloudwego/loopfrag/internal/ir`
)

// prim resolves a value of the original loop as seen by the peeled
// iteration: loop phis become their forward values, and once the copy exists
// every other node becomes its copy.
func (self *Inside) prim(p *ir.Node) *ir.Node {
    lb := self.loop.begin
    if lb.IsPhiAtMerge(p) {
        return p.PhiValueAtEnd(lb.ForwardEnd())
    } else if !self.ready {
        return p
    } else if d := self.DuplicatedNode(p); d != nil {
        return d
    } else {
        return p
    }
}

// InsertBefore inserts this duplicate in front of loop, which must be the
// loop it was duplicated from. The copy executes the first iteration and
// the original loop takes over from the second one.
func (self *Inside) InsertBefore(loop *Loop) {
    if !self.IsDuplicate() {
        panic("inserting an original fragment")
    } else if self.original.loop != loop {
        panic("inserting a fragment into a different loop")
    }

    /* guards which must be re-anchored in front of the copy */
    g := loop.g
    guards := self.original.guardsWithOutsideAnchors()

    /* copy the loop and connect the copy */
    self.patchNodes(self.prim)
    end := self.mergeEnds()
    self.mergeEarlyExits()
    self.original.patchPeeling(self)

    /* the copy becomes the new entry of the loop */
    entry := self.DuplicatedNode(loop.begin)
    fwd := loop.EntryPoint()
    fwd.ReplaceAtPredecessor(entry)
    end.SetNext(fwd)

    /* anchor the copied guards in front of the copy */
    if len(guards) != 0 {
        anchor := ir.PrevBegin(entry)
        for _, gd := range guards {
            if d := self.DuplicatedNode(gd); d != nil {
                d.SetGuardAnchor(anchor)
            }
        }
    }
    if ce := g.Debug.Check(zap.DebugLevel, "loop peeled"); ce != nil {
        ce.Write(zap.Int("loop", loop.begin.ID), zap.Int("exits", len(loop.begin.LoopExits())))
    }
}

// guardsWithOutsideAnchors returns the floating guards of the fragment which
// are anchored outside of the loop.
func (self *Inside) guardsWithOutsideAnchors() []*ir.Node {
    var ret []*ir.Node
    if !self.loop.g.FloatingGuards {
        return nil
    }
    for _, p := range self.nodes.Filter(ir.OpGuard) {
        if !self.loop.Whole().Contains(p.GuardAnchor()) {
            ret = append(ret, p)
        }
    }
    return ret
}

// mergeEnds joins the copied back edges into a single control flow exit of
// the copy. With several back edges, the values flowing into the next
// iteration are merged by new phis.
func (self *Inside) mergeEnds() *ir.Node {
    g := self.loop.g
    lb := self.loop.begin
    rev := make(map[*ir.Node]*ir.Node)

    /* find the copied back edges */
    var ends []*ir.Node
    for _, le := range lb.LoopEnds() {
        if d := self.DuplicatedNode(le); d != nil {
            ends = append(ends, d)
            rev[d] = le
        }
    }

    /* a single back edge becomes a plain begin */
    self.mergedInitializers = make(map[*ir.Node]*ir.Node)
    if len(ends) == 1 {
        end := ends[0]
        if !end.HasNoUsages() {
            panic("copied back edge is still in use: " + end.String())
        }
        begin := g.Begin()
        end.ReplaceAtPredecessor(begin)
        end.SafeDelete()
        return begin
    }

    /* several back edges meet at a new merge */
    var state *ir.Node
    merge := g.Merge()
    if fs := lb.StateAfter(); fs != nil {
        state = fs.DuplicateWithVirtualState()
        merge.SetStateAfter(state)
        state.ApplyToNonVirtual(func(from *ir.Node, i int) {
            if v := from.Input(i); !lb.IsPhiAtMerge(v) && self.original.Contains(v) {
                from.SetInput(i, self.DuplicatedNode(v))
            }
        })
    }

    /* register the ends */
    for _, end := range ends {
        merge.AddForwardEnd(end)
    }

    /* the initial values of the original loop phis */
    for _, phi := range lb.Phis() {
        if phi.HasNoUsages() {
            continue
        }

        /* one input per copied back edge */
        first := phi.DuplicatePhiOn(merge)
        for _, end := range merge.ForwardEnds() {
            first.AddPhiInput(self.prim(phi.PhiValueAtEnd(rev[end])))
        }

        /* the state of the merge refers to the merged value */
        if state != nil {
            state.ApplyToNonVirtual(func(from *ir.Node, i int) {
                if from.Input(i) == phi {
                    from.SetInput(i, first)
                }
            })
        }
        self.mergedInitializers[phi] = first
    }
    return merge
}

// patchPeeling rebuilds the phis of the original loop so that their initial
// values come from the peeled iteration. It is called on the original
// fragment with the inserted copy.
func (self *Inside) patchPeeling(peel *Inside) {
    lb := self.loop.begin
    ends := lb.LoopEnds()
    patch := self.nodes.Copy()

    /* the states and proxies of the exits and the loop begin state */
    for _, exit := range lb.LoopExits() {
        markStateNodes(exit, patch)
        for _, vp := range exit.Proxies() {
            patch.MarkAndGrow(vp)
        }
    }
    markStateNodes(lb, patch)

    /* new phis taking the peeled values as initial values */
    var newPhis []*ir.Node
    oldPhis := lb.Phis()
    for _, phi := range oldPhis {
        if phi.HasNoUsages() {
            continue
        }

        /* the value computed by the peeled iteration */
        var first *ir.Node
        if len(ends) == 1 {
            if b := phi.PhiValueAtEnd(ends[0]); b != nil {
                first = peel.prim(b)
            } else if phi.Kind != ir.KindGuard {
                panic("missing back edge value: " + phi.String())
            }
        } else {
            first = peel.mergedInitializers[phi]
        }

        /* same back edge values as the old phi */
        np := phi.DuplicatePhiOn(lb)
        np.AddPhiInput(first)
        for _, end := range ends {
            np.AddPhiInput(phi.PhiValueAtEnd(end))
        }

        /* redirect the usages inside the loop */
        peel.putDuplicatedNode(phi, np)
        newPhis = append(newPhis, np)
        for _, u := range phi.Usages() {
            if patch.IsMarkedAndGrow(u) {
                u.ReplaceFirstInput(phi, np)
            }
        }
    }

    /* new phis refer to each other, not to the old ones */
    for _, np := range newPhis {
        for i := 0; i < np.PhiValueCount(); i++ {
            if v := np.PhiValueAt(i); lb.IsPhiAtMerge(v) {
                if d := peel.DuplicatedNode(v); d != nil {
                    np.SetPhiValueAt(i, d)
                }
            }
        }
    }

    /* old phis only used by other old phis are dead */
    dead := append([]*ir.Node(nil), oldPhis...)
    for changed := true; changed; {
        changed = false
        for i := 0; i < len(dead); {
            if isUsedOutside(dead[i], dead) {
                dead = append(dead[:i], dead[i + 1:]...)
                changed = true
            } else {
                i++
            }
        }
    }

    /* kill them all together, they may refer to each other */
    var inputs []*ir.Node
    for _, phi := range dead {
        inputs = append(inputs, phi.Inputs()[1:]...)
        phi.ClearInputs()
    }
    for _, phi := range dead {
        if !phi.IsDeleted() {
            ir.KillWithUnusedFloatingInputs(phi)
        }
    }
    for _, v := range inputs {
        if v != nil {
            ir.TryKillUnused(v)
        }
    }
}

func isUsedOutside(phi *ir.Node, dead []*ir.Node) bool {
    for _, u := range phi.UniqueUsages() {
        if u.Op != ir.OpPhi || !contains(dead, u) {
            return true
        }
    }
    return false
}

func contains(list []*ir.Node, p *ir.Node) bool {
    for _, v := range list {
        if v == p {
            return true
        }
    }
    return false
}

func markStateNodes(split *ir.Node, nodes *ir.NodeBitMap) {
    if fs := split.StateAfter(); fs != nil {
        fs.ApplyToVirtual(nodes.MarkAndGrow)
    }
}
