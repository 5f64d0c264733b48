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

    `go.uber.org/zap`
    `github.com/cloudwego/loopfrag/internal/ir`
)

// OpaqueStrides remembers, per loop begin, the opaque node holding the
// combined stride of all the segments which were appended to the loop.
type OpaqueStrides map[*ir.Node]*ir.Node

// primAfter resolves a value of the original loop as seen by the appended
// segment: loop phis become their back edge values.
func (self *Inside) primAfter(p *ir.Node) *ir.Node {
    lb := self.loop.begin
    if lb.IsPhiAtMerge(p) {
        return p.PhiValueAt(1)
    } else if !self.ready {
        return p
    } else if d := self.DuplicatedNode(p); d != nil {
        return d
    } else {
        return p
    }
}

// InsertWithinAfter appends this duplicate to the body of loop, so that
// every iteration of the resulting loop executes two iterations of the
// original one. The limit of the loop is adjusted with an opaque stride
// recorded in strides. A nil strides leaves the limit untouched.
func (self *Inside) InsertWithinAfter(loop *Loop, strides OpaqueStrides) {
    if !self.IsDuplicate() {
        panic("inserting an original fragment")
    } else if self.original.loop != loop {
        panic("inserting a fragment into a different loop")
    }

    /* snapshot the analysis results before the graph changes */
    g := loop.g
    lb := loop.begin
    counted := loop.Counted()
    safepoints := loop.Whole().Nodes().Filter(ir.OpSafepoint)

    /* copy the body */
    self.patchNodes(self.primAfter)

    /* the back edge values now come from the copy */
    phis := lb.Phis()
    back := make([]*ir.Node, len(phis))
    new2old := make(map[*ir.Node]*ir.Node)
    for i, phi := range phis {
        v := phi.PhiValueAt(1)
        d := self.DuplicatedNode(v)

        /* values not in the copy */
        if d == nil {
            if lb.IsPhiAtMerge(v) {
                d = v.PhiValueAt(1)
            } else if !v.IsConstant() && !loop.IsOutsideLoop(v) {
                panic(fmt.Sprintf("back edge value %s of %s was not duplicated", v, phi))
            }
        }

        /* remember where the values came from */
        if d != nil {
            new2old[d] = v
        }
        back[i] = d
    }

    /* update all of them at once, they may refer to each other */
    for i, phi := range phis {
        if back[i] != nil {
            phi.SetPhiValueAt(1, back[i])
        }
    }

    /* splice the copy into the body */
    cond := self.placeNewSegmentAndCleanup(loop, counted, new2old)

    /* one safepoint per iteration is enough */
    for _, sp := range safepoints {
        g.RemoveFixed(sp)
    }

    /* adjust the limit */
    if strides != nil {
        stride := g.Const(counted.IV.Bits, counted.IV.Stride)
        opaque := strides[lb]

        /* the first unrolling introduces the opaque stride */
        if opaque == nil || opaque.IsDeleted() {
            limit := counted.Limit
            opaque = g.Opaque(g.AddValues(stride, stride))
            clamped := PartialUnrollOverflowCheck(opaque, limit, counted)
            if !cond.HasExactlyOneUsage() {
                panic("loop condition is shared: " + cond.String())
            }
            cond.ReplaceFirstInput(limit, clamped)
            strides[lb] = opaque
        } else {
            prev := opaque.Input(0)
            opaque.SetInput(0, g.AddValues(stride, prev))
            ir.TryKillUnused(prev)
        }
    }

    /* update the unroll factor */
    lb.UnrollFactor *= 2
    if ce := g.Debug.Check(zap.DebugLevel, "loop unrolled"); ce != nil {
        ce.Write(zap.Int("loop", lb.ID), zap.Int("factor", lb.UnrollFactor))
    }
}

// placeNewSegmentAndCleanup links the copied body between the original body
// and the back edge, and removes the copied limit test. It returns the
// condition of the original limit test.
func (self *Inside) placeNewSegmentAndCleanup(loop *Loop, counted *CountedInfo, new2old map[*ir.Node]*ir.Node) *ir.Node {
    g := loop.g
    lb := loop.begin
    test := counted.LimitTest
    if counted.Inverted {
        panic("cannot unroll an inverted loop: " + lb.String())
    }

    /* the fixed nodes between the begin and the test stay with the header */
    newTest := self.DuplicatedNode(test)
    newBegin := self.DuplicatedNode(lb)
    for p := newTest.Pred(); p != nil && p != newBegin && p.Op.HasNext(); p = p.Pred() {
        for _, u := range p.Usages() {
            u.ReplaceFirstInput(p, test.Pred())
        }
    }

    /* nodes anchored at the copied branches move to the original branches */
    for i := 0; i < 2; i++ {
        s := newTest.Successor(i)
        for _, u := range s.Anchored() {
            u.ReplaceAllInputs(s, test.Successor(i))
        }
    }

    /* the early exits of the copy become exits of the loop */
    self.mergeEarlyLoopExits(loop, counted, new2old)

    /* the copy does not test the limit again */
    survivor := newTest.Successor(1)
    if test.Successor(0) == counted.Body {
        survivor = newTest.Successor(0)
    }
    g.RemoveSplitPropagate(newTest, survivor)

    /* an empty body has nothing to append */
    loopEnd := lb.SingleLoopEnd()
    if counted.Body.Next() == loopEnd && test.Pred() == lb {
        g.KillCFG(newBegin)
        return test.Input(0)
    }

    /* locate both ends of the copy */
    first := newBegin.Next()
    newEnd := ir.BlockEnd(self.DuplicatedNode(loopEnd.Pred()))
    newLast := newEnd.Pred()
    lastCode := loopEnd.Pred()
    newBegin.ClearSuccessors()

    /* nodes anchored at the copied begin need an anchor in the body */
    if len(newBegin.Anchored()) != 0 {
        if !lastCode.Op.IsAnchoring() {
            va := g.ValueAnchor()
            ir.AddAfterFixed(lastCode, va)
            lastCode = va
        }
        newBegin.ReplaceAtUsages(lastCode, ir.InputAnchor, ir.InputGuard)
    }

    /* anything else must be associated with the loop itself */
    for _, u := range newBegin.UniqueUsages() {
        for i := 0; i < u.InputCount(); i++ {
            if u.Input(i) != newBegin {
                continue
            } else if u.InputTypeAt(i) != ir.InputAssociation {
                panic(fmt.Sprintf("unexpected usage %s of segment begin %s", u, newBegin))
            } else {
                u.SetInput(i, lb)
            }
        }
    }

    /* splice the copy in front of the back edge */
    lastCode.ReplaceFirstSuccessor(loopEnd, first)
    newLast.ReplaceFirstSuccessor(newEnd, loopEnd)
    newBegin.SafeDelete()
    newEnd.SafeDelete()
    return test.Input(0)
}

// mergeEarlyLoopExits turns the copied early exits into exits of the loop.
func (self *Inside) mergeEarlyLoopExits(loop *Loop, counted *CountedInfo, new2old map[*ir.Node]*ir.Node) {
    exits := loop.begin.LoopExits()
    if len(exits) <= 1 {
        return
    }
    if !loop.g.ValueProxies {
        panic("early exits without value proxies: " + loop.begin.String())
    }

    /* every exit but the counted one */
    for _, exit := range exits {
        if exit == counted.CountedExit {
            continue
        }
        if next := exit.Next(); next.Op == ir.OpEnd {
            self.mergeRegularEarlyExit(loop, next, self.DuplicatedNode(exit), exit, new2old)
        } else {
            panic("early exit does not end in a merge: " + exit.String())
        }
    }
}

// mergeRegularEarlyExit replaces the copied exit begin with a LoopExit of
// its own and connects it to the merge the original exit flows into.
func (self *Inside) mergeRegularEarlyExit(loop *Loop, end *ir.Node, begin *ir.Node, exit *ir.Node, new2old map[*ir.Node]*ir.Node) {
    g := loop.g
    merge := end.Merge()
    if merge == nil || merge.Op != ir.OpMerge {
        panic("early exit does not end in a merge: " + exit.String())
    } else if begin.Next() != nil {
        panic("copied exit is already connected: " + begin.String())
    }

    /* a new exit of the loop */
    lex := g.LoopExit(loop.begin)
    if exit.StateAfter() != nil {
        self.createExitState(exit, lex, new2old)
    }

    /* the exit takes the place of the copied begin, so that the branch
     * leaves the loop directly through one of its exits */
    begin.ReplaceAtPredecessor(lex)
    begin.ReplaceAtUsages(lex)
    begin.SafeDelete()
    self.putDuplicatedNode(exit, lex)

    /* connect it to the merge */
    nend := g.End()
    lex.SetNext(nend)
    merge.AddForwardEnd(nend)

    /* the merge phis select the values leaving through the new exit */
    for _, phi := range merge.Phis() {
        v := phi.PhiValueAtEnd(end)
        if !loop.Whole().Contains(v) {
            phi.AddPhiInput(v)
        } else if v.Op != ir.OpProxy {
            panic(fmt.Sprintf("value %s leaves the loop without a proxy", v))
        } else {
            phi.AddPhiInput(g.UniqueProxy(phi.Kind, self.nodeInExitPath(v, new2old), lex))
        }
    }
}

// createExitState builds the state of a new exit from the state of the
// original exit, rewritten in terms of the copied segment.
func (self *Inside) createExitState(exit *ir.Node, lex *ir.Node, new2old map[*ir.Node]*ir.Node) {
    fs := exit.StateAfter().DuplicateWithVirtualState()
    fs.ApplyToNonVirtual(func(from *ir.Node, i int) {
        v := from.Input(i)
        if v.Op == ir.OpProxy {
            if v.ProxyExit() == exit {
                from.SetInput(i, v.DuplicateProxyOn(lex, self.nodeInExitPath(v, new2old)))
            }
        } else if self.original.Contains(v) {
            from.SetInput(i, self.DuplicatedNode(v))
        }
    })
    lex.SetStateAfter(fs)
}

// nodeInExitPath returns the value a proxy of the original exit stands for
// when the loop is left from the copied segment.
func (self *Inside) nodeInExitPath(vp *ir.Node, new2old map[*ir.Node]*ir.Node) *ir.Node {
    v := vp.ProxyValue()
    lb := vp.ProxyExit().LoopBeginOf()
    if !self.original.Contains(v) && !lb.IsPhiAtMerge(v) {
        return v
    }

    /* values computed by the segment */
    if d := self.DuplicatedNode(v); d != nil {
        return d
    } else if !lb.IsPhiAtMerge(v) {
        panic("value in the loop was not duplicated: " + v.String())
    }

    /* a phi seen from the segment is the back edge value of the previous
     * segment, which may have been replaced by its copy already */
    p := v.PhiValueAtEnd(lb.SingleLoopEnd())
    if r := new2old[p]; r != nil {
        return r
    } else {
        return p
    }
}
