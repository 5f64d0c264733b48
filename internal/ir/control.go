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

    `github.com/oleiade/lane`
)

// PrevBegin returns the closest begin node dominating p in its control chain.
func PrevBegin(p *Node) *Node {
    for ; p != nil; p = p.pred {
        if p.Op.IsBegin() {
            return p
        }
    }
    return nil
}

// BlockEnd follows the control chain starting at p up to its end.
func BlockEnd(p *Node) *Node {
    for p.Op.HasNext() {
        p = p.sux[0]
    }
    if !p.Op.IsEnd() {
        panic("block does not end with an end: " + p.String())
    }
    return p
}

// AddAfterFixed links p right after the fixed-with-next node at.
func AddAfterFixed(at *Node, p *Node) {
    next := at.Next()
    at.SetNext(nil)
    p.SetNext(next)
    at.SetNext(p)
}

// RemoveFixed unlinks a fixed-with-next node from its chain and deletes it.
// Nodes anchored on a removed begin move to the previous begin.
func (self *Graph) RemoveFixed(p *Node) {
    if !p.Op.HasNext() {
        panic("cannot remove non-sequential node: " + p.String())
    }

    /* re-anchor everything that depended on this begin */
    if p.Op.IsBegin() {
        if prev := PrevBegin(p.pred); prev != nil {
            for _, u := range p.Anchored() {
                u.ReplaceAllInputs(p, prev)
            }
        }
    }

    /* unlink and delete */
    if p.HasNoUsages() {
        next := p.Next()
        p.SetNext(nil)
        p.ReplaceAtPredecessor(next)
        p.SafeDelete()
    } else {
        panic(fmt.Sprintf("cannot remove %s: still used by %v", p, p.UniqueUsages()))
    }
}

// RemoveSplitPropagate replaces a control split by one of its successors and
// kills the control flow of all the others.
func (self *Graph) RemoveSplitPropagate(split *Node, survivor *Node) {
    sux := split.Successors()
    cond := split.in[0]

    /* bypass the split */
    split.ClearSuccessors()
    split.ReplaceAtPredecessor(survivor)
    split.SafeDelete()

    /* the other successors are no longer reachable */
    for _, p := range sux {
        if p != nil && p != survivor && !p.deleted {
            self.KillCFG(p)
        }
    }

    /* the condition may be dead now */
    if cond != nil {
        TryKillUnused(cond)
    }
}

// KillCFG deletes the control flow reachable from p together with the
// floating nodes depending on it. Merges losing all their forward ends are
// killed as well.
func (self *Graph) KillCFG(p *Node) {
    var fixed []*Node
    q := lane.NewQueue()
    visited := make(map[*Node]struct{})

    /* detach from the predecessor */
    p.ReplaceAtPredecessor(nil)
    q.Enqueue(p)
    visited[p] = struct{}{}

    /* collect the dead control flow */
    for !q.Empty() {
        n := q.Dequeue().(*Node)
        fixed = append(fixed, n)

        /* visit all the successors */
        for _, s := range n.sux {
            if s != nil {
                if _, ok := visited[s]; !ok {
                    visited[s] = struct{}{}
                    q.Enqueue(s)
                }
            }
        }

        /* detach the ends from their merges */
        if n.Op.IsEnd() {
            if m := n.Merge(); m != nil && !m.deleted {
                m.RemoveEnd(n)
                if m.Op == OpMerge && len(m.in) == 1 {
                    if _, ok := visited[m]; !ok {
                        visited[m] = struct{}{}
                        m.ReplaceAtPredecessor(nil)
                        q.Enqueue(m)
                    }
                }
            }
        }
    }

    /* unlink the control edges */
    for _, n := range fixed {
        n.ClearSuccessors()
        n.pred = nil
    }

    /* kill everything that depends on the dead nodes */
    for _, n := range fixed {
        for _, u := range n.UniqueUsages() {
            if !u.deleted && !u.Op.IsFixed() {
                killFloatingUsages(u)
            }
        }
    }

    /* finally delete the dead control nodes */
    for _, n := range fixed {
        n.ReplaceAtUsages(nil)
    }
    for _, n := range fixed {
        if !n.deleted {
            KillWithUnusedFloatingInputs(n)
        }
    }
}

func killFloatingUsages(p *Node) {
    for _, u := range p.UniqueUsages() {
        if !u.deleted && !u.Op.IsFixed() {
            killFloatingUsages(u)
        }
    }
    if !p.deleted {
        p.ReplaceAtUsages(nil)
        KillWithUnusedFloatingInputs(p)
    }
}

// KillWithUnusedFloatingInputs deletes p and then every floating input which
// becomes unused.
func KillWithUnusedFloatingInputs(p *Node) {
    ins := p.Inputs()
    p.ClearInputs()
    p.SafeDelete()

    /* inputs may now be dead */
    for _, v := range ins {
        if v != nil {
            TryKillUnused(v)
        }
    }
}

// TryKillUnused deletes p if it is a floating node without usages.
func TryKillUnused(p *Node) {
    if !p.deleted && !p.Op.IsFixed() && p.Op != OpParam && p.HasNoUsages() {
        KillWithUnusedFloatingInputs(p)
    }
}
