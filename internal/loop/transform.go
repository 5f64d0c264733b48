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
    `sync/atomic`

    `github.com/cloudwego/loopfrag/internal/ir`
)

// Peel duplicates the first iteration of loop in front of it. The graph is
// left untouched when an error is returned.
func Peel(loop *Loop) error {
    if err := CheckPeel(loop); err != nil {
        atomic.AddUint64(&RejectCount, 1)
        return err
    }

    /* insert the first iteration */
    loop.Inside().Duplicate().InsertBefore(loop)
    loop.begin.Peelings++
    loop.Invalidate()
    atomic.AddUint64(&PeelCount, 1)
    return nil
}

// PartialUnroll doubles the body of a counted loop. The graph is left
// untouched when an error is returned.
func PartialUnroll(loop *Loop, strides OpaqueStrides) error {
    if err := CheckPartialUnroll(loop); err != nil {
        atomic.AddUint64(&RejectCount, 1)
        return err
    }

    /* append the second iteration */
    loop.Inside().Duplicate().InsertWithinAfter(loop, strides)
    loop.Invalidate()
    atomic.AddUint64(&UnrollCount, 1)
    return nil
}

// CheckPeel reports whether loop can be peeled.
func CheckPeel(loop *Loop) error {
    lb := loop.begin
    if !loop.g.ValueProxies {
        return unsupported(lb, "peeling requires value proxies")
    } else if err := checkShape(loop); err != nil {
        return err
    }

    /* the old loop phis must not be visible outside of the loop */
    whole := loop.Whole()
    for _, p := range whole.Nodes().Nodes() {
        if isOwnExit(lb, p) || isOwnProxy(lb, p) || isState(p) {
            continue
        }
        for _, u := range p.UniqueUsages() {
            if !whole.Contains(u) {
                return unsupported(lb, "%s is used by %s outside of the loop without a proxy", p, u)
            }
        }
    }
    return nil
}

// CheckPartialUnroll reports whether loop can be partially unrolled.
func CheckPartialUnroll(loop *Loop) error {
    g := loop.g
    lb := loop.begin
    if err := checkShape(loop); err != nil {
        return err
    }

    /* only simple counted loops */
    counted := loop.Counted()
    switch {
        case counted == nil                        : return unsupported(lb, "not a counted loop")
        case counted.Inverted                      : return unsupported(lb, "inverted loops cannot be unrolled")
        case !loop.IsInnermost()                   : return unsupported(lb, "loop contains other loops")
        case counted.LimitTest.Pred() != lb        : return unsupported(lb, "limit test does not directly follow the loop begin")
        case !counted.LimitTest.Input(0).HasExactlyOneUsage() : return unsupported(lb, "loop condition is shared")
        case StrideAdditionOverflows(loop)         : return unsupported(lb, "doubling stride %d overflows", counted.IV.Stride)
    }

    /* early exits must flow into a merge through proxies */
    whole := loop.Whole()
    for _, exit := range lb.LoopExits() {
        if exit == counted.CountedExit {
            continue
        }
        if !g.ValueProxies {
            return unsupported(lb, "early exit %s requires value proxies", exit)
        }
        if g.FrameStates && exit.StateAfter() == nil {
            return unsupported(lb, "early exit %s has no frame state", exit)
        }

        /* the exit path */
        next := exit.Next()
        if next == nil || next.Op != ir.OpEnd || next.Merge() == nil || next.Merge().Op != ir.OpMerge {
            return unsupported(lb, "early exit %s does not end in a merge", exit)
        }
        for _, phi := range next.Merge().Phis() {
            if v := phi.PhiValueAtEnd(next); whole.Contains(v) && v.Op != ir.OpProxy {
                return unsupported(lb, "%s leaves the loop through %s without a proxy", v, exit)
            }
        }
    }
    return nil
}

// checkShape verifies that the loop is entered through its forward end, has
// at least one back edge and is only left through its loop exits.
func checkShape(loop *Loop) error {
    lb := loop.begin
    if lb.ForwardEnd() == nil || lb.ForwardEnd().Pred() == nil {
        return unsupported(lb, "loop has no entry")
    } else if len(lb.LoopEnds()) == 0 {
        return unsupported(lb, "loop has no back edge")
    }

    /* control flow must not leave the loop without an exit */
    whole := loop.Whole()
    for _, p := range whole.Nodes().Nodes() {
        if !p.Op.IsFixed() || isOwnExit(lb, p) {
            continue
        }
        for _, s := range p.Successors() {
            if s != nil && !whole.Contains(s) {
                return unsupported(lb, "%s leaves the loop without a loop exit", p)
            }
        }
    }
    return nil
}
