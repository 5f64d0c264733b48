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
    `testing`

    `github.com/stretchr/testify/require`
)

func TestGraph_SetInputKeepsUsagesInSync(t *testing.T) {
    g := NewGraph()
    x := g.Param("x", 32)
    y := g.Param("y", 32)
    add := g.Add(x, x)
    require.Equal(t, 2, x.UsageCount())
    require.True(t, y.HasNoUsages())
    add.SetInput(1, y)
    require.Equal(t, 1, x.UsageCount())
    require.Equal(t, []*Node { add }, y.Usages())
    require.True(t, add.ReplaceFirstInput(x, y))
    require.True(t, x.HasNoUsages())
    require.Equal(t, 2, y.UsageCount())
    require.False(t, add.ReplaceFirstInput(x, y))
    require.NoError(t, checkEdges(g))
}

func TestGraph_ReplaceAtUsagesFiltersByType(t *testing.T) {
    g := NewGraph()
    b := NewBuilder(g)
    begin := b.Append(g.Begin())
    cond := g.LessThan(g.Param("x", 32), g.Const(32, 10))
    guard := g.Guard(cond, begin, false)
    arr := g.Param("a", 32)
    load := b.Append(g.Load(arr, g.Const(32, 0), begin))
    b.Append(g.Return(load))
    anchor := g.ValueAnchor()
    begin.ReplaceAtUsages(anchor, InputAnchor)
    require.Equal(t, anchor, guard.GuardAnchor())
    require.Equal(t, begin, load.Input(2))
    begin.ReplaceAtUsages(anchor, InputGuard)
    require.Equal(t, anchor, load.Input(2))
    require.True(t, begin.HasNoUsages())
}

func TestGraph_ForEachUsageSeesEdits(t *testing.T) {
    g := NewGraph()
    x := g.Param("x", 32)
    y := g.Param("y", 32)
    a1 := g.Add(x, y)
    a2 := g.Add(x, y)
    var visited []*Node
    x.ForEachUsage(nil, func(u *Node) {
        visited = append(visited, u)
        a2.ReplaceFirstInput(x, y)
    })
    require.Equal(t, []*Node { a1 }, visited)
}

func TestGraph_SafeDeleteRejectsUsedNodes(t *testing.T) {
    g := NewGraph()
    x := g.Param("x", 32)
    a := g.Add(x, x)
    require.Panics(t, func() { x.SafeDelete() })
    a.SafeDelete()
    require.True(t, a.IsDeleted())
    require.True(t, x.HasNoUsages())
    require.Panics(t, func() { a.SetInput(0, x) })
}

func TestGraph_SuccessorsHaveSinglePredecessor(t *testing.T) {
    g := NewGraph()
    b := NewBuilder(g)
    begin := b.Append(g.Begin())
    require.Equal(t, g.Start, begin.Pred())
    require.Panics(t, func() { g.Begin().SetNext(begin) })
    anchor := g.ValueAnchor()
    AddAfterFixed(g.Start, anchor)
    require.Equal(t, anchor, begin.Pred())
    require.Equal(t, anchor, g.Start.Next())
    g.RemoveFixed(anchor)
    require.Equal(t, g.Start, begin.Pred())
    require.True(t, anchor.IsDeleted())
}

func TestGraph_LoopEndsAndPhis(t *testing.T) {
    g := NewGraph()
    b := NewBuilder(g)
    lb := b.EnterLoop()
    e1 := g.LoopEnd(lb)
    e2 := g.LoopEnd(lb)
    e3 := g.LoopEnd(lb)
    c0, c1, c2, c3 := g.Const(32, 0), g.Const(32, 1), g.Const(32, 2), g.Const(32, 3)
    phi := g.Phi(KindValue, lb, c0, c1, c2, c3)
    require.Equal(t, []*Node { e1, e2, e3 }, lb.LoopEnds())
    require.Equal(t, c2, phi.PhiValueAtEnd(e2))
    lb.RemoveEnd(e2)
    e2.SafeDelete()
    require.Equal(t, []*Node { e1, e3 }, lb.LoopEnds())
    require.Equal(t, 3, phi.PhiValueCount())
    require.Equal(t, c3, phi.PhiValueAtEnd(e3))
    e4 := g.LoopEnd(lb)
    phi.AddPhiInput(c0)
    require.Equal(t, c0, phi.PhiValueAtEnd(e4))
    require.Equal(t, 3, lb.PredecessorIndex(e4))
}

func TestGraph_ConstantsAreUniqueAndWrapped(t *testing.T) {
    g := NewGraph()
    require.Same(t, g.Const(32, 1), g.Const(32, 1))
    require.NotSame(t, g.Const(32, 1), g.Const(64, 1))
    require.Equal(t, int64(-1), g.Const(32, 0xffffffff).Value)
    require.Same(t, g.Const(32, -1), g.Const(32, 0xffffffff))
    require.Equal(t, uint64(0xffffffff), Unsigned(32, -1))
}

func TestGraph_CanonicalValues(t *testing.T) {
    g := NewGraph()
    x := g.Param("x", 32)
    require.Same(t, g.Const(32, 5), g.AddValues(g.Const(32, 2), g.Const(32, 3)))
    require.Same(t, x, g.AddValues(x, g.Const(32, 0)))
    require.Same(t, g.Const(32, 0), g.SubValues(x, x))
    require.Same(t, g.Const(1, 1), g.BelowValues(g.Const(32, 1), g.Const(32, -1)))
    require.Same(t, x, g.ConditionalValue(g.Const(1, 1), x, g.Const(32, 7)))
    require.Equal(t, OpConditional, g.ConditionalValue(g.LessThan(x, x), x, g.Const(32, 7)).Op)
}

func checkEdges(g *Graph) error {
    v := &_Verifier { g: g }
    for _, p := range g.Nodes() {
        v.edges(p)
    }
    if len(v.errs) != 0 {
        return &VerifyError { Problems: v.errs }
    }
    return nil
}
