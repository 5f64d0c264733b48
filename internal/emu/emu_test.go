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

package emu

import (
    `testing`

    `github.com/pkg/errors`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/loopfrag/internal/ir`
)

// sumArray builds "for i := 0; i < n; i++ { s += a[i] }; return s", the load
// is protected by a guard checking i < len.
func sumArray() *ir.Graph {
    g := ir.NewGraph()
    b := ir.NewBuilder(g)
    n := g.Param("n", 32)
    ln := g.Param("len", 32)
    arr := g.Param("a", 32)
    zero, one := g.Const(32, 0), g.Const(32, 1)
    lb := b.EnterLoop()
    iv := g.Phi(ir.KindValue, lb, zero)
    sum := g.Phi(ir.KindValue, lb, zero)
    _, body, exit := b.Branch(g.LessThan(iv, n), nil, g.LoopExit(lb))
    b.At(body)
    b.Append(g.Safepoint())
    ld := b.Append(g.Load(arr, iv, g.Guard(g.LessThan(iv, ln), body, false)))
    b.LoopBack(lb)
    iv.AddPhiInput(g.Add(iv, one))
    sum.AddPhiInput(g.Add(sum, ld))
    b.At(exit).Append(g.Return(sum))
    return g
}

func TestEmu_RunsLoops(t *testing.T) {
    g := sumArray()
    mem := Memory { "a": { 1, 2, 3, 4, 5 } }
    res, err := Run(g, map[string]int64 { "n": 5, "len": 5 }, mem)
    require.NoError(t, err)
    require.False(t, res.Deoptimized(), res.String())
    require.Equal(t, int64(15), res.Value)
    require.Equal(t, 5, res.BackEdges)
    require.Equal(t, 5, res.Safepoints)
    require.Equal(t, []int64 { 1, 2, 3, 4, 5 }, mem["a"])
}

func TestEmu_FailingGuardDeoptimizes(t *testing.T) {
    g := sumArray()
    res, err := Run(g, map[string]int64 { "n": 5, "len": 3 }, Memory { "a": { 1, 2, 3, 4, 5 } })
    require.NoError(t, err)
    require.True(t, res.Deoptimized())
    require.Equal(t, ir.OpGuard, res.Deopt.Op)
    require.Equal(t, 3, res.BackEdges)
}

func TestEmu_ReportsFaults(t *testing.T) {
    g := sumArray()
    _, err := Run(g, map[string]int64 { "n": 6, "len": 6 }, Memory { "a": { 1, 2, 3, 4, 5 } })
    require.Error(t, err)
    require.Contains(t, err.Error(), "out of range")
    _, err = Run(g, map[string]int64 { "n": 1 }, Memory { "a": { 1 } })
    require.Error(t, err)
    require.Contains(t, err.Error(), "missing parameter")
}

func TestEmu_StepLimit(t *testing.T) {
    g := sumArray()
    vm := NewMachine(map[string]int64 { "n": 5, "len": 5 }, Memory { "a": { 1, 2, 3, 4, 5 } })
    vm.MaxSteps = 10
    _, err := vm.Run(g)
    require.True(t, errors.Is(err, ErrStepLimit), "%v", err)
}

func TestEmu_EvalWrapsToWidth(t *testing.T) {
    g := ir.NewGraph()
    x := g.Param("x", 8)
    sum := g.Add(x, g.Const(8, 1))
    v, err := Eval(sum, map[string]int64 { "x": 127 })
    require.NoError(t, err)
    require.Equal(t, int64(-128), v)
    v, err = Eval(g.Below(g.Const(8, -1), x), map[string]int64 { "x": 1 })
    require.NoError(t, err)
    require.Equal(t, int64(0), v)
    _, err = Eval(g.Phi(ir.KindValue, g.Merge()), nil)
    require.Error(t, err)
}
