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

package loopfrag

import (
    `testing`

    `github.com/pkg/errors`
    `github.com/stretchr/testify/require`
    `go.uber.org/zap`
    `go.uber.org/zap/zaptest/observer`
    `github.com/cloudwego/loopfrag/internal/emu`
    `github.com/cloudwego/loopfrag/internal/ir`
    `github.com/cloudwego/loopfrag/internal/kernel`
    `github.com/cloudwego/loopfrag/internal/loop`
)

const (
    _SumKernel = `
name: sum
params: [n]
arrays: [a]
vars: [{ name: s, init: 0 }]
loop: { var: i, init: 0, limit: n, stride: 1, safepoint: true }
body:
  - { op: load, dst: t, array: a, index: i }
  - { op: add, dst: s, x: s, y: t }
return: s
`
    _SkipKernel = `
name: skip
params: [n, m]
vars: [{ name: s, init: 0 }, { name: c, init: 0 }]
loop: { var: i, init: 0, limit: n, stride: 1, safepoint: true }
skip: { op: lt, x: i, y: m }
body:
  - { op: add, dst: s, x: s, y: i }
  - { op: add, dst: c, x: c, y: 1 }
return: s
`
)

func build(t *testing.T, src string) *ir.Graph {
    k, err := kernel.Parse([]byte(src))
    require.NoError(t, err)
    g, err := k.Build()
    require.NoError(t, err)
    return g
}

func onlyLoop(t *testing.T, g *ir.Graph) *loop.Loop {
    loops := loop.Detect(g)
    require.Len(t, loops, 1)
    return loops[0]
}

func prefixSum(n int64) int64 {
    return n * (n + 1) / 2
}

func countingMemory(n int) emu.Memory {
    buf := make([]int64, n)
    for i := range buf {
        buf[i] = int64(i + 1)
    }
    return emu.Memory { "a": buf }
}

func TestTransform_DefaultPipelineKeepsResults(t *testing.T) {
    ref := build(t, _SumKernel)
    g := build(t, _SumKernel)
    res, err := Transform(g, WithVerify(true), WithMaxPeelings(1))
    require.NoError(t, err)
    require.Equal(t, Result { Peeled: 1 }, res)
    lb := onlyLoop(t, g).LoopBegin()
    require.Equal(t, 1, lb.Peelings)
    require.Equal(t, 1, lb.UnrollFactor)

    /* the graph computes the same sums */
    mem := countingMemory(10)
    for n := int64(0); n <= 10; n++ {
        params := map[string]int64 { "n": n, "len_a": 10 }
        exp, err := emu.Run(ref, params, mem)
        require.NoError(t, err)
        got, err := emu.Run(g, params, mem)
        require.NoError(t, err)
        require.Equal(t, prefixSum(n), exp.Value)
        require.Equal(t, exp.Value, got.Value, "n = %d", n)
    }
}

func TestTransform_UnrollLeavesTrailingIterations(t *testing.T) {
    g := build(t, _SumKernel)
    res, err := Transform(g, WithVerify(true), WithPasses("peel", "unroll"), WithMaxPeelings(1), WithMaxUnrollFactor(8))
    require.NoError(t, err)
    require.Equal(t, Result { Peeled: 1, Unrolled: 3 }, res)
    lb := onlyLoop(t, g).LoopBegin()
    require.Equal(t, 1, lb.Peelings)
    require.Equal(t, 8, lb.UnrollFactor)

    /* the loop stops at a whole number of unrolled iterations after the
     * peeled one, at most one unrolled iteration before the trip count */
    mem := countingMemory(10)
    for n := int64(1); n <= 10; n++ {
        got, err := emu.Run(g, map[string]int64 { "n": n, "len_a": 10 }, mem)
        require.NoError(t, err)
        k := int64(1)
        for prefixSum(k) < got.Value {
            k++
        }
        require.Equal(t, prefixSum(k), got.Value, "n = %d", n)
        require.Zero(t, (k - 1) % 8, "n = %d", n)
        require.LessOrEqual(t, k, n)
        require.LessOrEqual(t, n - k, int64(8), "n = %d", n)
    }
}

func TestTransform_PeelingKeepsResults(t *testing.T) {
    ref := build(t, _SumKernel)
    g := build(t, _SumKernel)
    res, err := Transform(g, WithVerify(true), WithPasses("peel", "peel"), WithMaxPeelings(2))
    require.NoError(t, err)
    require.Equal(t, 2, res.Peeled)
    require.Equal(t, 2, onlyLoop(t, g).LoopBegin().Peelings)

    /* a third round is refused by the limit */
    res, err = Transform(g, WithPasses("peel"), WithMaxPeelings(2))
    require.NoError(t, err)
    require.Equal(t, Result{}, res)

    /* same results */
    mem := emu.Memory { "a": { 9, 8, 7 } }
    for _, n := range []int64 { 0, 1, 2, 3 } {
        params := map[string]int64 { "n": n, "len_a": 3 }
        exp, err := emu.Run(ref, params, mem)
        require.NoError(t, err)
        got, err := emu.Run(g, params, mem)
        require.NoError(t, err)
        require.Equal(t, exp.Value, got.Value, "n = %d", n)
    }
}

func TestTransform_SkipsUnsupportedLoops(t *testing.T) {
    core, logs := observer.New(zap.DebugLevel)
    g := build(t, _SkipKernel)
    res, err := Transform(g, WithVerify(true), WithPasses("peel", "unroll"), WithMaxPeelings(1), WithLogger(zap.New(core)))
    require.NoError(t, err)
    require.Equal(t, Result { Peeled: 1, Rejected: 1 }, res)
    require.Equal(t, 1, logs.FilterMessage("loop transformed").Len())
    require.Equal(t, 1, logs.FilterMessage("loop skipped").Len())
}

func TestPeel_RejectsForeignLoops(t *testing.T) {
    g := build(t, _SumKernel)
    lp := onlyLoop(t, build(t, _SumKernel))
    err := Peel(g, lp)
    require.Error(t, err)
    require.Contains(t, err.Error(), "does not belong to the graph")
}

func TestPartialUnroll_ReportsShapeErrors(t *testing.T) {
    g := build(t, _SkipKernel)
    err := PartialUnroll(g, onlyLoop(t, g), nil, WithVerify(true))
    require.Error(t, err)
    var e *UnsupportedShapeError
    require.True(t, errors.As(err, &e))
    require.Equal(t, "not a counted loop", e.Reason)
}

func TestPartialUnroll_SharesStrides(t *testing.T) {
    g := build(t, _SumKernel)
    strides := make(loop.OpaqueStrides)
    lp := onlyLoop(t, g)
    require.NoError(t, PartialUnroll(g, lp, strides, WithVerify(true)))
    require.NoError(t, PartialUnroll(g, lp, strides, WithVerify(true)))
    require.Len(t, strides, 1)
    require.Equal(t, 1, g.LiveCount(ir.OpOpaque))
    require.Equal(t, 4, lp.LoopBegin().UnrollFactor)
}

func TestOptions_Validation(t *testing.T) {
    require.Panics(t, func() { WithPasses("fuse") })
    require.Panics(t, func() { WithMaxUnrollFactor(1) })
    require.Panics(t, func() { WithMaxPeelings(-1) })
    old := SetMaxPeelings(3)
    require.Equal(t, 3, SetMaxPeelings(old))
}

func TestPassError_Unwraps(t *testing.T) {
    err := errors.WithStack(PassError { Pass: "peel", Loop: 4, Cause: &VerifyError { Problems: []string { "oops" } } })
    require.Contains(t, err.Error(), "PassError(peel, loop 4)")
    var e *VerifyError
    require.True(t, errors.As(err, &e))
    require.Equal(t, []string { "oops" }, e.Problems)
}
