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
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/loopfrag/internal/emu`
    `github.com/cloudwego/loopfrag/internal/ir`
    `github.com/cloudwego/loopfrag/internal/kernel`
)

const _UnrollRounds = 40

type _UnrollCase struct {
    name   string
    src    string
    guards string
    limit  string
    gen    func(f *gofakeit.Faker) (map[string]int64, emu.Memory)
}

func randomArray(f *gofakeit.Faker, n int) []int64 {
    ret := make([]int64, n)
    for i := range ret {
        ret[i] = int64(f.Number(-1000, 1000))
    }
    return ret
}

func genSum(f *gofakeit.Faker) (map[string]int64, emu.Memory) {
    return map[string]int64 { "n": int64(f.Number(0, 32)), "len_a": 32 }, emu.Memory { "a": randomArray(f, 32) }
}

var unrollCases = []_UnrollCase {
    { name: "sum", src: _SumKernel, limit: "n", gen: genSum },
    { name: "sum-guarded", src: _SumKernel, guards: "inside", limit: "n", gen: genSum },
    { name: "sum-header-guard", src: _SumKernel, guards: "header", limit: "n", gen: genSum },
    {
        name  : "countdown",
        src   : _CountDownKernel,
        limit : "m",
        gen   : func(f *gofakeit.Faker) (map[string]int64, emu.Memory) {
            n := f.Number(0, 40)
            return map[string]int64 { "n": int64(n), "m": int64(f.Number(0, n)), "len_a": 41 }, emu.Memory { "a": make([]int64, 41) }
        },
    },
    {
        name  : "unsigned",
        src   : _UnsignedKernel,
        limit : "n",
        gen   : func(f *gofakeit.Faker) (map[string]int64, emu.Memory) {
            return map[string]int64 { "n": int64(f.Number(0, 300)) }, nil
        },
    },
    {
        name  : "empty",
        src   : _EmptyKernel,
        limit : "n",
        gen   : func(f *gofakeit.Faker) (map[string]int64, emu.Memory) {
            return map[string]int64 { "n": int64(f.Number(-5, 50)) }, nil
        },
    },
}

func (self _UnrollCase) kernel(t *testing.T, counter bool) *kernel.Kernel {
    k := parseKernel(t, self.src)
    k.Guards = self.guards
    if counter {
        k.Return = kernel.Operand { Var: k.Loop.Var }
    }
    return k
}

func unroll(t *testing.T, g *ir.Graph, times int) *Loop {
    lp := onlyLoop(t, g)
    strides := make(OpaqueStrides)
    for i := 0; i < times; i++ {
        require.NoError(t, PartialUnroll(lp, strides))
        require.NoError(t, ir.Verify(g), g.Dump())
    }
    require.Equal(t, 1 << times, lp.LoopBegin().UnrollFactor)
    return lp
}

func TestPartialUnroll_RunsWholeIterations(t *testing.T) {
    for _, tc := range unrollCases {
        t.Run(tc.name, func(t *testing.T) {
            for times := 1; times <= 3; times++ {
                f := gofakeit.New(int64(times))
                ref := buildKernel(t, tc.kernel(t, false))
                k := tc.kernel(t, true)
                g := buildKernel(t, tc.kernel(t, false))
                gi := buildKernel(t, k)
                unroll(t, g, times)
                unroll(t, gi, times)

                /* the trip of the unrolled loop is a multiple of the unroll factor */
                step := k.Loop.Stride << times
                for i := 0; i < _UnrollRounds; i++ {
                    params, mem := tc.gen(f)
                    msg := fmt.Sprintf("unrolled %d times with %v", times, params)
                    start := k.Loop.Init.Const
                    if !k.Loop.Init.IsConst() {
                        start = params[k.Loop.Init.Var]
                    }

                    /* the counter stops before the limit */
                    last := run(t, gi, params, mem).Value
                    if k.Loop.Direction == "up" {
                        require.LessOrEqual(t, last, max64(params[tc.limit], start), msg)
                    } else {
                        require.GreaterOrEqual(t, last, min64(params[tc.limit], start), msg)
                    }
                    require.Zero(t, (last - start) % step, msg)

                    /* and computes what the original loop computes up to there */
                    exp := copyParams(params)
                    exp[tc.limit] = last
                    requireSameResult(t, run(t, ref, exp, mem), run(t, g, params, mem), msg)
                }
            }
        })
    }
}

func TestPartialUnroll_EarlyExits(t *testing.T) {
    f := gofakeit.New(7)
    k := parseKernel(t, _SearchKernel)
    ref := buildKernel(t, k)
    g := buildKernel(t, k)
    k.Return = kernel.Operand { Var: "i" }
    gi := buildKernel(t, k)
    unroll(t, g, 2)
    unroll(t, gi, 2)

    /* the copies of the break got loop exits of their own */
    lb := onlyLoop(t, g).LoopBegin()
    require.Len(t, lb.LoopExits(), 5)
    for _, exit := range lb.LoopExits() {
        require.NotNil(t, exit.StateAfter(), exit.String())
    }

    /* search random arrays */
    for i := 0; i < _UnrollRounds; i++ {
        n := f.Number(0, 16)
        arr := make([]int64, 16)
        for j := range arr {
            arr[j] = int64(j * 7 + 1)
        }
        key := int64(-5)
        if f.Bool() {
            key = arr[f.Number(0, 15)]
        }

        /* where did the unrolled loop stop */
        mem := emu.Memory { "a": arr }
        params := map[string]int64 { "n": int64(n), "len_a": 16, "key": key }
        msg := fmt.Sprintf("%v", params)
        last := run(t, gi, params, mem).Value
        res := run(t, g, params, mem)
        require.LessOrEqual(t, last, int64(n), msg)

        /* either all the iterations up to there were executed, or the loop broke there */
        exp := copyParams(params)
        exp["n"] = last
        if ret := run(t, ref, exp, mem); ret.Value == res.Value {
            continue
        }
        exp["n"] = last + 1
        require.Equal(t, last, res.Value, msg)
        require.Equal(t, run(t, ref, exp, mem).Value, res.Value, msg)
    }
}

func TestPartialUnroll_CopiedBreaksLeaveThroughLoopExits(t *testing.T) {
    ref := build(t, _SearchKernel)
    g := build(t, _SearchKernel)
    lp := onlyLoop(t, g)
    lb := lp.LoopBegin()
    strides := make(OpaqueStrides)

    /* 2 exits, then one more per copied break */
    for i, exits := range []int { 3, 5, 9 } {
        require.NoError(t, PartialUnroll(lp, strides), "round %d\n%s", i, g.Dump())
        require.NoError(t, ir.Verify(g), g.Dump())
        require.Len(t, lb.LoopExits(), exits)

        /* every exit directly follows its branch */
        for _, exit := range lb.LoopExits() {
            require.Equal(t, ir.OpIf, exit.Pred().Op, exit.String())
        }
        for _, p := range g.Nodes() {
            if p.Op == ir.OpBegin && p.Next() != nil {
                require.NotEqual(t, ir.OpLoopExit, p.Next().Op, p.String())
            }
        }
    }
    require.Equal(t, 8, lb.UnrollFactor)

    /* a break inside the first unrolled iteration */
    mem := arrayMem(5, 9, 2, 7, 1, 3, 8, 6, 4, 0, 11, 12, 13, 14, 15, 16)
    params := map[string]int64 { "n": 16, "len_a": 16, "key": 2 }
    exp := run(t, ref, params, mem)
    require.Equal(t, int64(2), exp.Value)
    requireSameResult(t, exp, run(t, g, params, mem), "break at 2")
}

func TestPartialUnroll_OpaqueStrideAccumulates(t *testing.T) {
    g := build(t, _SumKernel)
    lp := onlyLoop(t, g)
    lb := lp.LoopBegin()
    strides := make(OpaqueStrides)

    /* the first unrolling clamps the limit */
    require.NoError(t, PartialUnroll(lp, strides))
    opaque := strides[lb]
    require.NotNil(t, opaque)
    require.Equal(t, ir.OpOpaque, opaque.Op)
    require.Equal(t, int64(2), opaque.Input(0).Value)
    c := lp.Counted()
    require.NotNil(t, c)
    require.Equal(t, ir.OpConditional, c.Limit.Op)
    require.Equal(t, int64(2), c.IV.Stride)

    /* the second one only moves the stride */
    require.NoError(t, PartialUnroll(lp, strides))
    require.Same(t, opaque, strides[lb])
    require.Equal(t, int64(4), opaque.Input(0).Value)
    require.Equal(t, int64(4), lp.Counted().IV.Stride)
    require.Equal(t, 1, g.LiveCount(ir.OpConditional))
}

func TestPartialUnroll_KeepsOneSafepointPerIteration(t *testing.T) {
    g := build(t, _SumKernel)
    params := map[string]int64 { "n": 8, "len_a": 8 }
    mem := arrayMem(1, 2, 3, 4, 5, 6, 7, 8)
    before := run(t, g, params, mem)
    unroll(t, g, 1)
    require.Equal(t, 1, g.LiveCount(ir.OpSafepoint))
    require.Equal(t, 8, before.Safepoints)

    /* the clamped limit leaves the last two iterations to the caller */
    after := run(t, g, params, mem)
    require.Equal(t, int64(21), after.Value)
    require.Equal(t, 3, after.Safepoints)
    require.Equal(t, 3, after.BackEdges)
}

func TestPartialUnroll_AnchorsOfTheCopiedHeader(t *testing.T) {
    k := parseKernel(t, _SumKernel)
    k.Guards = "header"
    g := buildKernel(t, k)
    lb := onlyLoop(t, g).LoopBegin()
    require.Zero(t, g.LiveCount(ir.OpValueAnchor))
    unroll(t, g, 1)

    /* the guard of the second load is anchored in the body */
    require.Equal(t, 1, g.LiveCount(ir.OpValueAnchor))
    var anchors []*ir.Node
    for _, p := range g.Nodes() {
        if p.Op == ir.OpGuard {
            anchors = append(anchors, p.GuardAnchor())
        }
    }
    require.Len(t, anchors, 2)
    require.Contains(t, anchors, lb)
    for _, a := range anchors {
        require.True(t, a == lb || a.Op == ir.OpValueAnchor, a.String())
    }
}

func TestPartialUnroll_Rejections(t *testing.T) {
    for _, tc := range []struct {
        name   string
        src    string
        reason string
    } {
        { "inverted", _DoWhileKernel, "inverted" },
        { "back-edges", _SkipKernel, "not a counted loop" },
        { "stride-overflow", "name: o\nbits: 8\nparams: [n]\nloop: { var: i, init: 0, limit: n, stride: 100 }\nreturn: i\n", "overflows" },
    } {
        t.Run(tc.name, func(t *testing.T) {
            g := build(t, tc.src)
            nodes := g.NodeCount()
            err := PartialUnroll(onlyLoop(t, g), make(OpaqueStrides))
            require.Error(t, err)
            require.Contains(t, err.Error(), tc.reason)
            require.Equal(t, nodes, g.NodeCount())
        })
    }
}

func TestPartialUnroll_RejectsSharedConditions(t *testing.T) {
    g := build(t, _SumKernel)
    lp := onlyLoop(t, g)
    cond := lp.Counted().LimitTest.Input(0)
    g.Conditional(cond, g.Const(32, 1), g.Const(32, 0))
    err := CheckPartialUnroll(lp)
    require.Error(t, err)
    require.Contains(t, err.Error(), "shared")
}

func TestPartialUnroll_RejectsOuterLoops(t *testing.T) {
    _, lbo, lbi := nested(t)
    require.NoError(t, CheckPartialUnroll(Of(lbi)))
    err := CheckPartialUnroll(Of(lbo))
    require.Error(t, err)
    require.Contains(t, err.Error(), "contains other loops")
}

func TestPartialUnroll_AfterPeeling(t *testing.T) {
    f := gofakeit.New(11)
    ref := build(t, _SumKernel)
    g := build(t, _SumKernel)
    lp := onlyLoop(t, g)
    require.NoError(t, Peel(lp))
    require.NoError(t, PartialUnroll(lp, make(OpaqueStrides)))
    require.NoError(t, ir.Verify(g), g.Dump())

    /* the unrolled loop starts at 1 and stops at the first odd counter
     * which is not below the clamped limit */
    for i := 0; i < _UnrollRounds; i++ {
        params, mem := genSum(f)
        res := run(t, g, params, mem)
        exp := copyParams(params)
        if n := params["n"]; n >= 1 {
            last := n - 2
            if last % 2 == 0 {
                last++
            }
            if last < 1 {
                last = 1
            }
            exp["n"] = last
        }
        require.Equal(t, run(t, ref, exp, mem).Value, res.Value, "%v", params)
    }
}

func copyParams(m map[string]int64) map[string]int64 {
    ret := make(map[string]int64, len(m))
    for k, v := range m {
        ret[k] = v
    }
    return ret
}

func max64(a int64, b int64) int64 {
    if a > b {
        return a
    } else {
        return b
    }
}

func min64(a int64, b int64) int64 {
    if a < b {
        return a
    } else {
        return b
    }
}
