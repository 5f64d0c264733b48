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

package kernel

import (
    `testing`

    `github.com/google/go-cmp/cmp`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/loopfrag/internal/emu`
    `github.com/cloudwego/loopfrag/internal/ir`
)

func mustBuild(t *testing.T, path string) *ir.Graph {
    k, err := Load(path)
    require.NoError(t, err)
    g, err := k.Build()
    require.NoError(t, err)
    require.NoError(t, ir.Verify(g), g.Dump())
    return g
}

func TestKernel_Parse(t *testing.T) {
    k, err := Load("testdata/sum.yaml")
    require.NoError(t, err)
    exp := &Kernel {
        Name   : "sum",
        Bits   : 32,
        Params : []string { "n" },
        Arrays : []string { "a" },
        Vars   : []Var { { Name: "s", Init: Operand { Const: 0 } } },
        Loop   : Loop {
            Var       : "i",
            Init      : Operand { Const: 0 },
            Limit     : Operand { Var: "n" },
            Stride    : 1,
            Direction : "up",
            Compare   : "signed",
            Form      : "while",
            Safepoint : true,
        },
        Body   : []Stmt {
            { Op: "load", Dst: "t", Array: "a", Index: Operand { Var: "i" } },
            { Op: "add", Dst: "s", X: Operand { Var: "s" }, Y: Operand { Var: "t" } },
        },
        Guards : "inside",
        Return : Operand { Var: "s" },
    }
    require.Empty(t, cmp.Diff(exp, k))
}

func TestKernel_ParseRejectsInvalidKernels(t *testing.T) {
    for _, src := range []string {
        "loop: { init: 0, limit: 1, stride: 1 }",
        "loop: { var: i, limit: 1, stride: 0 }",
        "loop: { var: i, limit: 1, stride: -1 }",
        "loop: { var: i, limit: 1, stride: 1, form: until }",
        "bits: 12\nloop: { var: i, limit: 1, stride: 1 }",
        "guards: everywhere\nloop: { var: i, limit: 1, stride: 1 }",
        "loop: { var: i, limit: [1], stride: 1 }",
    } {
        _, err := Parse([]byte(src))
        require.Error(t, err, src)
    }
}

func TestKernel_BuildRejectsUndefinedNames(t *testing.T) {
    k, err := Parse([]byte("loop: { var: i, limit: n, stride: 1 }"))
    require.NoError(t, err)
    _, err = k.Build()
    require.Error(t, err)
    require.Contains(t, err.Error(), `undefined variable "n"`)
}

func TestKernel_Sum(t *testing.T) {
    g := mustBuild(t, "testdata/sum.yaml")
    require.True(t, g.FloatingGuards)
    res, err := emu.Run(g, map[string]int64 { "n": 4, "len_a": 4 }, emu.Memory { "a": { 1, 2, 3, 4 } })
    require.NoError(t, err)
    require.Equal(t, int64(10), res.Value)
    require.Equal(t, 4, res.Safepoints)
}

func TestKernel_SearchBreaksEarly(t *testing.T) {
    g := mustBuild(t, "testdata/search.yaml")
    require.True(t, g.FrameStates)
    mem := emu.Memory { "a": { 5, 7, 9 } }
    for key, exp := range map[int64]int64 { 5: 0, 7: 1, 9: 2, 4: 2 } {
        res, err := emu.Run(g, map[string]int64 { "n": 3, "len_a": 3, "key": key }, mem)
        require.NoError(t, err)
        require.Equal(t, exp, res.Value, "key %d", key)
    }
}

func TestKernel_CountDown(t *testing.T) {
    g := mustBuild(t, "testdata/countdown.yaml")
    res, err := emu.Run(g, map[string]int64 { "n": 10, "len_a": 11 }, emu.Memory { "a": make([]int64, 11) })
    require.NoError(t, err)
    require.Equal(t, int64(30), res.Value)
    require.Equal(t, []int64 { 0, 0, 28, 0, 24, 0, 18, 0, 10, 0, 0 }, res.Memory["a"])
}

func TestKernel_DoWhile(t *testing.T) {
    g := mustBuild(t, "testdata/dowhile.yaml")
    for n, exp := range map[int64]int64 { 0: 3, 1: 3, 3: 27 } {
        res, err := emu.Run(g, map[string]int64 { "n": n }, nil)
        require.NoError(t, err)
        require.Equal(t, exp, res.Value, "n = %d", n)
    }
}
