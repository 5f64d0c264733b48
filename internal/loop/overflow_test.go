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
    `math/big`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/require`
    `github.com/cloudwego/loopfrag/internal/emu`
    `github.com/cloudwego/loopfrag/internal/ir`
)

func domain(h IntegerHelper) (*big.Int, *big.Int) {
    if h.Signed {
        return big.NewInt(h.MinValue()), big.NewInt(h.MaxValue())
    } else {
        return new(big.Int), new(big.Int).SetUint64(ir.Unsigned(h.Bits, h.MaxValue()))
    }
}

func toInt64(h IntegerHelper, v *big.Int) int64 {
    if h.Signed {
        return ir.Wrap(h.Bits, v.Int64())
    } else {
        return ir.Wrap(h.Bits, int64(v.Uint64()))
    }
}

func exact(h IntegerHelper, v int64) *big.Int {
    if h.Signed {
        return big.NewInt(v)
    } else {
        return new(big.Int).SetUint64(ir.Unsigned(h.Bits, v))
    }
}

// clampedLimit computes the expected clamped limit with arbitrary precision.
func clampedLimit(h IntegerHelper, limit int64, stride int64) int64 {
    lo, hi := domain(h)
    v := new(big.Int).Sub(exact(h, limit), big.NewInt(stride))
    switch {
        case v.Cmp(lo) < 0 : return toInt64(h, lo)
        case v.Cmp(hi) > 0 : return toInt64(h, hi)
        default            : return toInt64(h, v)
    }
}

func evalClamp(t *testing.T, h IntegerHelper, dir Direction, limit int64, stride int64) int64 {
    g := ir.NewGraph()
    lp := g.Param("limit", h.Bits)
    opaque := g.Opaque(g.Const(h.Bits, stride))
    counted := &CountedInfo { Direction: dir, Helper: h }
    v, err := emu.Eval(PartialUnrollOverflowCheck(opaque, lp, counted), map[string]int64 { "limit": limit })
    require.NoError(t, err)
    return v
}

func TestPartialUnrollOverflowCheck_Boundaries(t *testing.T) {
    for _, bits := range []uint8 { 8, 16, 32, 64 } {
        for _, signed := range []bool { true, false } {
            h := IntegerHelper { Bits: bits, Signed: signed }
            lims := []int64 { h.MinValue(), h.MinValue() + 1, -1, 0, 1, 2, h.MaxValue() - 1, h.MaxValue() }
            for _, lim := range lims {
                for _, s := range []int64 { 2, 4, 6 } {
                    lim = ir.Wrap(bits, lim)
                    msg := fmt.Sprintf("bits=%d signed=%v limit=%d stride=%d", bits, signed, lim, s)
                    require.Equal(t, clampedLimit(h, lim, s), evalClamp(t, h, Up, lim, s), "up " + msg)
                    require.Equal(t, clampedLimit(h, lim, -s), evalClamp(t, h, Down, lim, -s), "down " + msg)
                }
            }
        }
    }
}

func TestPartialUnrollOverflowCheck_Random(t *testing.T) {
    f := gofakeit.New(42)
    for i := 0; i < 2000; i++ {
        bits := []uint8 { 8, 16, 32, 64 }[f.Number(0, 3)]
        h := IntegerHelper { Bits: bits, Signed: f.Bool() }
        lim := ir.Wrap(bits, f.Int64())

        /* any stride whose double still fits */
        s := ir.Wrap(bits, f.Int64()) >> 2
        if s < 0 {
            s = -s
        }
        if s == 0 {
            s = 1
        }
        s *= 2

        /* check both directions */
        msg := fmt.Sprintf("bits=%d signed=%v limit=%d stride=%d", bits, h.Signed, lim, s)
        require.Equal(t, clampedLimit(h, lim, s), evalClamp(t, h, Up, lim, s), "up " + msg)
        require.Equal(t, clampedLimit(h, lim, -s), evalClamp(t, h, Down, lim, -s), "down " + msg)
    }
}

func TestPartialUnrollOverflowCheck_ConstantLimit(t *testing.T) {
    g := ir.NewGraph()
    h := IntegerHelper { Bits: 32, Signed: true }
    limit := g.Const(32, 100)
    opaque := g.Opaque(g.Const(32, 4))
    v := PartialUnrollOverflowCheck(opaque, limit, &CountedInfo { Direction: Up, Helper: h })
    require.Equal(t, ir.OpConditional, v.Op)
    r, err := emu.Eval(v, nil)
    require.NoError(t, err)
    require.Equal(t, int64(96), r)
}

func TestStrideAdditionOverflows(t *testing.T) {
    for _, tc := range []struct {
        bits   uint8
        stride int64
        exp    bool
    } {
        { 8, 63, false },
        { 8, 64, true },
        { 8, -64, false },
        { 8, -65, true },
        { 32, 1 << 30 - 1, false },
        { 32, 1 << 30, true },
        { 64, 1 << 62 - 1, false },
        { 64, 1 << 62, true },
        { 64, -1 << 62, false },
    } {
        lp := &Loop { done: true, counted: &CountedInfo { IV: InductionVariable { Stride: tc.stride, Bits: tc.bits } } }
        require.Equal(t, tc.exp, StrideAdditionOverflows(lp), "%d bits, stride %d", tc.bits, tc.stride)
    }
}
