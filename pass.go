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
    `go.uber.org/zap`
    `github.com/cloudwego/loopfrag/internal/loop`
)

// Pass transforms a single loop. Returning an UnsupportedShapeError skips
// the loop, any other error aborts Transform.
type Pass interface {
    Apply(*Context, *loop.Loop) error
}

type PassDescriptor struct {
    Pass Pass
    Name string
    Key  string
}

var Passes = [...]PassDescriptor {
    { Key: "peel"   , Name: "Loop Peeling"        , Pass: new(LoopPeeling) },
    { Key: "unroll" , Name: "Loop Partial Unroll" , Pass: new(LoopPartialUnroll) },
}

func lookupPass(key string) *PassDescriptor {
    for i := range Passes {
        if Passes[i].Key == key {
            return &Passes[i]
        }
    }
    return nil
}

// LoopPeeling peels the first iteration of every loop, as long as the loop
// was not peeled more than the configured number of times.
type LoopPeeling struct{}

func (LoopPeeling) Apply(ctx *Context, lp *loop.Loop) error {
    if !ctx.Options.CanPeel(lp.LoopBegin().Peelings) {
        return nil
    } else if err := ctx.check("peel", lp, func() error { return loop.Peel(lp) }); err != nil {
        return err
    } else {
        ctx.Result.Peeled++
        return nil
    }
}

// LoopPartialUnroll doubles the body of every counted loop until the
// configured unroll factor is reached. Like PartialUnroll, it leaves the
// trailing iterations of each loop to the caller.
type LoopPartialUnroll struct{}

func (LoopPartialUnroll) Apply(ctx *Context, lp *loop.Loop) error {
    for n := 0; ctx.Options.CanUnroll(lp.LoopBegin().UnrollFactor); n++ {
        err := ctx.check("unroll", lp, func() error { return loop.PartialUnroll(lp, ctx.Strides) })

        /* a loop that was unrolled at least once stops silently */
        if err == nil {
            ctx.Result.Unrolled++
        } else if n == 0 || !isUnsupported(err) {
            return err
        } else {
            ctx.Graph.Debug.Debug("unrolling stopped", zap.Int("factor", lp.LoopBegin().UnrollFactor), zap.Error(err))
            break
        }
    }
    return nil
}
