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

// Package loopfrag implements loop peeling and partial unrolling on a
// sea-of-nodes graph.
package loopfrag

import (
    `github.com/pkg/errors`
    `go.uber.org/zap`
    `github.com/cloudwego/loopfrag/internal/ir`
    `github.com/cloudwego/loopfrag/internal/loop`
    `github.com/cloudwego/loopfrag/internal/opts`
)

var defaultPasses = []string {
    "peel",
}

// Result counts the work done by Transform.
type Result struct {
    Peeled   int
    Unrolled int
    Rejected int
}

// Context is shared by every pass of one Transform call.
type Context struct {
    Graph   *ir.Graph
    Options opts.Options
    Strides loop.OpaqueStrides
    Result  Result
}

func newContext(g *ir.Graph, options []Option) *Context {
    ret := &Context {
        Graph   : g,
        Options : opts.GetDefaultOptions(),
        Strides : make(loop.OpaqueStrides),
    }

    /* apply the options */
    for _, fn := range options {
        fn(&ret.Options)
    }

    /* attach the logger if any */
    if ret.Options.Logger != nil {
        g.Debug = ret.Options.Logger
    }
    return ret
}

// check runs fn on lp and verifies the graph afterwards when asked to.
func (self *Context) check(pass string, lp *loop.Loop, fn func() error) error {
    g := self.Graph
    id := lp.LoopBegin().ID
    nb := g.NodeCount()

    /* the loop must come from this graph */
    if lp.Graph() != g {
        return errors.Errorf("loop %d does not belong to the graph", id)
    }

    /* transform the loop */
    if err := fn(); err != nil {
        return errors.Wrapf(err, "%s loop %d", pass, id)
    }

    /* check the result */
    if self.Options.Verify {
        if err := ir.Verify(g); err != nil {
            return errors.WithStack(PassError { Pass: pass, Loop: id, Cause: err })
        }
    }

    /* log the transformation */
    g.Debug.Debug("loop transformed",
        zap.String("pass", pass),
        zap.Int("loop", id),
        zap.Int("nodes", g.NodeCount() - nb),
    )
    return nil
}

func (self *Context) run(desc *PassDescriptor) error {
    loops := loop.Detect(self.Graph)
    begins := make([]*ir.Node, 0, len(loops))

    /* innermost loops first */
    for i := len(loops) - 1; i >= 0; i-- {
        begins = append(begins, loops[i].LoopBegin())
    }

    /* apply the pass, loops removed by an earlier step are skipped */
    for _, lb := range begins {
        if lb.IsDeleted() {
            continue
        }
        if err := desc.Pass.Apply(self, loop.Of(lb)); err == nil {
            continue
        } else if !isUnsupported(err) {
            return err
        } else {
            self.Result.Rejected++
            self.Graph.Debug.Debug("loop skipped", zap.String("pass", desc.Key), zap.Error(err))
        }
    }
    return nil
}

func isUnsupported(err error) bool {
    var e *UnsupportedShapeError
    return errors.As(err, &e)
}

// Peel duplicates the first iteration of lp in front of it.
func Peel(g *ir.Graph, lp *loop.Loop, options ...Option) error {
    return newContext(g, options).check("peel", lp, func() error { return loop.Peel(lp) })
}

// PartialUnroll doubles the body of the counted loop lp. strides keeps the
// opaque strides of the loops across calls, and may be nil.
//
// The unrolled loop stops before running past the original trip count, so
// up to UnrollFactor-1 iterations are left over. The caller must run them
// after the loop, usually with a copy of the original loop.
func PartialUnroll(g *ir.Graph, lp *loop.Loop, strides loop.OpaqueStrides, options ...Option) error {
    return newContext(g, options).check("unroll", lp, func() error { return loop.PartialUnroll(lp, strides) })
}

// Transform runs the selected passes over every loop of g. Loops with a
// shape a pass cannot handle are skipped and counted in Result.Rejected.
//
// The default pipeline only peels, which keeps the results of the graph.
// Selecting "unroll" with WithPasses leaves the trailing iterations of every
// unrolled loop to the caller, see PartialUnroll.
func Transform(g *ir.Graph, options ...Option) (Result, error) {
    ctx := newContext(g, options)
    passes := ctx.Options.Passes

    /* use the default pipeline if not specified */
    if len(passes) == 0 {
        passes = defaultPasses
    }

    /* run every pass */
    for _, key := range passes {
        if desc := lookupPass(key); desc == nil {
            return ctx.Result, errors.Errorf("unknown pass: %s", key)
        } else if err := ctx.run(desc); err != nil {
            return ctx.Result, err
        }
    }
    return ctx.Result, nil
}
