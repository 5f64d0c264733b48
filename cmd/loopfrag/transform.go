/*
 * Copyright 2022 CloudWeGo Authors
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


package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cloudwego/loopfrag"
	"github.com/cloudwego/loopfrag/internal/emu"
	"github.com/cloudwego/loopfrag/internal/ir"
	"github.com/cloudwego/loopfrag/internal/kernel"
	"github.com/cloudwego/loopfrag/internal/loop"
)

const (
	_DefaultArrayLength = 16
)

var (
	okString   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failString = color.New(color.FgRed, color.Bold).SprintFunc()
)

// _Step transforms the loop of a graph once.
type _Step func(g *ir.Graph, lp *loop.Loop, options ...loopfrag.Option) error

// _Check compares the results of the original and the transformed graph.
type _Check func(before *emu.Result, after *emu.Result, lb *ir.Node) error

func newPeelCmd(app *_App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peel <kernel.yaml>",
		Short: "Peel the first iterations of the kernel loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.transform(cmd, args[0], loopfrag.Peel, samePeeledResult)
		},
	}
	cmd.Flags().Int("times", 1, "number of iterations to peel")
	return cmd
}

func newUnrollCmd(app *_App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unroll <kernel.yaml>",
		Short: "Partially unroll the kernel loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strides := make(loop.OpaqueStrides)
			step := func(g *ir.Graph, lp *loop.Loop, options ...loopfrag.Option) error {
				return loopfrag.PartialUnroll(g, lp, strides, options...)
			}
			return app.transform(cmd, args[0], step, noExtraIterations)
		},
	}
	cmd.Flags().Int("times", 1, "number of times the body is doubled")
	return cmd
}

func newDumpCmd(app *_App) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <kernel.yaml>",
		Short: "Print the graph of a kernel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := app.build(args[0])
			if err != nil {
				return err
			}
			if app.config.GetString("dot") != "" {
				return app.writeDOT(cmd, g, args[0])
			}
			fmt.Fprint(cmd.OutOrStdout(), g.Dump())
			return nil
		},
	}
}

func (self *_App) build(path string) (*ir.Graph, error) {
	k, err := kernel.Load(path)
	if err != nil {
		return nil, err
	}
	g, err := k.Build()
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	g.Debug = self.logger
	return g, nil
}

func (self *_App) transform(cmd *cobra.Command, path string, step _Step, check _Check) error {
	out := cmd.OutOrStdout()
	times := self.config.GetInt("times")

	/* the original graph is kept for comparison */
	ref, err := self.build(path)
	if err != nil {
		return err
	}
	g, err := self.build(path)
	if err != nil {
		return err
	}

	/* kernels have exactly one loop */
	loops := loop.Detect(g)
	if len(loops) != 1 {
		return errors.Errorf("%s: expected exactly one loop, got %d", path, len(loops))
	}

	/* transform the loop */
	lp := loops[0]
	options := []loopfrag.Option{
		loopfrag.WithVerify(self.config.GetBool("verify")),
		loopfrag.WithLogger(self.logger),
	}
	for i := 0; i < times; i++ {
		if err = step(g, lp, options...); err != nil {
			fmt.Fprintf(out, "%s %s\n", failString("FAIL"), err)
			return err
		}
	}

	/* report the shape of the new graph */
	lb := lp.LoopBegin()
	fmt.Fprintf(out, "%s %s: %d nodes, peelings %d, unroll factor %d\n", okString("OK"), path, len(g.Nodes()), lb.Peelings, lb.UnrollFactor)
	if self.config.GetString("dot") != "" {
		if err = self.writeDOT(cmd, g, path); err != nil {
			return err
		}
	}

	/* compare the results if asked to */
	params, err := cmd.Flags().GetStringToInt64("run")
	if err != nil || len(params) == 0 {
		return err
	}
	return self.compare(out, ref, g, lb, params, check)
}

func (self *_App) compare(out io.Writer, ref *ir.Graph, g *ir.Graph, lb *ir.Node, params map[string]int64, check _Check) error {
	mem := makeMemory(ref, params)
	before, err := emu.Run(ref, params, mem)
	if err != nil {
		return errors.Wrap(err, "original graph")
	}
	after, err := emu.Run(g, params, mem)
	if err != nil {
		return errors.Wrap(err, "transformed graph")
	}

	/* print both results */
	fmt.Fprintf(out, "  before: %s\n", before)
	fmt.Fprintf(out, "  after:  %s\n", after)
	if err = check(before, after, lb); err != nil {
		fmt.Fprintf(out, "%s %s\n", failString("FAIL"), err)
		return err
	}
	fmt.Fprintf(out, "%s results match\n", okString("OK"))
	return nil
}

func (self *_App) writeDOT(cmd *cobra.Command, g *ir.Graph, name string) error {
	buf, err := g.MarshalDOT(name)
	if err != nil {
		return errors.Wrap(err, "cannot encode the graph")
	}
	if dst := self.config.GetString("dot"); dst == "-" {
		_, err = cmd.OutOrStdout().Write(buf)
		return err
	} else {
		return errors.Wrapf(os.WriteFile(dst, buf, 0644), "cannot write %s", dst)
	}
}

func samePeeledResult(before *emu.Result, after *emu.Result, _ *ir.Node) error {
	switch {
	case before.Deoptimized() != after.Deoptimized():
		return errors.New("deoptimization differs")
	case !before.Deoptimized() && before.Value != after.Value:
		return errors.Errorf("returned %d instead of %d", after.Value, before.Value)
	case before.Safepoints != after.Safepoints:
		return errors.Errorf("%d safepoints instead of %d", after.Safepoints, before.Safepoints)
	default:
		return nil
	}
}

// noExtraIterations checks that the unrolled loop never runs past the trip
// count of the original loop. The remaining iterations are left to the
// code following the loop.
func noExtraIterations(before *emu.Result, after *emu.Result, lb *ir.Node) error {
	if n := after.BackEdges * lb.UnrollFactor; n > before.BackEdges {
		return errors.Errorf("%d iterations instead of at most %d", n, before.BackEdges)
	} else {
		return nil
	}
}

// makeMemory fills every array parameter with its indices. The length comes
// from the len_<name> parameter, which is added when missing.
func makeMemory(g *ir.Graph, params map[string]int64) emu.Memory {
	mem := make(emu.Memory)
	for _, p := range g.Nodes() {
		if p.Op != ir.OpParam || !strings.HasPrefix(p.Name, "len_") {
			continue
		}

		/* default length */
		n, ok := params[p.Name]
		if !ok {
			n = _DefaultArrayLength
			params[p.Name] = n
		}

		/* a[i] = i */
		buf := make([]int64, n)
		for i := range buf {
			buf[i] = int64(i)
		}
		mem[strings.TrimPrefix(p.Name, "len_")] = buf
	}
	return mem
}
