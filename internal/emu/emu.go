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
    `fmt`

    `github.com/pkg/errors`
    `github.com/cloudwego/loopfrag/internal/ir`
)

const (
    DefaultMaxSteps = 1 << 20
)

var (
    ErrStepLimit = errors.New("emu: step limit exceeded")
)

// Memory maps the name of an array parameter to its contents.
type Memory map[string][]int64

func (self Memory) clone() Memory {
    ret := make(Memory, len(self))
    for k, v := range self {
        ret[k] = append([]int64(nil), v...)
    }
    return ret
}

// Result is the outcome of running a graph.
type Result struct {
    Value      int64
    Deopt      *ir.Node
    Memory     Memory
    Steps      int
    Safepoints int
    BackEdges  int
}

// Deoptimized reports whether the run stopped on a failing guard.
func (self *Result) Deoptimized() bool {
    return self.Deopt != nil
}

func (self *Result) String() string {
    if self.Deopt != nil {
        return fmt.Sprintf("deopt at %s after %d steps", self.Deopt, self.Steps)
    } else {
        return fmt.Sprintf("return %d after %d steps (%d back edges, %d safepoints)", self.Value, self.Steps, self.BackEdges, self.Safepoints)
    }
}

type _Fault struct {
    err error
}

type _Deopt struct {
    guard *ir.Node
}

// Machine interprets a graph. Floating nodes are evaluated on demand, phis
// take their values when control enters their merge.
type Machine struct {
    MaxSteps int
    params   map[string]int64
    mem      Memory
    phis     map[*ir.Node]int64
    guards   map[*ir.Node]*ir.Node
    fixed    map[*ir.Node]int64
    cache    map[*ir.Node]int64
}

func NewMachine(params map[string]int64, mem Memory) *Machine {
    return &Machine {
        MaxSteps : DefaultMaxSteps,
        params   : params,
        mem      : mem.clone(),
        phis     : make(map[*ir.Node]int64),
        guards   : make(map[*ir.Node]*ir.Node),
        fixed    : make(map[*ir.Node]int64),
        cache    : make(map[*ir.Node]int64),
    }
}

// Run executes g from its start node with the given parameters and arrays.
// The arrays are copied, the final contents are reported in the result.
func Run(g *ir.Graph, params map[string]int64, mem Memory) (*Result, error) {
    return NewMachine(params, mem).Run(g)
}

// Eval evaluates a floating node with the given parameters.
func Eval(p *ir.Node, params map[string]int64) (ret int64, err error) {
    vm := NewMachine(params, nil)
    defer vm.recover(&err, nil)
    return vm.eval(p), nil
}

func (self *Machine) fault(format string, args ...interface{}) {
    panic(_Fault { errors.Errorf(format, args...) })
}

func (self *Machine) recover(err *error, res *Result) {
    if v := recover(); v != nil {
        switch e := v.(type) {
            case _Fault : *err = e.err
            case _Deopt : res.Deopt = e.guard
            default     : panic(v)
        }
    }
}

func (self *Machine) Run(g *ir.Graph) (res *Result, err error) {
    res = &Result { Memory: self.mem }
    defer self.recover(&err, res)

    /* execute the control flow */
    for p := g.Start.Next(); ; {
        if p == nil {
            self.fault("control flow ends without a return")
        }
        if res.Steps++; res.Steps > self.MaxSteps {
            return nil, errors.Wrapf(ErrStepLimit, "at %s", p)
        }

        /* execute the node */
        switch p.Op {
            case ir.OpBegin, ir.OpLoopExit, ir.OpValueAnchor: {
                p = p.Next()
            }

            case ir.OpSafepoint: {
                res.Safepoints++
                p = p.Next()
            }

            case ir.OpLoad: {
                arr, idx := self.element(p)
                self.cache = make(map[*ir.Node]int64)
                self.fixed[p] = arr[idx]
                p = p.Next()
            }

            case ir.OpStore: {
                arr, idx := self.element(p)
                arr[idx] = ir.Wrap(p.Input(2).Bits, self.eval(p.Input(2)))
                p = p.Next()
            }

            case ir.OpIf: {
                if self.eval(p.Input(0)) != 0 {
                    p = p.Successor(0)
                } else {
                    p = p.Successor(1)
                }
            }

            case ir.OpEnd: {
                m := p.Merge()
                if m == nil {
                    self.fault("%s does not flow into a merge", p)
                }
                self.enter(m, m.PredecessorIndex(p))
                p = m.Next()
            }

            case ir.OpLoopEnd: {
                lb := p.LoopBeginOf()
                res.BackEdges++
                self.enter(lb, lb.PredecessorIndex(p))
                p = lb.Next()
            }

            case ir.OpReturn: {
                res.Value = self.eval(p.Input(0))
                return res, nil
            }

            default: {
                self.fault("cannot execute %s", p)
            }
        }
    }
}

// element checks the guard of a memory access and locates the element.
func (self *Machine) element(p *ir.Node) ([]int64, int64) {
    gi := 2
    if p.Op == ir.OpStore {
        gi = 3
    }

    /* the access is only valid if its guard holds */
    if gd := p.Input(gi); gd != nil {
        self.check(gd)
    }

    /* locate the array */
    base := p.Input(0)
    arr, ok := self.mem[base.Name]
    if !ok {
        self.fault("%s: unknown array %q", p, base.Name)
    }

    /* bounds check */
    idx := self.eval(p.Input(1))
    if idx < 0 || idx >= int64(len(arr)) {
        self.fault("%s: index %d out of range [0, %d)", p, idx, len(arr))
    }
    return arr, idx
}

// enter transfers control into merge m through its i-th predecessor. All
// phis take their new values at once.
func (self *Machine) enter(m *ir.Node, i int) {
    phis := m.Phis()
    vals := make([]int64, len(phis))
    sels := make([]*ir.Node, len(phis))

    /* evaluate everything with the old values */
    for j, phi := range phis {
        if v := phi.PhiValueAt(i); phi.Kind == ir.KindGuard {
            sels[j] = v
        } else if v != nil {
            vals[j] = self.eval(v)
        }
    }

    /* then assign them */
    self.cache = make(map[*ir.Node]int64)
    for j, phi := range phis {
        if phi.Kind == ir.KindGuard {
            self.guards[phi] = sels[j]
        } else {
            self.phis[phi] = ir.Wrap(phi.Bits, vals[j])
        }
    }
}

// check deoptimizes when a guard fails.
func (self *Machine) check(p *ir.Node) {
    for p != nil {
        switch p.Op {
            case ir.OpGuard: {
                if (self.eval(p.GuardCondition()) != 0) == p.Negated {
                    panic(_Deopt { p })
                }
                return
            }
            case ir.OpPhi   : p = self.guards[p]
            case ir.OpProxy : p = p.ProxyValue()
            default         : return
        }
    }
}

func (self *Machine) eval(p *ir.Node) int64 {
    if p == nil {
        self.fault("evaluating a missing value")
    }
    if v, ok := self.cache[p]; ok {
        return v
    }
    v := self.compute(p)
    self.cache[p] = v
    return v
}

func (self *Machine) compute(p *ir.Node) int64 {
    switch p.Op {
        case ir.OpConst       : return p.Value
        case ir.OpOpaque      : return self.eval(p.Input(0))
        case ir.OpProxy       : return self.eval(p.ProxyValue())
        case ir.OpAdd         : return ir.Wrap(p.Bits, self.eval(p.Input(0)) + self.eval(p.Input(1)))
        case ir.OpSub         : return ir.Wrap(p.Bits, self.eval(p.Input(0)) - self.eval(p.Input(1)))
        case ir.OpMul         : return ir.Wrap(p.Bits, self.eval(p.Input(0)) * self.eval(p.Input(1)))
        case ir.OpLessThan    : return b2i(self.eval(p.Input(0)) < self.eval(p.Input(1)))
        case ir.OpEqual       : return b2i(self.eval(p.Input(0)) == self.eval(p.Input(1)))
        case ir.OpBelow       : return b2i(self.unsigned(p.Input(0)) < self.unsigned(p.Input(1)))
        case ir.OpParam       : return self.param(p)
        case ir.OpPhi         : return self.phi(p)
        case ir.OpLoad        : return self.load(p)
        case ir.OpConditional : return self.conditional(p)
        default               : self.fault("cannot evaluate %s", p); return 0
    }
}

func (self *Machine) unsigned(p *ir.Node) uint64 {
    return ir.Unsigned(p.Bits, self.eval(p))
}

func (self *Machine) param(p *ir.Node) int64 {
    if v, ok := self.params[p.Name]; ok {
        return ir.Wrap(p.Bits, v)
    }
    self.fault("missing parameter %q", p.Name)
    return 0
}

func (self *Machine) phi(p *ir.Node) int64 {
    if v, ok := self.phis[p]; ok {
        return v
    }
    self.fault("%s is read before control reaches its merge", p)
    return 0
}

func (self *Machine) load(p *ir.Node) int64 {
    if v, ok := self.fixed[p]; ok {
        return v
    }
    self.fault("%s is read before it is executed", p)
    return 0
}

func (self *Machine) conditional(p *ir.Node) int64 {
    if self.eval(p.Input(0)) != 0 {
        return self.eval(p.Input(1))
    } else {
        return self.eval(p.Input(2))
    }
}

func b2i(v bool) int64 {
    if v {
        return 1
    } else {
        return 0
    }
}
