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
    `github.com/pkg/errors`
    `github.com/cloudwego/loopfrag/internal/ir`
)

type _BuildError struct {
    err error
}

type _Env map[string]*ir.Node

func (self _Env) clone() _Env {
    ret := make(_Env, len(self))
    for k, v := range self {
        ret[k] = v
    }
    return ret
}

type _Builder struct {
    k      *Kernel
    g      *ir.Graph
    b      *ir.Builder
    lb     *ir.Node
    anchor *ir.Node
    object *ir.Node
    names  []string
    phis   []*ir.Node
    env    _Env
    params _Env
    lens   _Env
    ends   []_Env
}

// Build creates the graph of the kernel. The graph has value proxies, and
// floating guards or frame states when the kernel asks for them.
func (self *Kernel) Build() (g *ir.Graph, err error) {
    g = ir.NewGraph()
    g.ValueProxies = true
    g.FloatingGuards = self.Guards != ""
    g.FrameStates = self.States

    /* create the builder */
    bb := &_Builder {
        k      : self,
        g      : g,
        b      : ir.NewBuilder(g),
        env    : make(_Env),
        params : make(_Env),
        lens   : make(_Env),
    }

    /* build errors are raised as panics */
    defer func() {
        if v := recover(); v != nil {
            if e, ok := v.(_BuildError); ok {
                g, err = nil, e.err
            } else {
                panic(v)
            }
        }
    }()

    /* build the graph */
    bb.build()
    return g, nil
}

func (self *_Builder) fail(format string, args ...interface{}) {
    panic(_BuildError { errors.Errorf("kernel %s: " + format, append([]interface{} { self.k.Name }, args...)...) })
}

func (self *_Builder) operand(v Operand, env _Env) *ir.Node {
    if v.IsConst() {
        return self.g.Const(self.k.Bits, v.Const)
    } else if p, ok := env[v.Var]; ok {
        return p
    } else if p, ok = self.params[v.Var]; ok {
        return p
    } else {
        self.fail("undefined variable %q", v.Var)
        return nil
    }
}

func (self *_Builder) compare(op string, x *ir.Node, y *ir.Node) *ir.Node {
    switch op {
        case "lt", "signed"     : return self.g.LessThan(x, y)
        case "below", "unsigned": return self.g.Below(x, y)
        case "eq"               : return self.g.Equal(x, y)
        default                 : self.fail("invalid comparison %q", op); return nil
    }
}

func (self *_Builder) build() {
    k := self.k
    g := self.g

    /* parameters and arrays */
    for _, p := range k.Params {
        self.params[p] = g.Param(p, k.Bits)
    }
    for _, a := range k.Arrays {
        self.params[a] = g.Param(a, k.Bits)
        self.lens[a] = g.Param("len_" + a, k.Bits)
    }

    /* the loop carried variables */
    self.names = append(self.names, k.Loop.Var)
    self.env[k.Loop.Var] = self.operand(k.Loop.Init, self.env)
    for _, v := range k.Vars {
        if _, ok := self.env[v.Name]; ok {
            self.fail("duplicated variable %q", v.Name)
        }
        self.names = append(self.names, v.Name)
        self.env[v.Name] = self.operand(v.Init, self.env)
    }

    /* enter the loop */
    self.lb = self.b.EnterLoop()
    for _, name := range self.names {
        self.env[name] = g.Phi(ir.KindValue, self.lb, self.env[name])
        self.phis = append(self.phis, self.env[name])
    }
    if k.States {
        self.object = g.VirtualObject("frame")
        self.lb.SetStateAfter(self.state(self.env))
    }

    /* build the loop */
    if k.Loop.Form == "while" {
        self.buildWhile()
    } else {
        self.buildDoWhile()
    }

    /* fill the back edge values */
    for i, name := range self.names {
        for _, env := range self.ends {
            self.phis[i].AddPhiInput(env[name])
        }
    }
}

func (self *_Builder) state(env _Env) *ir.Node {
    vals := make([]*ir.Node, len(self.names))
    for i, name := range self.names {
        vals[i] = env[name]
    }
    return self.g.FrameState(nil, vals, []*ir.Node { self.g.VirtualState(self.object, vals[0]) })
}

func (self *_Builder) exitState(exit *ir.Node, env _Env) *ir.Node {
    vals := make(_Env, len(env))
    for _, name := range self.names {
        vals[name] = self.proxy(env[name], exit)
    }
    return self.state(vals)
}

func (self *_Builder) proxy(v *ir.Node, exit *ir.Node) *ir.Node {
    if v.Op == ir.OpConst || v.Op == ir.OpParam {
        return v
    } else {
        return self.g.UniqueProxy(ir.KindValue, v, exit)
    }
}

func (self *_Builder) limitTest(iv *ir.Node) *ir.Node {
    limit := self.operand(self.k.Loop.Limit, nil)
    if self.k.Loop.Direction == "up" {
        return self.compare(self.k.Loop.Compare, iv, limit)
    } else {
        return self.compare(self.k.Loop.Compare, limit, iv)
    }
}

func (self *_Builder) backEdge(env _Env, next *ir.Node) {
    env = env.clone()
    env[self.k.Loop.Var] = next
    self.b.LoopBack(self.lb)
    self.ends = append(self.ends, env)
}

func (self *_Builder) buildWhile() {
    k := self.k
    g := self.g
    iv := self.env[k.Loop.Var]
    next := g.Add(iv, g.Const(k.Bits, k.Loop.Stride))

    /* test the limit first */
    exit := g.LoopExit(self.lb)
    _, body, _ := self.b.Branch(self.limitTest(iv), nil, exit)
    header := self.env.clone()
    self.b.At(body)
    self.anchor = body
    if k.Loop.Safepoint {
        self.b.Append(g.Safepoint())
    }

    /* skipped iterations take the first back edge */
    if k.Skip != nil {
        _, tb, fb := self.b.Branch(self.cond(k.Skip), nil, nil)
        self.b.At(tb)
        self.backEdge(self.env, next)
        self.b.At(fb)
        self.anchor = fb
    }

    /* the statements */
    for i := range k.Body {
        self.stmt(&k.Body[i])
    }

    /* leave early if asked to */
    var brk *ir.Node
    var env _Env
    if k.Break != nil {
        brk = g.LoopExit(self.lb)
        _, _, fb := self.b.Branch(self.cond(k.Break), brk, nil)
        env = self.env.clone()
        self.b.At(fb)
        self.anchor = fb
    }

    /* the main back edge */
    self.backEdge(self.env, next)
    if brk == nil {
        self.finish(exit, header)
        return
    }

    /* both exits meet before returning */
    merge := g.Merge()
    rv := []*ir.Node { self.exit(exit, header), self.exit(brk, env) }
    self.b.At(exit).Jump(merge)
    self.b.At(brk).Jump(merge)
    self.b.At(merge).Append(g.Return(g.Phi(ir.KindValue, merge, rv...)))
}

func (self *_Builder) buildDoWhile() {
    k := self.k
    g := self.g
    iv := self.env[k.Loop.Var]
    self.anchor = self.lb

    /* the body runs first */
    if k.Loop.Safepoint {
        self.b.Append(g.Safepoint())
    }
    for i := range k.Body {
        self.stmt(&k.Body[i])
    }

    /* then the limit is tested with the next counter value */
    next := g.Add(iv, g.Const(k.Bits, k.Loop.Stride))
    exit := g.LoopExit(self.lb)
    _, tb, _ := self.b.Branch(self.limitTest(next), nil, exit)
    env := self.env.clone()
    env[k.Loop.Var] = next
    self.b.At(tb)
    self.backEdge(self.env, next)
    self.finish(exit, env)
}

// exit prepares the state of a loop exit and returns the returned value as
// seen after the exit.
func (self *_Builder) exit(exit *ir.Node, env _Env) *ir.Node {
    if self.k.States {
        exit.SetStateAfter(self.exitState(exit, env))
    }
    return self.proxy(self.operand(self.k.Return, env), exit)
}

func (self *_Builder) finish(exit *ir.Node, env _Env) {
    rv := self.exit(exit, env)
    self.b.At(exit).Append(self.g.Return(rv))
}

func (self *_Builder) cond(c *Cond) *ir.Node {
    return self.compare(c.Op, self.operand(c.X, self.env), self.operand(c.Y, self.env))
}

func (self *_Builder) guard(array string, index *ir.Node) *ir.Node {
    var anchor *ir.Node
    switch self.k.Guards {
        case ""        : return nil
        case "inside"  : anchor = self.anchor
        case "header"  : anchor = self.lb
        case "outside" : anchor = self.g.Start
    }
    return self.g.Guard(self.g.Below(index, self.lens[array]), anchor, false)
}

func (self *_Builder) array(name string) *ir.Node {
    for _, a := range self.k.Arrays {
        if a == name {
            return self.params[a]
        }
    }
    self.fail("undefined array %q", name)
    return nil
}

func (self *_Builder) assign(dst string, v *ir.Node) {
    if dst == "" {
        self.fail("statement has no destination")
    } else if dst == self.k.Loop.Var {
        self.fail("cannot assign to the loop counter %q", dst)
    }
    self.env[dst] = v
}

func (self *_Builder) stmt(s *Stmt) {
    g := self.g
    switch s.Op {
        case "add" : self.assign(s.Dst, g.Add(self.operand(s.X, self.env), self.operand(s.Y, self.env)))
        case "sub" : self.assign(s.Dst, g.Sub(self.operand(s.X, self.env), self.operand(s.Y, self.env)))
        case "mul" : self.assign(s.Dst, g.Mul(self.operand(s.X, self.env), self.operand(s.Y, self.env)))
        case "mov" : self.assign(s.Dst, self.operand(s.X, self.env))

        /* memory accesses */
        case "load": {
            arr := self.array(s.Array)
            idx := self.operand(s.Index, self.env)
            self.assign(s.Dst, self.b.Append(g.Load(arr, idx, self.guard(s.Array, idx))))
        }
        case "store": {
            arr := self.array(s.Array)
            idx := self.operand(s.Index, self.env)
            st := self.b.Append(g.Store(arr, idx, self.operand(s.Value, self.env), self.guard(s.Array, idx)))
            if self.k.States {
                st.SetStateAfter(self.state(self.env))
            }
        }

        /* unknown statements */
        default: {
            self.fail("invalid statement %q", s.Op)
        }
    }
}
