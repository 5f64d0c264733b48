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

package ir

import (
    `go.uber.org/zap`
)

// Replacement is consulted for every copied node and for every input edge of
// a copy. It returns the node standing for orig in the copy, or nil (or orig
// itself) when orig has no replacement. Replacements must be stable: asking
// twice for the same node returns the same answer.
type Replacement func(orig *Node) *Node

func (self Replacement) lookup(p *Node) *Node {
    if self == nil {
        return nil
    } else if r := self(p); r == p {
        return nil
    } else {
        return r
    }
}

// AddDuplicates copies nodes into the graph and returns the mapping from the
// originals to their copies. A node with a replacement is not copied, it is
// mapped to its replacement which only inherits the successors. Inputs of a
// copy resolve to the replacement, else to the copy of the input, else to
// the shared original. Successors leaving the set are dropped.
func (self *Graph) AddDuplicates(nodes []*Node, repl Replacement) map[*Node]*Node {
    dup := make(map[*Node]*Node, len(nodes))
    replaced := make(map[*Node]bool)

    /* create the copies first so that forward references resolve */
    for _, p := range nodes {
        if _, ok := dup[p]; ok {
            continue
        }
        if r := repl.lookup(p); r != nil {
            dup[p] = r
            replaced[p] = true
        } else {
            dup[p] = self.clone(p)
        }
    }

    /* resolves an input edge of a copy */
    input := func(v *Node) *Node {
        if v == nil {
            return nil
        } else if r := repl.lookup(v); r != nil {
            return r
        } else if d, ok := dup[v]; ok {
            return d
        } else {
            return v
        }
    }

    /* connect the copies */
    for _, p := range nodes {
        d := dup[p]
        if d.deleted {
            panic("duplicate mapped to a deleted node: " + p.String())
        }

        /* replacements only inherit the control successors */
        if !replaced[p] {
            for i, v := range p.in {
                d.addInput(input(v), p.it[i])
            }
        } else if len(d.sux) != len(p.sux) {
            continue
        }

        /* successors leaving the set are dropped */
        for i, s := range p.sux {
            if s != nil {
                if t, ok := dup[s]; ok {
                    d.setSuccessor(i, t)
                }
            }
        }
    }

    /* dump the result */
    if ce := self.Debug.Check(zap.DebugLevel, "duplicated nodes"); ce != nil {
        ce.Write(zap.Int("nodes", len(nodes)), zap.Int("replaced", len(replaced)))
    }
    return dup
}

func (self *Graph) clone(p *Node) *Node {
    c := self.newNode(p.Op, len(p.sux))
    c.Bits = p.Bits
    c.Kind = p.Kind
    c.Negated = p.Negated
    c.Value = p.Value
    c.Name = p.Name
    c.UnrollFactor = p.UnrollFactor
    c.Peelings = p.Peelings
    c.endIndex = p.endIndex
    c.nextEnd = p.nextEnd
    c.nvals = p.nvals
    return c
}
