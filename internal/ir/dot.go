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
    `strconv`

    `gonum.org/v1/gonum/graph`
    `gonum.org/v1/gonum/graph/encoding`
    `gonum.org/v1/gonum/graph/encoding/dot`
    `gonum.org/v1/gonum/graph/simple`
)

type _DotNode struct {
    p *Node
}

func (self _DotNode) ID() int64 {
    return int64(self.p.ID)
}

func (self _DotNode) Attributes() []encoding.Attribute {
    shape := "ellipse"
    if self.p.Op.IsFixed() {
        shape = "box"
    }
    return []encoding.Attribute {
        { Key: "label", Value: strconv.Quote(self.p.String()) },
        { Key: "shape", Value: shape },
    }
}

type _DotEdge struct {
    from    _DotNode
    to      _DotNode
    control bool
    label   string
}

func (self _DotEdge) From() graph.Node {
    return self.from
}

func (self _DotEdge) To() graph.Node {
    return self.to
}

func (self _DotEdge) ReversedEdge() graph.Edge {
    return _DotEdge { from: self.to, to: self.from, control: self.control, label: self.label }
}

func (self _DotEdge) Attributes() []encoding.Attribute {
    if self.control {
        return []encoding.Attribute {
            { Key: "color", Value: "red" },
            { Key: "style", Value: "bold" },
        }
    }
    return []encoding.Attribute {
        { Key: "label", Value: strconv.Quote(self.label) },
        { Key: "style", Value: "dashed" },
    }
}

// MarshalDOT renders the live nodes of the graph in Graphviz format. Control
// edges point from a node to its successor, data edges from an input to its
// user.
func (self *Graph) MarshalDOT(name string) ([]byte, error) {
    dg := simple.NewDirectedGraph()
    for _, p := range self.Nodes() {
        dg.AddNode(_DotNode { p })
    }

    /* data edges first, control edges take precedence */
    for _, p := range self.Nodes() {
        for i, in := range p.in {
            if in != nil && in != p {
                dg.SetEdge(_DotEdge { from: _DotNode { in }, to: _DotNode { p }, label: p.it[i].String() })
            }
        }
    }
    for _, p := range self.Nodes() {
        for _, s := range p.sux {
            if s != nil {
                dg.SetEdge(_DotEdge { from: _DotNode { p }, to: _DotNode { s }, control: true })
            }
        }
    }
    return dot.Marshal(dg, name, "", "    ")
}
