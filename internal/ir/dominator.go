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

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071, running on fixed nodes.
 */

package ir

type _LtNode struct {
    semi     int
    node     *Node
    dom      *_LtNode
    label    *_LtNode
    parent   *_LtNode
    ancestor *_LtNode
    pred     []*_LtNode
    bucket   map[*_LtNode]struct{}
}

type _LengauerTarjan struct {
    nodes  []*_LtNode
    vertex map[*Node]int
}

func newLengauerTarjan() *_LengauerTarjan {
    return &_LengauerTarjan {
        vertex: make(map[*Node]int),
    }
}

// ControlSuccessors returns the control flow successors of a fixed node,
// ends flow into their merge.
func ControlSuccessors(p *Node) []*Node {
    var ret []*Node
    var sux []*Node

    /* ends have no successor edges */
    switch p.Op {
        case OpEnd     : sux = []*Node { p.Merge() }
        case OpLoopEnd : sux = []*Node { p.in[0] }
        default        : sux = p.sux
    }

    /* skip the unconnected edges */
    for _, s := range sux {
        if s != nil {
            ret = append(ret, s)
        }
    }
    return ret
}

func (self *_LengauerTarjan) dfs(bb *Node) {
    i := len(self.nodes)
    self.vertex[bb] = i

    /* create a new node */
    p := &_LtNode {
        semi   : i,
        node   : bb,
        bucket : make(map[*_LtNode]struct{}),
    }

    /* add to node list */
    p.label = p
    self.nodes = append(self.nodes, p)

    /* traverse the successors */
    for _, w := range ControlSuccessors(bb) {
        idx, ok := self.vertex[w]

        /* not visited yet */
        if !ok {
            self.dfs(w)
            idx = self.vertex[w]
            self.nodes[idx].parent = p
        }

        /* add predecessors */
        q := self.nodes[idx]
        q.pred = append(q.pred, p)
    }
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
    if p.ancestor == nil {
        return p
    } else {
        self.compress(p)
        return p.label
    }
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
    q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
    if p.ancestor.ancestor != nil {
        self.compress(p.ancestor)
        if p.label.semi > p.ancestor.label.semi { p.label = p.ancestor.label }
        p.ancestor = p.ancestor.ancestor
    }
}

// DominatorTree holds the immediate dominators of the fixed nodes reachable
// from Root.
type DominatorTree struct {
    Root        *Node
    DominatedBy map[*Node]*Node
}

func minInt(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

func BuildDominatorTree(root *Node) DominatorTree {
    domby := make(map[*Node]*Node)

    /* Step 1: Carry out a depth-first search of the problem graph. Number the vertices
     * from 1 to n as they are reached during the search. Initialize the variables used
     * in succeeding steps. */
    lt := newLengauerTarjan()
    lt.dfs(root)

    /* perform Step 2 and Step 3 simultaneously */
    for i := len(lt.nodes) - 1; i > 0; i-- {
        p := lt.nodes[i]
        q := (*_LtNode)(nil)

        /* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
         * Carry out the computation vertex by vertex in decreasing order by number. */
        for _, v := range p.pred {
            q = lt.eval(v)
            p.semi = minInt(p.semi, q.semi)
        }

        /* link the ancestor */
        lt.link(p.parent, p)
        lt.nodes[p.semi].bucket[p] = struct{}{}

        /* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
        for v := range p.parent.bucket {
            if q = lt.eval(v); q.semi < v.semi {
                v.dom = q
            } else {
                v.dom = p.parent
            }
        }

        /* clear the bucket */
        for v := range p.parent.bucket {
            delete(p.parent.bucket, v)
        }
    }

    /* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
     * computation vertex by vertex in increasing order by number. */
    for _, p := range lt.nodes[1:] {
        if p.dom.node != lt.nodes[p.semi].node {
            p.dom = p.dom.dom
        }
    }

    /* map the dominator relations */
    for _, p := range lt.nodes[1:] {
        domby[p.node] = p.dom.node
    }

    /* construct the dominator tree */
    return DominatorTree {
        Root        : root,
        DominatedBy : domby,
    }
}

// Reachable reports whether p is reachable from the root.
func (self DominatorTree) Reachable(p *Node) bool {
    _, ok := self.DominatedBy[p]
    return ok || p == self.Root
}

// Dominates reports whether a dominates b, every node dominates itself.
func (self DominatorTree) Dominates(a *Node, b *Node) bool {
    for p := b; p != nil; p = self.DominatedBy[p] {
        if p == a {
            return true
        }
    }
    return false
}
