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
    `math/bits`
)

// NodeBitMap is a set of nodes of one graph keyed by node id. Nodes created
// after the map are reported by IsNew and are never marked unless the map is
// grown explicitly.
type NodeBitMap struct {
    g    *Graph
    size int
    data []uint64
}

func NewNodeBitMap(g *Graph) *NodeBitMap {
    return &NodeBitMap {
        g    : g,
        size : len(g.nodes),
        data : make([]uint64, (len(g.nodes) + 63) >> 6),
    }
}

func (self *NodeBitMap) Graph() *Graph {
    return self.g
}

// IsNew reports whether p was created after the map was last grown.
func (self *NodeBitMap) IsNew(p *Node) bool {
    return p.ID >= self.size
}

func (self *NodeBitMap) IsMarked(p *Node) bool {
    if p == nil || p.ID >= self.size {
        return false
    } else {
        return self.data[p.ID >> 6] & (1 << (p.ID & 63)) != 0
    }
}

// Contains is IsMarked for live nodes only.
func (self *NodeBitMap) Contains(p *Node) bool {
    return p != nil && !p.deleted && self.IsMarked(p)
}

func (self *NodeBitMap) Mark(p *Node) {
    if p.ID >= self.size {
        panic("marking a node newer than the bitmap: " + p.String())
    }
    self.data[p.ID >> 6] |= 1 << (p.ID & 63)
}

func (self *NodeBitMap) Clear(p *Node) {
    if p.ID < self.size {
        self.data[p.ID >> 6] &^= 1 << (p.ID & 63)
    }
}

func (self *NodeBitMap) grow() {
    if n := len(self.g.nodes); n > self.size {
        for self.size = n; len(self.data) << 6 < n; {
            self.data = append(self.data, 0)
        }
    }
}

// MarkAndGrow marks p, growing the map if p is newer than the map.
func (self *NodeBitMap) MarkAndGrow(p *Node) {
    self.grow()
    self.Mark(p)
}

// IsMarkedAndGrow grows the map before testing p.
func (self *NodeBitMap) IsMarkedAndGrow(p *Node) bool {
    self.grow()
    return self.IsMarked(p)
}

func (self *NodeBitMap) Copy() *NodeBitMap {
    return &NodeBitMap {
        g    : self.g,
        size : self.size,
        data : append([]uint64(nil), self.data...),
    }
}

func (self *NodeBitMap) Count() int {
    n := 0
    for _, w := range self.data {
        n += bits.OnesCount64(w)
    }
    return n
}

// Nodes returns the live marked nodes in id order.
func (self *NodeBitMap) Nodes() []*Node {
    var ret []*Node
    for i, w := range self.data {
        for ; w != 0; w &= w - 1 {
            if p := self.g.nodes[i << 6 + bits.TrailingZeros64(w)]; !p.deleted {
                ret = append(ret, p)
            }
        }
    }
    return ret
}

// Filter returns the live marked nodes of the given kind.
func (self *NodeBitMap) Filter(op Op) []*Node {
    var ret []*Node
    for _, p := range self.Nodes() {
        if p.Op == op {
            ret = append(ret, p)
        }
    }
    return ret
}
