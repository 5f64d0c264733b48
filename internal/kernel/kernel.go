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

// Package kernel describes small loop kernels in YAML and builds their
// graphs.
//
//     name: sum
//     bits: 32
//     params: [n]
//     arrays: [a]
//     vars: [{ name: s, init: 0 }]
//     loop: { var: i, init: 0, limit: n, stride: 1, safepoint: true }
//     body:
//       - { op: load, dst: t, array: a, index: i }
//       - { op: add, dst: s, x: s, y: t }
//     return: s
//
package kernel

import (
    `os`
    `strconv`

    `github.com/pkg/errors`
    `gopkg.in/yaml.v3`
)

// Operand is either an integer constant or the name of a variable.
type Operand struct {
    Var   string
    Const int64
}

func (self Operand) IsConst() bool {
    return self.Var == ""
}

func (self Operand) String() string {
    if self.IsConst() {
        return strconv.FormatInt(self.Const, 10)
    } else {
        return self.Var
    }
}

func (self *Operand) UnmarshalYAML(node *yaml.Node) error {
    if node.Kind != yaml.ScalarNode {
        return errors.Errorf("line %d: operand must be a scalar", node.Line)
    }
    if v, err := strconv.ParseInt(node.Value, 0, 64); err == nil {
        *self = Operand { Const: v }
    } else {
        *self = Operand { Var: node.Value }
    }
    return nil
}

type Var struct {
    Name string  `yaml:"name"`
    Init Operand `yaml:"init"`
}

// Loop describes the counted loop of a kernel. The loop runs while the
// counter is below the limit (direction up) or above it (direction down).
type Loop struct {
    Var       string  `yaml:"var"`
    Init      Operand `yaml:"init"`
    Limit     Operand `yaml:"limit"`
    Stride    int64   `yaml:"stride"`
    Direction string  `yaml:"direction"`
    Compare   string  `yaml:"compare"`
    Form      string  `yaml:"form"`
    Safepoint bool    `yaml:"safepoint"`
}

// Stmt is one statement of the loop body.
type Stmt struct {
    Op    string  `yaml:"op"`
    Dst   string  `yaml:"dst"`
    X     Operand `yaml:"x"`
    Y     Operand `yaml:"y"`
    Array string  `yaml:"array"`
    Index Operand `yaml:"index"`
    Value Operand `yaml:"value"`
}

// Cond is a comparison, op is one of lt, below or eq.
type Cond struct {
    Op string  `yaml:"op"`
    X  Operand `yaml:"x"`
    Y  Operand `yaml:"y"`
}

// Kernel is a single loop with its surrounding parameters. Break leaves the
// loop early, Skip jumps to a second back edge before the body runs.
type Kernel struct {
    Name   string   `yaml:"name"`
    Bits   uint8    `yaml:"bits"`
    Params []string `yaml:"params"`
    Arrays []string `yaml:"arrays"`
    Vars   []Var    `yaml:"vars"`
    Loop   Loop     `yaml:"loop"`
    Body   []Stmt   `yaml:"body"`
    Break  *Cond    `yaml:"break"`
    Skip   *Cond    `yaml:"skip"`
    Guards string   `yaml:"guards"`
    States bool     `yaml:"states"`
    Return Operand  `yaml:"return"`
}

// Parse decodes and validates a kernel.
func Parse(data []byte) (*Kernel, error) {
    ret := new(Kernel)
    if err := yaml.Unmarshal(data, ret); err != nil {
        return nil, errors.Wrap(err, "kernel: invalid yaml")
    }
    if err := ret.validate(); err != nil {
        return nil, err
    }
    return ret, nil
}

// Load reads a kernel file.
func Load(path string) (*Kernel, error) {
    if data, err := os.ReadFile(path); err != nil {
        return nil, errors.Wrapf(err, "kernel: cannot read %s", path)
    } else if ret, err := Parse(data); err != nil {
        return nil, errors.WithMessage(err, path)
    } else {
        return ret, nil
    }
}

func (self *Kernel) validate() error {
    if self.Bits == 0 {
        self.Bits = 32
    }
    if self.Loop.Direction == "" {
        self.Loop.Direction = "up"
    }
    if self.Loop.Compare == "" {
        self.Loop.Compare = "signed"
    }
    if self.Loop.Form == "" {
        self.Loop.Form = "while"
    }

    /* check the enumerations */
    switch {
        case self.Bits != 8 && self.Bits != 16 && self.Bits != 32 && self.Bits != 64:
            return errors.Errorf("kernel %s: invalid width %d", self.Name, self.Bits)
        case self.Loop.Var == "":
            return errors.Errorf("kernel %s: loop has no counter", self.Name)
        case self.Loop.Stride == 0:
            return errors.Errorf("kernel %s: loop stride must not be zero", self.Name)
        case self.Loop.Direction != "up" && self.Loop.Direction != "down":
            return errors.Errorf("kernel %s: invalid direction %q", self.Name, self.Loop.Direction)
        case self.Loop.Compare != "signed" && self.Loop.Compare != "unsigned":
            return errors.Errorf("kernel %s: invalid comparison %q", self.Name, self.Loop.Compare)
        case self.Loop.Form != "while" && self.Loop.Form != "dowhile":
            return errors.Errorf("kernel %s: invalid loop form %q", self.Name, self.Loop.Form)
        case self.Guards != "" && self.Guards != "inside" && self.Guards != "header" && self.Guards != "outside":
            return errors.Errorf("kernel %s: invalid guard placement %q", self.Name, self.Guards)
        case self.Loop.Form == "dowhile" && (self.Break != nil || self.Skip != nil):
            return errors.Errorf("kernel %s: do-while loops cannot break or skip", self.Name)
    }

    /* the stride must move the counter towards the limit */
    if (self.Loop.Direction == "up") != (self.Loop.Stride > 0) {
        return errors.Errorf("kernel %s: stride %d does not move %s", self.Name, self.Loop.Stride, self.Loop.Direction)
    }
    return nil
}
