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
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const _Kernels = "../../internal/kernel/testdata"

const _SkipKernel = `
name: skip
params: [n, m]
vars: [{ name: s, init: 0 }]
loop: { var: i, init: 0, limit: n, stride: 1, safepoint: true }
skip: { op: lt, x: i, y: m }
body:
  - { op: add, dst: s, x: s, y: i }
return: s
`

func execute(t *testing.T, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPeelCmd_ComparesResults(t *testing.T) {
	out, err := execute(t, "peel", "--times", "2", "--run", "n=5,len_a=8", filepath.Join(_Kernels, "sum.yaml"))
	require.NoError(t, err, out)
	require.Contains(t, out, "peelings 2")
	require.Contains(t, out, "results match")
}

func TestUnrollCmd_NeverRunsPastTheTripCount(t *testing.T) {
	out, err := execute(t, "unroll", "--times", "2", "--run", "n=13", filepath.Join(_Kernels, "sum.yaml"))
	require.NoError(t, err, out)
	require.Contains(t, out, "unroll factor 4")
	require.Contains(t, out, "results match")
}

func TestUnrollCmd_ReportsRejections(t *testing.T) {
	src := filepath.Join(t.TempDir(), "skip.yaml")
	require.NoError(t, os.WriteFile(src, []byte(_SkipKernel), 0644))
	out, err := execute(t, "unroll", src)
	require.Error(t, err)
	require.Contains(t, out, "FAIL")
	require.Contains(t, err.Error(), "not a counted loop")
}

func TestDumpCmd_WritesDOT(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "sum.dot")
	out, err := execute(t, "dump", "--dot", dst, filepath.Join(_Kernels, "sum.yaml"))
	require.NoError(t, err, out)
	buf, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Contains(t, string(buf), "digraph")
}

func TestRootCmd_ReadsEnvironment(t *testing.T) {
	t.Setenv("LOOPFRAG_TIMES", "3")
	out, err := execute(t, "peel", filepath.Join(_Kernels, "sum.yaml"))
	require.NoError(t, err, out)
	require.Contains(t, out, "peelings 3")
}
