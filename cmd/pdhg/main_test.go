// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/pdhg/pdhg"
)

func writeModel(t *testing.T, dir, name, doc string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestSolveCommand(t *testing.T) {
	dir := t.TempDir()
	model := writeModel(t, dir, "model.yaml", "c: [1]\ng: [[1]]\nh: [1]\nlower: [0]\nupper: [5]\n")

	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"solve", "-p", model, "--variant", "reflected", "--eps-abs", "1e-6"})
	require.NoError(t, root.Execute())

	var r pdhg.Result
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, pdhg.Optimal, r.Status)
	assert.InDelta(t, 1, r.PrimalObjective, 1e-3)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeModel(t, dir, "a.yaml", "c: [1]\ng: [[1]]\nh: [1]\nlower: [0]\nupper: [5]\n")
	b := writeModel(t, dir, "b.yaml", "c: [1]\ng: [[1]]\nh: [2]\nlower: [0]\nupper: [1]\n")
	cfg := writeModel(t, dir, "solver.yaml", "display_frequency: 32\n")

	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"batch", "-p", a, "-p", b, "-c", cfg, "--workers", "2"})
	require.NoError(t, root.Execute())

	var docs []batchEntry
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &docs))
	require.Len(t, docs, 2)
	assert.Equal(t, a, docs[0].Problem)
	assert.Equal(t, pdhg.Optimal, docs[0].Result.Status)
	assert.Equal(t, pdhg.PrimalInfeasible, docs[1].Result.Status)
	assert.Zero(t, docs[1].Result.NumIter%32)
}

func TestSolveCommandErrors(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"solve"})
	assert.Error(t, root.Execute())

	root = newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"solve", "-p", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, root.Execute())

	dir := t.TempDir()
	model := writeModel(t, dir, "model.yaml", "c: [1]\n")
	root = newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"solve", "-p", model, "--iteration-limit", "-1"})
	assert.ErrorIs(t, root.Execute(), pdhg.ErrConfig)
}
