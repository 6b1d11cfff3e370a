// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"storj.io/common/testcontext"
	"storj.io/rebloom/pkg/process"
	"storj.io/rebloom/pkg/rebloom"
	"storj.io/rebloom/private/testredis"
)

type cliTest struct {
	t       *testing.T
	ctx     *testcontext.Context
	config  string
	baseURL string
}

func newCLITest(t *testing.T, ctx *testcontext.Context) *cliTest {
	server, err := testredis.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, server.Close()) })

	return &cliTest{
		t:       t,
		ctx:     ctx,
		config:  ctx.File("rebloom", "config.yaml"),
		baseURL: testredis.URL(server, 0),
	}
}

// run executes the command line and returns its output.
func (test *cliTest) run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	// defaults go right after the command name so later flags override them
	full := append([]string{args[0], "--config", test.config, "--redis.url", test.baseURL, "--filter.size", "4096"}, args[1:]...)
	err := process.ExecWithArgs(cmd, full)
	return out.String(), err
}

func (test *cliTest) mustRun(args ...string) string {
	out, err := test.run(args...)
	require.NoError(test.t, err, out)
	return out
}

func TestAddCheckCount(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	test := newCLITest(t, ctx)

	out := test.mustRun("add", "fruits", "apple", "pear", "apple")
	require.Equal(t, "apple\tadded\npear\tadded\napple\tpresent\n", out)

	out = test.mustRun("check", "fruits", "apple", "pear", "plum")
	require.Equal(t, "apple\ttrue\npear\ttrue\nplum\tfalse\n", out)

	out = test.mustRun("count", "fruits")
	require.Contains(t, out, "size\t4096\n")
	require.NotContains(t, out, "bits\t0\n")

	_, err := test.run("add", "fruits")
	require.Error(t, err)
}

func TestCombineAndCopy(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	test := newCLITest(t, ctx)

	test.mustRun("add", "a", "x", "shared")
	test.mustRun("add", "b", "y", "shared")

	require.Equal(t, "both\n", test.mustRun("union", "a", "b", "both"))
	require.Equal(t, "x\ttrue\ny\ttrue\n", test.mustRun("check", "both", "x", "y"))

	require.Equal(t, "common\n", test.mustRun("intersect", "a", "b", "common"))
	require.Equal(t, "shared\ttrue\nx\tfalse\n", test.mustRun("check", "common", "shared", "x"))

	require.Equal(t, "a-copy\n", test.mustRun("copy", "a", "a-copy"))
	require.Equal(t, "x\ttrue\ny\tfalse\n", test.mustRun("check", "a-copy", "x", "y"))

	_, err := test.run("copy", "a", "")
	require.True(t, rebloom.ErrValidation.Has(err), "%+v", err)
}

func TestExportImport(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	test := newCLITest(t, ctx)

	test.mustRun("add", "source", "one", "two")

	path := ctx.File("source.json")
	test.mustRun("export", "source", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec rebloom.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, "source", rec.Key)
	require.Equal(t, "mmh3", rec.HashFunctionTag)
	require.EqualValues(t, 4096, rec.SizeBits)

	stdout := test.mustRun("export", "source")
	require.JSONEq(t, string(data), stdout)

	require.Equal(t, "restored\n", test.mustRun("import", path, "restored"))
	require.Equal(t, "one\ttrue\ntwo\ttrue\nthree\tfalse\n", test.mustRun("check", "restored", "one", "two", "three"))

	broken := ctx.File("broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(strings.Replace(string(data), `"mmh3"`, `"fnv"`, 1)), 0600))
	_, err = test.run("import", broken)
	require.Error(t, err)
	require.True(t, rebloom.ErrFormat.Has(err), "%+v", err)
}

func TestScalable(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	test := newCLITest(t, ctx)

	values := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		values = append(values, fmt.Sprintf("value-%d", i))
	}

	test.mustRun(append([]string{"add", "layers", "--scalable.enabled", "--filter.size", "64"}, values...)...)
	out := test.mustRun(append([]string{"check", "layers", "--scalable.enabled", "--filter.size", "64"}, values...)...)
	require.NotContains(t, out, "false")

	out = test.mustRun("count", "layers", "--scalable.enabled", "--filter.size", "64")
	require.NotContains(t, out, "size\t64\n")
}

func TestSetup(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	test := newCLITest(t, ctx)

	out := test.mustRun("setup", "--filter.error-rate", "0.01")
	require.Equal(t, test.config+"\n", out)

	data, err := os.ReadFile(test.config)
	require.NoError(t, err)

	var saved map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &saved))
	require.Contains(t, saved, "redis")
	require.Contains(t, saved, "filter")
	require.Contains(t, saved, "scalable")
	require.NotContains(t, saved, "overwrite")

	filter := saved["filter"].(map[string]interface{})
	require.EqualValues(t, "0.01", filter["error-rate"])

	out = test.mustRun("setup")
	require.Contains(t, out, "--overwrite")

	out = test.mustRun("setup", "--overwrite")
	require.Equal(t, test.config+"\n", out)
}
