// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"storj.io/common/testcontext"
)

type testConfig struct {
	X      int    `default:"0" help:"x value"`
	Name   string `default:"none" help:"name"`
	Secret string `default:"" hidden:"true"`
	Force  bool   `default:"false" setup:"true"`
	Filter struct {
		ErrorRate float64       `default:"0.01" help:"error rate"`
		TTL       time.Duration `default:"1m" help:"ttl"`
		HashSeed  uint32        `default:"41" help:"seed"`
	}
}

func newTestCommand(config *testConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:  "test",
		RunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	Bind(cmd.Flags(), config)
	return cmd
}

func TestBindDefaults(t *testing.T) {
	var config testConfig
	cmd := newTestCommand(&config)

	require.Equal(t, "none", config.Name)
	require.Equal(t, 0.01, config.Filter.ErrorRate)
	require.Equal(t, time.Minute, config.Filter.TTL)
	require.EqualValues(t, 41, config.Filter.HashSeed)

	for _, name := range []string{"x", "name", "secret", "filter.error-rate", "filter.ttl", "filter.hash-seed"} {
		require.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	require.True(t, cmd.Flags().Lookup("secret").Hidden)
}

func TestBindInvalid(t *testing.T) {
	var notStruct int
	require.Panics(t, func() { Bind(newTestCommand(&testConfig{}).Flags(), &notStruct) })
	require.Panics(t, func() { Bind(newTestCommand(&testConfig{}).Flags(), testConfig{}) })

	var unsupported struct{ Values []string }
	require.Panics(t, func() { Bind(newTestCommand(&testConfig{}).Flags(), &unsupported) })

	var badDefault struct {
		N int `default:"many"`
	}
	require.Panics(t, func() { Bind(newTestCommand(&testConfig{}).Flags(), &badDefault) })
}

func TestHyphenCase(t *testing.T) {
	for name, expected := range map[string]string{
		"X":           "x",
		"ErrorRate":   "error-rate",
		"TTL":         "ttl",
		"CopyTTL":     "copy-ttl",
		"RedisURL":    "redis-url",
		"URLPrefix":   "url-prefix",
		"ByteAligned": "byte-aligned",
	} {
		require.Equal(t, expected, hyphenCase(name), name)
	}
}

func TestExecPropagatesSettings(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var config testConfig
	cmd := newTestCommand(&config)
	y := cmd.Flags().Int("y", 0, "y flag (command)")

	t.Setenv("REBLOOM_X", "1")
	t.Setenv("REBLOOM_FILTER_ERROR_RATE", "0.5")

	err := ExecWithArgs(cmd, []string{"--y", "2", "--config", ctx.File("missing.yaml")})
	require.NoError(t, err)

	require.Equal(t, 1, config.X)
	require.Equal(t, 2, *y)
	require.Equal(t, 0.5, config.Filter.ErrorRate)
	require.Equal(t, "none", config.Name)
}

func TestExecConfigFile(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 5\nname: file\nfilter:\n  error-rate: 0.2\n  ttl: 1h\n"), 0600))

	var config testConfig
	cmd := newTestCommand(&config)

	t.Setenv("REBLOOM_NAME", "env")

	err := ExecWithArgs(cmd, []string{"--config", path, "--x", "7"})
	require.NoError(t, err)

	require.Equal(t, 7, config.X)
	require.Equal(t, "env", config.Name)
	require.Equal(t, 0.2, config.Filter.ErrorRate)
	require.Equal(t, time.Hour, config.Filter.TTL)
}

func TestExecInvalidValue(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var config testConfig
	cmd := newTestCommand(&config)
	t.Setenv("REBLOOM_X", "not a number")

	err := ExecWithArgs(cmd, []string{"--config", ctx.File("missing.yaml")})
	require.Error(t, err)
	require.True(t, Error.Has(err), "%+v", err)
}

func TestSaveConfig(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var config testConfig
	cmd := newTestCommand(&config)
	cmd.Flags().Int("extra", 0, "not bound")
	cmd.Flags().Int("changed", 0, "not bound")
	require.NoError(t, cmd.Flags().Set("changed", "3"))

	path := ctx.File("saved.yaml")
	err := SaveConfig(cmd, path, map[string]interface{}{"name": "override"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var saved map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &saved))

	require.Equal(t, 0, saved["x"])
	require.Equal(t, "override", saved["name"])
	require.Equal(t, 3, saved["changed"])
	require.NotContains(t, saved, "secret")
	require.NotContains(t, saved, "extra")
	require.NotContains(t, saved, "force")

	filter, ok := saved["filter"].(map[string]interface{})
	require.True(t, ok, "%#v", saved["filter"])
	require.Contains(t, filter, "error-rate")
	require.Contains(t, filter, "ttl")
	require.Contains(t, filter, "hash-seed")

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// the saved file configures a new command
	var loaded testConfig
	err = ExecWithArgs(newTestCommand(&loaded), []string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, "override", loaded.Name)
	require.Equal(t, 0.01, loaded.Filter.ErrorRate)
}

func TestAtomicWriteRenameFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	dir := ctx.Dir("atomic")
	// a non-empty directory cannot be replaced by a file
	outfile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.Mkdir(outfile, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(outfile, "keep"), nil, 0644))

	err := atomicWrite(outfile, 0600, []byte("x: 1\n"))
	require.Error(t, err)
	require.NotContains(t, err.Error(), os.ErrClosed.Error())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "config.yaml", entries[0].Name())
}

func TestNewLogger(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("rebloom.log")
	logger, err := NewLoggerWithOutputPaths(path)
	require.NoError(t, err)

	logger.Info("hello from the logger")
	logger.Debug("not logged at the default level")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello from the logger")
	require.NotContains(t, string(data), "not logged")
}

func TestDebugHandler(t *testing.T) {
	registry := monkit.NewRegistry()
	registry.ScopeNamed("rebloom").Counter("orphaned_copy_keys").Inc(2)

	server := httptest.NewServer(debugHandler(registry))
	defer server.Close()

	get := func(path string) string {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	require.Equal(t, "OK\n", get("/health"))
	metrics := get("/metrics")
	require.Contains(t, metrics, "# TYPE orphaned_copy_keys gauge")
	require.Contains(t, metrics, `scope="rebloom"`)
}

func TestSanitize(t *testing.T) {
	require.Equal(t, "_9lives", sanitize("9lives"))
	require.Equal(t, "a_b_c", sanitize("a.b-c"))
	require.Equal(t, "_", sanitize(""))
}
