package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/config"
	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/ams"
	"github.com/mrpasztoradam/goadsdev/internal/retain"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndValidate(t *testing.T) {
	for _, name := range []string{"device.yaml", "device.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			out, err := runCmd(t, "config", "init", path)
			require.NoError(t, err)
			assert.Contains(t, out, "Wrote "+path)

			_, err = runCmd(t, "config", "init", path)
			assert.ErrorContains(t, err, "already exists")
			_, err = runCmd(t, "config", "init", "--force", path)
			assert.NoError(t, err)

			out, err = runCmd(t, "--config", path, "config", "validate")
			require.NoError(t, err)
			assert.Contains(t, out, "OK (2 areas, 5 symbols)")
		})
	}
}

func TestConfigValidateMissingFile(t *testing.T) {
	_, err := runCmd(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "config", "validate")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	tmc := filepath.Join("..", "..", "internal", "tmc", "testdata", "sample.tmc")
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	// An explicit --config must exist.
	_, err := runCmd(t, "--config", missing, "inspect", "--tmc", tmc)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "device.yaml")
	_, err = runCmd(t, "config", "init", path)
	require.NoError(t, err)

	out, err := runCmd(t, "--config", path, "inspect", "--filter", "ncounter")
	require.NoError(t, err)
	assert.Contains(t, out, "MAIN.nCounter")
	assert.Contains(t, out, "DINT")
	assert.NotContains(t, out, "MAIN.fTemperature")

	out, err = runCmd(t, "--config", path, "inspect", "--json")
	require.NoError(t, err)
	var report inspectOutput
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Symbols, 5)
	require.NotEmpty(t, report.Areas)
	assert.Equal(t, ads.IndexGroupPLCDataArea, report.Areas[0].IndexGroup)
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "goadsdev "+goadsdev.Version())

	out, err = runCmd(t, "version", "--json")
	require.NoError(t, err)
	var info goadsdev.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, goadsdev.Version(), info.Version)
}

func TestServeOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retain.Path = "/tmp/retain.cbor"
	opts := serveOptions{listen: "127.0.0.1:12345", apiAddr: "127.0.0.1:9090", logLevel: "debug", noRetain: true}
	require.NoError(t, opts.apply(cfg))

	assert.Equal(t, "127.0.0.1:12345", cfg.Server.Listen)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, "127.0.0.1:9090", cfg.APIAddress())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Empty(t, cfg.Retain.Path)

	ac := apiConfig(cfg, nil)
	assert.Equal(t, "127.0.0.1:9090", ac.Addr)
	assert.Equal(t, cfg.API.MaxWatches, ac.MaxWatches)

	bad := serveOptions{apiAddr: "no-port"}
	assert.Error(t, bad.apply(config.DefaultConfig()))
	bad = serveOptions{logLevel: "chatty"}
	assert.Error(t, bad.apply(config.DefaultConfig()))
}

func TestRunServeSavesRetain(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Retain.Path = filepath.Join(dir, "retain.cbor")
	cfg.Database.Areas = []config.AreaConfig{{
		IndexGroup: ads.IndexGroupPLCDataArea,
		Size:       16,
		Symbols:    []config.SymbolConfig{{Name: "MAIN.n", Offset: 0, Type: "DINT"}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, runServe(ctx, cfg, false, io.Discard))

	snap, err := retain.NewStore(cfg.Retain.Path).Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, cfg.Device.Name, snap.Device)
	require.Len(t, snap.Areas, 2)
	assert.Equal(t, ads.IndexGroupPLCDataArea, snap.Areas[0].IndexGroup)
	assert.Len(t, snap.Areas[0].Data, 16)
}

func TestRunServeListenError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Listen = "256.0.0.1:1"
	err := runServe(context.Background(), cfg, false, io.Discard)
	assert.Error(t, err)
}

func newConsoleDevice(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	db := symbols.NewDatabase()
	area, err := db.AddArea(symbols.NewDataArea(ads.IndexGroupPLCDataArea, symbols.KindInternal, 64))
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.nCounter", 0, symbols.DataTypeInt32, 1)
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.aValues", 4, symbols.DataTypeInt16, 3)
	require.NoError(t, err)
	_, err = area.AddSymbol("MAIN.sName", 10, symbols.DataTypeString, 16)
	require.NoError(t, err)

	d, err := goadsdev.New(goadsdev.WithDatabase(db))
	require.NoError(t, err)

	var out bytes.Buffer
	c := &Console{out: &out}
	c.Attach(d)
	return c, &out
}

func TestConsoleCommands(t *testing.T) {
	c, out := newConsoleDevice(t)

	tests := []struct {
		line string
		want string
	}{
		{"help", "ADS Device Commands"},
		{"list", "MAIN.aValues"},
		{"list name", "STRING(16)"},
		{"get MAIN.nCounter", "MAIN.nCounter = 0"},
		{"set MAIN.nCounter 42", "MAIN.nCounter = 42"},
		{"set MAIN.aValues 1,2,3", "MAIN.aValues = [1 2 3]"},
		{"set MAIN.sName hello world", `MAIN.sName = "hello world"`},
		{"set MAIN.nCounter abc", "Error:"},
		{"get MAIN.missing", "Error:"},
		{"get", "Usage: get"},
		{"state", "ADS state: run (5), device state: 0"},
		{"state stop 7", "ADS state: stop"},
		{"state flying", "Unknown state: flying"},
		{"state invalid", "Error:"},
		{"sessions", "No open sessions"},
		{"frobnicate", "Unknown command: frobnicate"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			assert.False(t, c.exec(tt.line))
			assert.Contains(t, out.String(), tt.want)
		})
	}

	assert.Equal(t, goadsdev.DeviceState{ADSState: ads.StateStop, DeviceState: 7}, c.device.State())
	assert.True(t, c.exec("quit"))
	assert.False(t, c.exec("   "))
}

func TestConsoleSessions(t *testing.T) {
	c, out := newConsoleDevice(t)
	s := c.device.NewSession(c.device.Address(), ams.Addr{NetID: ams.NetID{10, 1, 1, 1, 1, 1}, Port: 30000})
	defer s.Close()

	c.exec("sessions")
	assert.Contains(t, out.String(), s.ID())
	assert.Contains(t, out.String(), "10.1.1.1.1.1:30000")
}
