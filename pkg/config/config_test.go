package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCfg struct {
	Name string `mapstructure:"name"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Level string `mapstructure:"level"`
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "predex.yaml", "name: predex\nhttp:\n  addr: \":9000\"\n")

	var cfg testCfg
	_, err := Load(Options{Name: "predex", File: p, Defaults: map[string]any{"level": "debug"}}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "predex", cfg.Name)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svc.yaml", "http:\n  addr: \":9000\"\n")
	t.Setenv("PREDEX_HTTP_ADDR", ":7777")

	var cfg testCfg
	_, err := Load(Options{Name: "svc", Paths: []string{dir}}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, ":7777", cfg.HTTP.Addr)
}

func TestLoad_Missing(t *testing.T) {
	var cfg testCfg
	_, err := Load(Options{Name: "nope", Paths: []string{t.TempDir()}}, &cfg)
	assert.Error(t, err)
}
