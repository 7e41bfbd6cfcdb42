package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusline/internal/domain"
)

func TestGeneratedDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOptionalMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Session.SessionLength)
	assert.Equal(t, domain.EnergyMedium, cfg.Session.EnergyLevel)
	assert.Equal(t, time.Second, cfg.Timer.Tick)

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "not found")
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("optimizer:\n  enabled: true\n  endpoint: http://localhost:9000/optimize\n  timeout: 5s\nsession:\n  energy_level: high\n  session_length: 50\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Optimizer.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Optimizer.Timeout)
	assert.Equal(t, domain.EnergyHigh, cfg.Session.EnergyLevel)
	assert.Equal(t, 50, cfg.Session.SessionLength)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"enabled without endpoint": "optimizer:\n  enabled: true\n",
		"endpoint not a url":       "optimizer:\n  enabled: true\n  endpoint: localhost\n",
		"zero timeout":             "optimizer:\n  timeout: 0s\n",
		"energy":                   "session:\n  energy_level: sleepy\n",
		"short session":            "session:\n  session_length: 2\n",
		"long session":             "session:\n  session_length: 121\n",
		"tick":                     "timer:\n  tick: 0s\n",
		"base path":                "server:\n  base_path: api\n",
		"bad yaml":                 "session: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(body))
			assert.Error(t, err)
		})
	}
}
