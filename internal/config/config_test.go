package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
system:
  m_total: 10000
  b: 10000
  d_0: 0.003
  d_1: 0.00032
control:
  preemption_mode: swap
  preemption_strategy: conservative
data:
  trace_path: trace.csv
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.System.MTotal)
	assert.Equal(t, "swap", cfg.Control.PreemptionMode)
}

func TestLoad_RejectsUnknownPreemptionMode(t *testing.T) {
	path := writeConfig(t, `
system:
  m_total: 1
  b: 1
control:
  preemption_mode: nonsense
  preemption_strategy: conservative
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "control.preemption_mode", cfgErr.Field)
}

func TestLoad_RejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
system:
  m_total: 1
  b: 1
control:
  preemption_mode: swap
  preemption_strategy: nonsense
`)
	_, err := Load(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "control.preemption_strategy", cfgErr.Field)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidate_AdmissionControlThresholdOutOfRange(t *testing.T) {
	cfg := &Config{
		System:  System{MTotal: 1, B: 1},
		Control: Control{PreemptionMode: "swap", PreemptionStrategy: "aggressive"},
		AdmissionControl: &AdmissionControl{Enabled: true, Threshold: 1.5},
	}
	err := cfg.Validate()
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "admission_control.threshold", cfgErr.Field)
}
