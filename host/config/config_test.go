package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adb-host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
serial:
  device: /dev/ttyUSB3
bus:
  tolerance_us: 4
  reset_on_connect: true
timeouts:
  response: 2s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyUSB3", cfg.Serial.Device)
	require.Equal(t, 115200, cfg.Serial.Baud)
	require.True(t, cfg.Bus.ResetOnConnect)
	require.Equal(t, 2*time.Second, cfg.Timeouts.Response)
	require.Equal(t, 3*time.Second, cfg.Timeouts.Ready)
	require.Equal(t, "debug", cfg.Log.Level)

	tm := cfg.Timing()
	require.EqualValues(t, 4, tm.Tolerance)
	require.EqualValues(t, 200, tm.PulseTimeout)
	require.Equal(t, 80, tm.SampleCapacity)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "serial: [unclosed"))
	require.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Serial.Device = ""
	cfg.Serial.Baud = 0
	cfg.Bus.ToleranceUS = 20
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 4)
	require.Contains(t, err.Error(), "log.level")
}
