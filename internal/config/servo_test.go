package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyServoConfig_Defaults(t *testing.T) {
	cfg := EmptyServoConfig()

	assert.Equal(t, 50*time.Millisecond, cfg.GetTickPeriod())
	assert.Equal(t, 512, cfg.GetFrameWidth())
	assert.Equal(t, 424, cfg.GetFrameHeight())
	assert.Equal(t, uint16(500), cfg.GetMinDepth())
	assert.Equal(t, uint16(1500), cfg.GetMaxDepth())
	assert.Equal(t, 0, cfg.GetTargetLossFrames())
	assert.Equal(t, "udp", cfg.GetTransport())

	thrust := cfg.GetThrust()
	assert.Equal(t, -0.001, thrust.Kp)
	assert.Equal(t, -0.002, thrust.Ki)
	assert.Equal(t, -1.0, thrust.Kd)
	assert.Equal(t, 0.53, thrust.Bias)
	assert.Equal(t, 0.0, cfg.GetRoll().Kd)
	assert.Equal(t, 0.0, cfg.GetPitch().Kd)
}

func TestMustLoadDefaultConfig_MatchesBuiltins(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyServoConfig()

	assert.Equal(t, empty.GetThrust(), cfg.GetThrust())
	assert.Equal(t, empty.GetRoll(), cfg.GetRoll())
	assert.Equal(t, empty.GetPitch(), cfg.GetPitch())
	assert.Equal(t, empty.GetTickPeriod(), cfg.GetTickPeriod())
	assert.Equal(t, empty.GetVehicleAddr(), cfg.GetVehicleAddr())
}

func TestLoadServoConfig_JSONPartialAxis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servo.json")
	body := `{"tick_period": "20ms", "thrust": {"kp": -0.01}, "min_depth": 800}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadServoConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.GetTickPeriod())
	assert.Equal(t, uint16(800), cfg.GetMinDepth())
	thrust := cfg.GetThrust()
	assert.Equal(t, -0.01, thrust.Kp)
	// Fields the file omits keep the axis default.
	assert.Equal(t, 0.53, thrust.Bias)
	assert.Equal(t, -1.0, thrust.Kd)
}

func TestLoadServoConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servo.yaml")
	body := "transport: serial\nserial_port: /dev/ttyACM0\nroll:\n  kp: 0.002\n  integral_max: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadServoConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.GetTransport())
	assert.Equal(t, "/dev/ttyACM0", cfg.GetSerialPort())
	assert.Equal(t, 0.002, cfg.GetRoll().Kp)
	assert.Equal(t, 10.0, cfg.GetRoll().IntegralMax)
	assert.Equal(t, -100.0, cfg.GetRoll().IntegralMin)
}

func TestLoadServoConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		body string
	}{
		{"bad extension", "servo.txt", "{}"},
		{"bad json", "servo.json", "{"},
		{"bad period", "servo.json", `{"tick_period": "soon"}`},
		{"zero period", "servo.json", `{"tick_period": "0s"}`},
		{"inverted clamp", "servo.json", `{"pitch": {"integral_min": 5, "integral_max": 1}}`},
		{"unknown transport", "servo.json", `{"transport": "carrier-pigeon"}`},
		{"negative loss frames", "servo.json", `{"target_loss_frames": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := LoadServoConfig(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadServoConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
