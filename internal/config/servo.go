package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical servo defaults file.
const DefaultConfigPath = "config/servo.defaults.json"

// ServoConfig is the root configuration of the controller process. Every
// field is optional; the Get* accessors supply the default for anything the
// file omits, so partial configs are safe.
type ServoConfig struct {
	// Sensor geometry
	FrameWidth  *int `json:"frame_width,omitempty" yaml:"frame_width,omitempty"`
	FrameHeight *int `json:"frame_height,omitempty" yaml:"frame_height,omitempty"`

	// Vision knobs (initial values; tunable at runtime)
	MinDepth    *uint16  `json:"min_depth,omitempty" yaml:"min_depth,omitempty"`
	MaxDepth    *uint16  `json:"max_depth,omitempty" yaml:"max_depth,omitempty"`
	MinBlobArea *float64 `json:"min_blob_area,omitempty" yaml:"min_blob_area,omitempty"`
	MaxBlobArea *float64 `json:"max_blob_area,omitempty" yaml:"max_blob_area,omitempty"`

	// Control loop
	TickPeriod       *string `json:"tick_period,omitempty" yaml:"tick_period,omitempty"` // duration string like "50ms"
	TargetLossFrames *int    `json:"target_loss_frames,omitempty" yaml:"target_loss_frames,omitempty"`

	Thrust *AxisConfig `json:"thrust,omitempty" yaml:"thrust,omitempty"`
	Roll   *AxisConfig `json:"roll,omitempty" yaml:"roll,omitempty"`
	Pitch  *AxisConfig `json:"pitch,omitempty" yaml:"pitch,omitempty"`

	// Command transport
	Transport   *string `json:"transport,omitempty" yaml:"transport,omitempty"` // "udp" or "serial"
	VehicleAddr *string `json:"vehicle_addr,omitempty" yaml:"vehicle_addr,omitempty"`
	SerialPort  *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	SerialBaud  *int    `json:"serial_baud,omitempty" yaml:"serial_baud,omitempty"`
}

// AxisConfig holds the tuning of one PID axis. Omitted fields fall back to
// the axis default.
type AxisConfig struct {
	Setpoint    *float64 `json:"setpoint,omitempty" yaml:"setpoint,omitempty"`
	Kp          *float64 `json:"kp,omitempty" yaml:"kp,omitempty"`
	Ki          *float64 `json:"ki,omitempty" yaml:"ki,omitempty"`
	Kd          *float64 `json:"kd,omitempty" yaml:"kd,omitempty"`
	Bias        *float64 `json:"bias,omitempty" yaml:"bias,omitempty"`
	IntegralMin *float64 `json:"integral_min,omitempty" yaml:"integral_min,omitempty"`
	IntegralMax *float64 `json:"integral_max,omitempty" yaml:"integral_max,omitempty"`
	OutputMin   *float64 `json:"output_min,omitempty" yaml:"output_min,omitempty"`
	OutputMax   *float64 `json:"output_max,omitempty" yaml:"output_max,omitempty"`
}

// Axis is a fully resolved AxisConfig.
type Axis struct {
	Setpoint    float64
	Kp, Ki, Kd  float64
	Bias        float64
	IntegralMin float64
	IntegralMax float64
	OutputMin   float64
	OutputMax   float64
}

// Reference gain sets. Thrust follows the target's image row with a hover
// bias; roll follows the image column; pitch follows range in millimetres.
var (
	defaultThrust = Axis{Setpoint: 200, Kp: -0.001, Ki: -0.002, Kd: -1.0, Bias: 0.53,
		IntegralMin: -50, IntegralMax: 50, OutputMin: 0, OutputMax: 1}
	defaultRoll = Axis{Setpoint: 256, Kp: 0.0005, Ki: 0.0001,
		IntegralMin: -100, IntegralMax: 100, OutputMin: -1, OutputMax: 1}
	defaultPitch = Axis{Setpoint: 1000, Kp: -0.0001, Ki: -0.00001,
		IntegralMin: -500, IntegralMax: 500, OutputMin: -1, OutputMax: 1}
)

// EmptyServoConfig returns a ServoConfig with all fields unset.
func EmptyServoConfig() *ServoConfig {
	return &ServoConfig{}
}

// LoadServoConfig loads a ServoConfig from a .json, .yaml or .yml file.
func LoadServoConfig(path string) (*ServoConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServoConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories so it works from any package test. Panics if not found.
func MustLoadDefaultConfig() *ServoConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/<tool>/
	}
	for _, path := range candidates {
		if cfg, err := LoadServoConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *ServoConfig) Validate() error {
	if c.TickPeriod != nil && *c.TickPeriod != "" {
		d, err := time.ParseDuration(*c.TickPeriod)
		if err != nil {
			return fmt.Errorf("invalid tick_period '%s': %w", *c.TickPeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_period must be positive, got %s", d)
		}
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.TargetLossFrames != nil && *c.TargetLossFrames < 0 {
		return fmt.Errorf("target_loss_frames must be non-negative, got %d", *c.TargetLossFrames)
	}
	if c.Transport != nil {
		switch *c.Transport {
		case "udp", "serial":
		default:
			return fmt.Errorf("unsupported transport %q: expected udp or serial", *c.Transport)
		}
	}
	for name, a := range map[string]Axis{"thrust": c.GetThrust(), "roll": c.GetRoll(), "pitch": c.GetPitch()} {
		if a.IntegralMin > a.IntegralMax {
			return fmt.Errorf("%s: integral_min %g exceeds integral_max %g", name, a.IntegralMin, a.IntegralMax)
		}
		if a.OutputMin > a.OutputMax {
			return fmt.Errorf("%s: output_min %g exceeds output_max %g", name, a.OutputMin, a.OutputMax)
		}
	}
	return nil
}

// GetTickPeriod returns the control period.
func (c *ServoConfig) GetTickPeriod() time.Duration {
	if c.TickPeriod == nil || *c.TickPeriod == "" {
		return 50 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.TickPeriod)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetFrameWidth returns the expected depth frame width in pixels.
func (c *ServoConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 512
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the expected depth frame height in pixels.
func (c *ServoConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 424
	}
	return *c.FrameHeight
}

// GetMinDepth returns the near edge of the depth band (mm).
func (c *ServoConfig) GetMinDepth() uint16 {
	if c.MinDepth == nil {
		return 500
	}
	return *c.MinDepth
}

// GetMaxDepth returns the far edge of the depth band (mm).
func (c *ServoConfig) GetMaxDepth() uint16 {
	if c.MaxDepth == nil {
		return 1500
	}
	return *c.MaxDepth
}

// GetMinBlobArea returns the exclusive lower blob area bound.
func (c *ServoConfig) GetMinBlobArea() float64 {
	if c.MinBlobArea == nil {
		return 100
	}
	return *c.MinBlobArea
}

// GetMaxBlobArea returns the exclusive upper blob area bound.
func (c *ServoConfig) GetMaxBlobArea() float64 {
	if c.MaxBlobArea == nil {
		return 20000
	}
	return *c.MaxBlobArea
}

// GetTargetLossFrames returns the number of consecutive frames without a
// target after which the controller disarms. Zero disables the policy.
func (c *ServoConfig) GetTargetLossFrames() int {
	if c.TargetLossFrames == nil {
		return 0
	}
	return *c.TargetLossFrames
}

// GetTransport returns "udp" or "serial".
func (c *ServoConfig) GetTransport() string {
	if c.Transport == nil || *c.Transport == "" {
		return "udp"
	}
	return *c.Transport
}

// GetVehicleAddr returns the host:port commands are sent to.
func (c *ServoConfig) GetVehicleAddr() string {
	if c.VehicleAddr == nil || *c.VehicleAddr == "" {
		return "192.168.1.1:5556"
	}
	return *c.VehicleAddr
}

// GetSerialPort returns the serial device used by the serial transport.
func (c *ServoConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// GetSerialBaud returns the serial baud rate.
func (c *ServoConfig) GetSerialBaud() int {
	if c.SerialBaud == nil {
		return 57600
	}
	return *c.SerialBaud
}

// GetThrust returns the resolved vertical (thrust) axis.
func (c *ServoConfig) GetThrust() Axis { return c.Thrust.resolve(defaultThrust) }

// GetRoll returns the resolved lateral (roll) axis.
func (c *ServoConfig) GetRoll() Axis { return c.Roll.resolve(defaultRoll) }

// GetPitch returns the resolved depth (pitch) axis.
func (c *ServoConfig) GetPitch() Axis { return c.Pitch.resolve(defaultPitch) }

func (a *AxisConfig) resolve(def Axis) Axis {
	if a == nil {
		return def
	}
	out := def
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&out.Setpoint, a.Setpoint)
	set(&out.Kp, a.Kp)
	set(&out.Ki, a.Ki)
	set(&out.Kd, a.Kd)
	set(&out.Bias, a.Bias)
	set(&out.IntegralMin, a.IntegralMin)
	set(&out.IntegralMax, a.IntegralMax)
	set(&out.OutputMin, a.OutputMin)
	set(&out.OutputMax, a.OutputMax)
	return out
}
