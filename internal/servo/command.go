package servo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ProtocolVersion is the version field of every actuation command.
const ProtocolVersion = 1

// ActuationCommand is one control frame for the vehicle. Yaw is not
// controlled and is always zero.
type ActuationCommand struct {
	Version int     `json:"version"`
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Yaw     float64 `json:"yaw"`
	Thrust  float64 `json:"thrust"`
}

// wireFloat always carries a decimal point so that receivers typed on
// float see 0.0 rather than an integer literal.
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported command value %v", v)
	}
	b := strconv.AppendFloat(nil, v, 'f', -1, 64)
	if !bytes.ContainsRune(b, '.') {
		b = append(b, '.', '0')
	}
	return b, nil
}

type wireCommand struct {
	Version int       `json:"version"`
	Roll    wireFloat `json:"roll"`
	Pitch   wireFloat `json:"pitch"`
	Yaw     wireFloat `json:"yaw"`
	Thrust  wireFloat `json:"thrust"`
}

type wireEnvelope struct {
	Ctrl wireCommand `json:"ctrl"`
}

// NewCommand builds a version-1 command with zero yaw.
func NewCommand(thrust, pitch, roll float64) ActuationCommand {
	return ActuationCommand{Version: ProtocolVersion, Roll: roll, Pitch: pitch, Thrust: thrust}
}

// Encode serializes the command as a single newline-terminated JSON line:
//
//	{"ctrl":{"version":1,"roll":0.1,"pitch":0.0,"yaw":0.0,"thrust":0.53}}
func (c ActuationCommand) Encode() ([]byte, error) {
	b, err := json.Marshal(wireEnvelope{Ctrl: wireCommand{
		Version: c.Version,
		Roll:    wireFloat(c.Roll),
		Pitch:   wireFloat(c.Pitch),
		Yaw:     wireFloat(c.Yaw),
		Thrust:  wireFloat(c.Thrust),
	}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return append(b, '\n'), nil
}

// EncodeCommand is shorthand for NewCommand(thrust, pitch, roll).Encode().
func EncodeCommand(thrust, pitch, roll float64) ([]byte, error) {
	return NewCommand(thrust, pitch, roll).Encode()
}

// DecodeCommand parses one command line as produced by Encode.
func DecodeCommand(line []byte) (ActuationCommand, error) {
	var env struct {
		Ctrl *ActuationCommand `json:"ctrl"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(line), &env); err != nil {
		return ActuationCommand{}, fmt.Errorf("failed to decode command: %w", err)
	}
	if env.Ctrl == nil {
		return ActuationCommand{}, fmt.Errorf("failed to decode command: missing ctrl object")
	}
	return *env.Ctrl, nil
}

// IsDisarm reports whether the command carries zero thrust.
func (c ActuationCommand) IsDisarm() bool {
	return c.Thrust == 0
}
