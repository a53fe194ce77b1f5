package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JoystickSample is one reading of the joystick. Bit i of Buttons is the
// pressed state of button i.
type JoystickSample struct {
	X, Y, Z    float64
	RX, RY, RZ float64
	Buttons    uint32
}

type wireSample struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	RX      float64 `json:"rx"`
	RY      float64 `json:"ry"`
	RZ      float64 `json:"rz"`
	Buttons int64   `json:"buttons"`
}

// JoystickResult is the outcome of a joystick read.
type JoystickResult struct {
	Sample JoystickSample
	Err    error
}

// Lines renders the sample one field per line. A failed read renders as
// FailureText alone.
func (r JoystickResult) Lines() []string {
	if r.Err != nil {
		return []string{FailureText}
	}
	s := r.Sample
	return []string{
		"x: " + formatNumber(s.X),
		"y: " + formatNumber(s.Y),
		"z: " + formatNumber(s.Z),
		"rx: " + formatNumber(s.RX),
		"ry: " + formatNumber(s.RY),
		"rz: " + formatNumber(s.RZ),
		"buttons: " + FormatButtons(s.Buttons),
	}
}

// Joystick fetches a fresh sample.
func (c *Client) Joystick(ctx context.Context) JoystickResult {
	req := JoyRead()
	body, id, err := c.send(ctx, req)
	if err != nil {
		return JoystickResult{Err: err}
	}

	var wire wireSample
	if err := json.Unmarshal(body, &wire); err != nil {
		err = fmt.Errorf("decode joystick sample: %w", err)
		c.logger.Printf("Request %s %s failed: %v", id, req, err)
		return JoystickResult{Err: err}
	}
	return JoystickResult{Sample: JoystickSample{
		X: wire.X, Y: wire.Y, Z: wire.Z,
		RX: wire.RX, RY: wire.RY, RZ: wire.RZ,
		// Negative values wrap to their unsigned 32-bit pattern.
		Buttons: uint32(wire.Buttons),
	}}
}

// FormatButtons renders v as 32 binary digits, most significant first,
// separated by single spaces.
func FormatButtons(v uint32) string {
	bits := fmt.Sprintf("%032b", v)
	var b strings.Builder
	b.Grow(len(bits)*2 - 1)
	for i := 0; i < len(bits); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(bits[i])
	}
	return b.String()
}
