// Package api encodes motor and joystick intents into the HTTP requests the
// device firmware expects, and issues them.
package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Request is the wire shape of one intent. Path carries the query string
// when the endpoint takes one.
type Request struct {
	Method string
	Path   string
}

func (r Request) String() string { return r.Method + " " + r.Path }

// Direction is the UI's direction value. Only "1" means positive; the wire
// protocol has no direction field, so it is folded into the step sign.
type Direction string

const (
	Positive Direction = "1"
	Negative Direction = "0"
)

// Apply returns steps signed for the wire.
func (d Direction) Apply(steps int) int {
	if d == Positive {
		return steps
	}
	return -steps
}

// MotorInit initializes a motor driver.
func MotorInit(motor int) Request {
	return Request{Method: http.MethodPost, Path: fmt.Sprintf("/api/motor/%d/init", motor)}
}

// MotorData reads a motor driver's state.
func MotorData(motor int) Request {
	return Request{Method: http.MethodGet, Path: fmt.Sprintf("/api/motor/%d/data", motor)}
}

// MotorConfig sets microsteps and coil current.
func MotorConfig(motor, steps int, current float64) Request {
	return Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/motor/%d/config/?steps=%d&current=%s", motor, steps, formatNumber(current)),
	}
}

// MotorMove moves a motor by steps in dir at rpm.
func MotorMove(motor, steps int, dir Direction, rpm float64) Request {
	return Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/motor/%d/move/%d/%s", motor, dir.Apply(steps), formatNumber(rpm)),
	}
}

// MotorRun runs a motor at a constant speed.
func MotorRun(motor int, speed float64) Request {
	return Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/api/motor/%d/run/%s", motor, formatNumber(speed)),
	}
}

// MotorHold holds (true) or releases (false) the motor.
func MotorHold(motor int, hold bool) Request {
	v := 0
	if hold {
		v = 1
	}
	return Request{Method: http.MethodPost, Path: fmt.Sprintf("/api/motor/%d/hold/%d", motor, v)}
}

// JoyCommand sends a named joystick command such as "demo".
func JoyCommand(command string) Request {
	return Request{Method: http.MethodPost, Path: "/api/joy/" + url.PathEscape(command)}
}

// JoyRead fetches the joystick axes and buttons.
func JoyRead() Request {
	return Request{Method: http.MethodGet, Path: "/api/joy"}
}

// formatNumber prints integers without a fraction and everything else in
// the shortest form that round-trips, the way a browser prints numbers.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
