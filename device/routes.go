package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

var errBadParam = errors.New("bad parameter")

// requestIDHeader matches the id the control client attaches to each request.
const requestIDHeader = "X-Request-ID"

// Handler returns the device's HTTP surface.
func (d *Device) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/joy", d.getJoystick).Methods(http.MethodGet)
	r.HandleFunc("/api/joy/{command}", d.joystickCommand).Methods(http.MethodPost)

	m := r.PathPrefix("/api/motor/{index:[0-9]+}").Subrouter()
	m.HandleFunc("/init", d.motorRoute(initMotor)).Methods(http.MethodPost)
	m.HandleFunc("/data", d.motorRoute(motorData)).Methods(http.MethodGet)
	m.HandleFunc("/config/", d.motorRoute(configMotor)).Methods(http.MethodPost)
	m.HandleFunc("/move/{steps}/{rpm}", d.motorRoute(moveMotor)).Methods(http.MethodPost)
	m.HandleFunc("/run/{speed}", d.motorRoute(runMotor)).Methods(http.MethodPost)
	m.HandleFunc("/hold/{value}", d.motorRoute(holdMotor)).Methods(http.MethodPost)

	r.Handle("/connect-websocket", d.push).Methods(http.MethodGet)
	return r
}

// traceRequest logs the request with the caller's id, when it sent one.
func (d *Device) traceRequest(r *http.Request) {
	if id := r.Header.Get(requestIDHeader); id != "" {
		d.logger.Printf("Request %s: %s %s", id, r.Method, r.URL.RequestURI())
	}
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, text)
}

func (d *Device) joystickCommand(w http.ResponseWriter, r *http.Request) {
	d.traceRequest(r)
	command := mux.Vars(r)["command"]
	if command != "demo" {
		writeText(w, "Unsupported command: "+command)
		return
	}
	d.Logf("Setting joystick demo positions")
	d.demoJoystick()
	writeText(w, "Demo positions set")
}

func (d *Device) getJoystick(w http.ResponseWriter, r *http.Request) {
	d.traceRequest(r)
	j := d.Joystick()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{
		"x":       j.X,
		"y":       j.Y,
		"z":       j.Z,
		"rx":      j.RX,
		"ry":      j.RY,
		"rz":      j.RZ,
		"buttons": int(j.Buttons),
	})
}

type motorOp func(d *Device, index int, m *Motor, r *http.Request) (string, error)

func (d *Device) motorRoute(op motorOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.traceRequest(r)
		index, err := strconv.Atoi(mux.Vars(r)["index"])
		if err != nil {
			http.Error(w, "invalid motor index", http.StatusBadRequest)
			return
		}

		d.mu.Lock()
		if index >= len(d.motors) {
			d.mu.Unlock()
			http.Error(w, fmt.Sprintf("Unknown motor %d", index), http.StatusNotFound)
			return
		}
		text, err := op(d, index, d.motors[index], r)
		d.mu.Unlock()

		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeText(w, text)
	}
}

func initMotor(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	m.Initialized = true
	m.Current = 1
	m.Microsteps = defaultMicrosteps
	m.Writes += 3
	d.Logf("Motor %d: writing %d microstep setting", index, m.Microsteps)
	return "Motor init OK", nil
}

func motorData(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	gconf := 0b1_0000_0001
	if m.Initialized {
		gconf |= 1 << 7 // mstep_reg_select
	}
	return fmt.Sprintf("{'GCONF': '0b%b', 'IFCNT': %d, 'position': %d}", gconf, m.Writes, m.Position), nil
}

func configMotor(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	q := r.URL.Query()
	steps, err := strconv.Atoi(q.Get("steps"))
	if err != nil || steps < 1 || steps > 256 || steps&(steps-1) != 0 {
		return "", fmt.Errorf("%w: steps must be a power of two between 1 and 256", errBadParam)
	}
	current, err := parseNumber(q.Get("current"))
	if err != nil || current < 0 {
		return "", fmt.Errorf("%w: current must be a non-negative number", errBadParam)
	}

	m.Microsteps = steps
	m.Current = current
	m.Writes += 2
	d.Logf("Motor %d: config steps %d, current %s", index, steps, q.Get("current"))
	return fmt.Sprintf("Motor configured: steps %d, current %s", steps, q.Get("current")), nil
}

func moveMotor(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	vars := mux.Vars(r)
	steps, err := strconv.Atoi(vars["steps"])
	if err != nil {
		return "", fmt.Errorf("%w: steps must be an integer", errBadParam)
	}
	rpm, err := parseNumber(vars["rpm"])
	if err != nil || rpm < 0 {
		return "", fmt.Errorf("%w: rpm must be a non-negative number", errBadParam)
	}

	m.Position += steps
	m.RPM = rpm
	d.Logf("Motor %d: starting move, steps to be done %d at %s rpm", index, steps, vars["rpm"])
	return "OK", nil
}

func runMotor(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	speed, err := parseNumber(mux.Vars(r)["speed"])
	if err != nil {
		return "", fmt.Errorf("%w: speed must be a number", errBadParam)
	}
	m.Speed = speed
	m.Writes++
	d.Logf("Motor %d: run with speed %s", index, mux.Vars(r)["speed"])
	return "OK", nil
}

func holdMotor(d *Device, index int, m *Motor, r *http.Request) (string, error) {
	value := mux.Vars(r)["value"]
	switch value {
	case "1":
		m.Holding = true
	case "0":
		m.Holding = false
	default:
		return "", fmt.Errorf("%w: hold must be 0 or 1", errBadParam)
	}
	m.Writes++
	d.Logf("Motor %d: set to hold %s", index, value)
	return "Motor set to hold " + value, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errBadParam
	}
	return v, nil
}
