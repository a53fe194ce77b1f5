// Package device simulates the motor controller's HTTP API and log push
// channel. It backs the integration tests and the server binary.
package device

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultMicrosteps = 8
	axisMax           = 4095
)

type Config struct {
	Motors      int
	JournalSize int
	Logger      *log.Logger
	// Now stamps journal lines; defaults to time.Now.
	Now func() time.Time
}

// Motor is the simulated state of one stepper driver.
type Motor struct {
	Initialized bool
	Microsteps  int
	Current     float64
	Position    int
	RPM         float64
	Speed       float64
	Holding     bool
	// Writes counts register writes, like the driver's IFCNT.
	Writes int
}

// Joystick holds the six axes (0..4095) and a 16 bit button mask.
type Joystick struct {
	X, Y, Z    int
	RX, RY, RZ int
	Buttons    uint16
}

type Device struct {
	mu     sync.Mutex
	motors []*Motor
	joy    Joystick

	journal *Journal
	logger  *log.Logger
	push    *pushHandler
}

func New(cfg Config) *Device {
	n := cfg.Motors
	if n <= 0 {
		n = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	d := &Device{
		motors:  make([]*Motor, n),
		journal: NewJournal(cfg.JournalSize, cfg.Now),
		logger:  logger,
	}
	for i := range d.motors {
		d.motors[i] = &Motor{Microsteps: defaultMicrosteps}
	}
	d.push = newPushHandler(d.journal, logger)
	return d
}

func (d *Device) Journal() *Journal { return d.journal }

// Logf writes to the process log and the journal.
func (d *Device) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.logger.Println(msg)
	d.journal.Add("DEBUG", msg)
}

// Motor returns a copy of motor i's state.
func (d *Device) Motor(i int) (Motor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.motors) {
		return Motor{}, false
	}
	return *d.motors[i], true
}

func (d *Device) Joystick() Joystick {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joy
}

func (d *Device) SetJoystick(j Joystick) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.joy = j
}

// Close drops the active push connection, if any.
func (d *Device) Close() {
	d.push.closeActive()
}

func (d *Device) demoJoystick() {
	d.mu.Lock()
	d.joy = Joystick{
		X:       rand.Intn(axisMax + 1),
		Y:       rand.Intn(axisMax + 1),
		Z:       rand.Intn(axisMax + 1),
		RX:      rand.Intn(axisMax + 1),
		RY:      rand.Intn(axisMax + 1),
		RZ:      rand.Intn(axisMax + 1),
		Buttons: uint16(rand.Intn(0x10000)),
	}
	d.mu.Unlock()
}
