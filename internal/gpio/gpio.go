// Package gpio provides digital output/input pins with hardware abstraction.
// The sysfs implementation drives /sys/class/gpio value files.
// The cdev implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Pin definitions (BCM numbering)
const (
	DefaultPinPump   = 27
	DefaultPinHeater = 17
)

// DefaultSysfsRoot is where the environment exports GPIO lines.
const DefaultSysfsRoot = "/sys/class/gpio"

var (
	// ErrOpen is returned when a pin cannot be acquired or configured.
	ErrOpen = errors.New("gpio: open")

	// ErrProtocol is returned when a read yields no byte or a byte other than '0'/'1'.
	ErrProtocol = errors.New("gpio: unexpected value")
)

// Direction of a pin.
type Direction int

const (
	In Direction = iota
	Out
)

func (d Direction) String() string {
	if d == Out {
		return "out"
	}
	return "in"
}

// State is the logic level of a line.
type State bool

const (
	Low  State = false
	High State = true
)

// StateOf returns High for true.
func StateOf(on bool) State {
	return State(on)
}

func (s State) String() string {
	if s {
		return "1"
	}
	return "0"
}

// Pin is one binary hardware line.
type Pin interface {
	// Read returns the current level. Valid for input pins.
	Read() (State, error)

	// Write sets the level. On error the physical line may or may not have changed.
	Write(State) error

	// Close releases the handle.
	Close() error
}

// parseState decodes the single character held by a value file.
func parseState(buf []byte) (State, error) {
	if len(buf) == 0 {
		return Low, fmt.Errorf("%w: no state read", ErrProtocol)
	}
	switch buf[0] {
	case '0':
		return Low, nil
	case '1':
		return High, nil
	}
	return Low, fmt.Errorf("%w: %q", ErrProtocol, buf[0])
}
