package max31855

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultDevice is the spidev node the converter is wired to.
const DefaultDevice = "/dev/spidev0.0"

// FrameSize is the number of bytes in one frame.
const FrameSize = 4

var (
	// ErrOpen is returned when the device cannot be opened.
	ErrOpen = errors.New("max31855: open")

	// ErrShortRead means fewer than FrameSize bytes were available.
	// It is not a hardware failure; there is simply no sample this time.
	ErrShortRead = errors.New("max31855: short read")
)

// Thermocouple reads frames from a byte stream such as a spidev node.
type Thermocouple struct {
	dev io.ReadCloser
}

// Open opens the device at path for the life of the process.
func Open(path string) (*Thermocouple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return &Thermocouple{dev: f}, nil
}

// NewThermocouple wraps an already open stream.
func NewThermocouple(dev io.ReadCloser) *Thermocouple {
	return &Thermocouple{dev: dev}
}

// ReadSample reads one frame with a single read call and decodes it.
func (t *Thermocouple) ReadSample() (Sample, error) {
	var buf [FrameSize]byte
	n, err := t.dev.Read(buf[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return Sample{}, fmt.Errorf("read thermocouple: %w", err)
	}
	if n != FrameSize {
		return Sample{}, fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, n, FrameSize)
	}
	return Decode(binary.BigEndian.Uint32(buf[:])), nil
}

// Close closes the device.
func (t *Thermocouple) Close() error {
	return t.dev.Close()
}
