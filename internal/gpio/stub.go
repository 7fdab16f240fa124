//go:build !linux

package gpio

import "fmt"

// CdevPin is not available on non-Linux platforms.
type CdevPin struct{}

// OpenCdev returns an error on non-Linux platforms.
func OpenCdev(chipName string, port int, dir Direction) (*CdevPin, error) {
	return nil, fmt.Errorf("%w: gpio character device not supported on this platform (requires Linux)", ErrOpen)
}

// Read is not implemented on non-Linux platforms.
func (p *CdevPin) Read() (State, error) {
	return Low, fmt.Errorf("gpio: not supported")
}

// Write is not implemented on non-Linux platforms.
func (p *CdevPin) Write(State) error {
	return fmt.Errorf("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (p *CdevPin) Close() error {
	return nil
}
