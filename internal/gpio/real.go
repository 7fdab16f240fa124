//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
)

// CdevPin drives a line through the Linux GPIO character device.
type CdevPin struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	port int
}

// OpenCdev requests one line on the named chip (e.g. "gpiochip0").
// Output lines are requested with an initial Low value.
func OpenCdev(chipName string, port int, dir Direction) (*CdevPin, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpio chip %s: %v", ErrOpen, chipName, err)
	}

	var opt gpiocdev.LineReqOption = gpiocdev.AsInput
	if dir == Out {
		opt = gpiocdev.AsOutput(0)
	}
	line, err := chip.RequestLine(port, opt, gpiocdev.WithConsumer("sousvide"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("%w: request pin %d: %v", ErrOpen, port, err)
	}

	return &CdevPin{chip: chip, line: line, port: port}, nil
}

// Read returns the line level.
func (p *CdevPin) Read() (State, error) {
	v, err := p.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", p.port, err)
	}
	return State(v != 0), nil
}

// Write sets the line level.
func (p *CdevPin) Write(s State) error {
	v := 0
	if s == High {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", p.port, err)
	}
	return nil
}

// Close releases the line.
// Reconfigures it to input with pull-down (matching Pi boot defaults) first so
// relays are not held on across a restart.
func (p *CdevPin) Close() error {
	var err error
	if p.line != nil {
		if rerr := p.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); rerr != nil {
			err = multierr.Append(err, fmt.Errorf("reconfigure pin %d: %w", p.port, rerr))
		}
		if cerr := p.line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close pin %d: %w", p.port, cerr))
		}
	}
	if p.chip != nil {
		if cerr := p.chip.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close chip: %w", cerr))
		}
	}
	return err
}
