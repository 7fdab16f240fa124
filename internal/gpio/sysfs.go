package gpio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// SysfsPin drives a line exported under /sys/class/gpio.
// The value file stays open for the life of the pin.
type SysfsPin struct {
	port int
	dir  Direction
	file *os.File
}

// OpenSysfs opens gpio<port> below root and sets its direction.
// Output pins are initialised Low. The line must already be exported.
func OpenSysfs(root string, port int, dir Direction) (*SysfsPin, error) {
	base := filepath.Join(root, fmt.Sprintf("gpio%d", port))

	if err := writeControl(filepath.Join(base, "direction"), dir.String()); err != nil {
		return nil, fmt.Errorf("%w: set direction of pin %d: %v", ErrOpen, port, err)
	}

	flag := os.O_RDONLY
	if dir == Out {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(filepath.Join(base, "value"), flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open value of pin %d: %v", ErrOpen, port, err)
	}

	p := &SysfsPin{port: port, dir: dir, file: f}
	if dir == Out {
		if err := p.Write(Low); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: initialise pin %d: %v", ErrOpen, port, err)
		}
	}
	return p, nil
}

// Port returns the line number.
func (p *SysfsPin) Port() int { return p.port }

// Read seeks to the start of the value file and reads one byte.
func (p *SysfsPin) Read() (State, error) {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return Low, fmt.Errorf("seek pin %d: %w", p.port, err)
	}
	buf := make([]byte, 1)
	n, err := p.file.Read(buf)
	if err != nil && err != io.EOF {
		return Low, fmt.Errorf("read pin %d: %w", p.port, err)
	}
	return parseState(buf[:n])
}

// Write seeks to the start of the value file and writes one byte.
func (p *SysfsPin) Write(s State) error {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek pin %d: %w", p.port, err)
	}
	if _, err := p.file.Write([]byte(s.String())); err != nil {
		return fmt.Errorf("write pin %d: %w", p.port, err)
	}
	return nil
}

// Close closes the value file. The line is left exported.
func (p *SysfsPin) Close() error {
	return p.file.Close()
}

// writeControl writes to an existing sysfs attribute. It never creates the file.
func writeControl(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
