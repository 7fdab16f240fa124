package max31855

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSPIHz is the clock used when none is configured. The part tops out at 5MHz.
const DefaultSPIHz = 1000000

// SPIThermocouple reads frames with full-duplex SPI transactions through periph.
type SPIThermocouple struct {
	port spi.PortCloser
	conn spi.Conn
}

// OpenSPI opens the named SPI port (e.g. "SPI0.0", or "" for the first one).
func OpenSPI(name string, hz int64) (*SPIThermocouple, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: init host: %v", ErrOpen, err)
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: open spi port %q: %v", ErrOpen, name, err)
	}
	if hz <= 0 {
		hz = DefaultSPIHz
	}
	conn, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("%w: connect spi port %q: %v", ErrOpen, name, err), port.Close())
	}
	return &SPIThermocouple{port: port, conn: conn}, nil
}

// ReadSample clocks out one frame and decodes it.
func (t *SPIThermocouple) ReadSample() (Sample, error) {
	var w, r [FrameSize]byte
	if err := t.conn.Tx(w[:], r[:]); err != nil {
		return Sample{}, fmt.Errorf("spi transaction: %w", err)
	}
	return Decode(binary.BigEndian.Uint32(r[:])), nil
}

// Close releases the port.
func (t *SPIThermocouple) Close() error {
	return t.port.Close()
}
