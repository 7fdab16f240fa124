package max31855

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns at most n bytes per Read, like a device with little data.
type chunkReader struct {
	data []byte
	n    int
	err  error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(p) {
		n = len(p)
	}
	if n > len(c.data) {
		n = len(c.data)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func (c *chunkReader) Close() error { return nil }

func TestReadSampleBigEndian(t *testing.T) {
	// tc = 100 (25 degC) => 0x01900000
	tc := NewThermocouple(io.NopCloser(bytes.NewReader([]byte{0x01, 0x90, 0x00, 0x00})))

	s, err := tc.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, uint16(100), s.Thermocouple)
}

func TestReadSampleShortRead(t *testing.T) {
	tc := NewThermocouple(&chunkReader{data: []byte{0x01, 0x90, 0x00, 0x00}, n: 3})

	_, err := tc.ReadSample()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
}

func TestReadSampleEOFIsShortRead(t *testing.T) {
	tc := NewThermocouple(io.NopCloser(bytes.NewReader(nil)))

	_, err := tc.ReadSample()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
}

func TestReadSampleIOError(t *testing.T) {
	ioErr := errors.New("bus fault")
	tc := NewThermocouple(&chunkReader{err: ioErr})

	_, err := tc.ReadSample()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ioErr))
	assert.False(t, errors.Is(err, ErrShortRead))
}

func TestOpenStreamsFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spidev0.0")
	data := []byte{
		0x01, 0x90, 0x00, 0x00, // 25 degC
		0x00, 0x00, 0x80, 0x01, // open-circuit fault
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tc, err := Open(path)
	require.NoError(t, err)
	defer tc.Close()

	s, err := tc.ReadSample()
	require.NoError(t, err)
	c, ok := s.Celsius().Get()
	require.True(t, ok)
	assert.Equal(t, 25.0, c)

	s, err = tc.ReadSample()
	require.NoError(t, err)
	assert.True(t, s.Fault)
	assert.True(t, s.OpenCircuit)

	_, err = tc.ReadSample()
	assert.True(t, errors.Is(err, ErrShortRead))
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOpen))
}

func TestFakeSource(t *testing.T) {
	f := NewFakeSource(Frame(100, 0))
	f.Push(0, ErrShortRead)

	s, err := f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, uint16(100), s.Thermocouple)

	_, err = f.ReadSample()
	assert.True(t, errors.Is(err, ErrShortRead))

	// last result repeats
	_, err = f.ReadSample()
	assert.True(t, errors.Is(err, ErrShortRead))
	assert.Equal(t, 3, f.Calls)

	f.Set(Frame(4, 0), nil)
	s, err = f.ReadSample()
	require.NoError(t, err)
	assert.Equal(t, uint16(4), s.Thermocouple)
}

func TestFakeSourceOnRead(t *testing.T) {
	var n int
	f := NewFakeSource(Frame(1, 0))
	f.OnRead = func() { n++ }

	f.ReadSample()
	f.ReadSample()
	assert.Equal(t, 2, n)
}
