package max31855

import "errors"

// FakeRead is one scripted result of FakeSource.ReadSample.
type FakeRead struct {
	Raw uint32
	Err error
}

// FakeSource is a test double that returns scripted frames.
type FakeSource struct {
	// Reads contains scripted results. Each call consumes the next one;
	// the last one repeats.
	Reads []FakeRead

	// OnRead, if set, is called before every read returns.
	// Tests use it to advance a mock clock.
	OnRead func()

	// Calls counts ReadSample invocations.
	Calls int

	index  int
	Closed bool
}

// NewFakeSource creates a FakeSource that returns the given frames.
func NewFakeSource(frames ...uint32) *FakeSource {
	f := &FakeSource{}
	for _, raw := range frames {
		f.Reads = append(f.Reads, FakeRead{Raw: raw})
	}
	return f
}

// Push appends a scripted result.
func (f *FakeSource) Push(raw uint32, err error) {
	f.Reads = append(f.Reads, FakeRead{Raw: raw, Err: err})
}

// Set replaces the script with a single repeating result.
func (f *FakeSource) Set(raw uint32, err error) {
	f.Reads = []FakeRead{{Raw: raw, Err: err}}
	f.index = 0
}

// ReadSample returns the next scripted frame decoded.
func (f *FakeSource) ReadSample() (Sample, error) {
	f.Calls++
	if f.OnRead != nil {
		f.OnRead()
	}
	if len(f.Reads) == 0 {
		return Sample{}, errors.New("no samples configured")
	}

	r := f.Reads[f.index]
	if f.index < len(f.Reads)-1 {
		f.index++
	}
	if r.Err != nil {
		return Sample{}, r.Err
	}
	return Decode(r.Raw), nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Frame builds a fault-free raw frame with the given thermocouple and
// internal readings in quarter degrees Celsius.
func Frame(thermocouple, internal uint16) uint32 {
	return uint32(thermocouple&0x3FFF)<<18 | uint32(internal&0xFFF)<<3
}

// FaultFrame builds a raw frame with the aggregate fault bit and the given
// specific fault bits (bit 0 open, bit 1 GND, bit 2 VCC).
func FaultFrame(bits uint32) uint32 {
	return 1<<15 | bits&0x7
}
