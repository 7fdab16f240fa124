package gpio

import "errors"

// FakePin is a test double that records writes and returns scripted reads.
type FakePin struct {
	// Level is the current line level; Write updates it.
	Level State

	// Writes records every successful Write in order.
	Writes []State

	// Reads contains scripted values to return from Read.
	// Each call consumes the next value; the last one repeats.
	Reads []State

	// index tracks current position in Reads
	index int

	// ReadError, if set, will be returned by Read.
	ReadError error

	// WriteError, if set, will be returned by Write and the level is left unchanged.
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakePin creates a FakePin at Low with no recorded writes.
func NewFakePin() *FakePin {
	return &FakePin{}
}

// Read returns the next scripted value, or the current level if none are scripted.
func (f *FakePin) Read() (State, error) {
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	if f.Closed {
		return Low, errors.New("pin closed")
	}
	if len(f.Reads) == 0 {
		return f.Level, nil
	}

	s := f.Reads[f.index]
	if f.index < len(f.Reads)-1 {
		f.index++
	}
	return s, nil
}

// Write records the level.
func (f *FakePin) Write(s State) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.Closed {
		return errors.New("pin closed")
	}
	f.Level = s
	f.Writes = append(f.Writes, s)
	return nil
}

// WriteCount returns the number of successful writes.
func (f *FakePin) WriteCount() int {
	return len(f.Writes)
}

// Close marks the pin as closed.
func (f *FakePin) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes and scripted reads.
func (f *FakePin) Reset() {
	f.Writes = nil
	f.index = 0
	f.Closed = false
}
