package metrics

import (
	"sync"
	"time"

	"github.com/sweeney/sousvide/internal/control"
)

// Sample is one recorded state.
type Sample struct {
	At    time.Time
	State control.State
}

// FakeRecorder records samples for test assertions.
type FakeRecorder struct {
	mu sync.Mutex

	// Samples contains every recorded state.
	Samples []Sample

	// RecordError, if set, will be returned by Record.
	RecordError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeRecorder creates a FakeRecorder for testing.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{}
}

// Record stores the sample.
func (f *FakeRecorder) Record(at time.Time, st control.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RecordError != nil {
		return f.RecordError
	}
	f.Samples = append(f.Samples, Sample{At: at, State: st})
	return nil
}

// Len returns the number of recorded samples.
func (f *FakeRecorder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Samples)
}

// Close marks the recorder as closed.
func (f *FakeRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
