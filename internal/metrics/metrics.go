// Package metrics records control loop samples to InfluxDB.
package metrics

import (
	"fmt"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"go.uber.org/multierr"

	"github.com/sweeney/sousvide/internal/control"
)

// Measurement is the InfluxDB measurement every point is written to.
const Measurement = "sousvide"

// DefaultInterval is how often buffered points are written.
const DefaultInterval = 10 * time.Second

// maxBuffered bounds points kept while the database is unreachable.
const maxBuffered = 3600

// Recorder stores one sample of controller state per step.
type Recorder interface {
	Record(at time.Time, st control.State) error
	Close() error
}

// Config holds InfluxDB connection settings.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Interval time.Duration
}

// writer is the part of client.Client the recorder uses.
type writer interface {
	Write(bp client.BatchPoints) error
	Close() error
}

// InfluxRecorder buffers points and writes them in one batch per interval.
type InfluxRecorder struct {
	client   writer
	database string
	interval time.Duration

	mu        sync.Mutex
	points    []*client.Point
	lastFlush time.Time
}

// NewInfluxRecorder creates a recorder writing to the HTTP API at cfg.Addr.
func NewInfluxRecorder(cfg Config) (*InfluxRecorder, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create influx client: %w", err)
	}
	return newInfluxRecorder(c, cfg), nil
}

func newInfluxRecorder(w writer, cfg Config) *InfluxRecorder {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &InfluxRecorder{
		client:   w,
		database: cfg.Database,
		interval: interval,
	}
}

// Point builds the InfluxDB point for st. Unknown temperatures are omitted.
func Point(at time.Time, st control.State) (*client.Point, error) {
	fields := map[string]interface{}{
		"pump":   st.Pump,
		"heater": st.Heater,
	}
	if v, ok := st.Current.Get(); ok {
		fields["cur_temp"] = v
	}
	if v, ok := st.Setpoint.Get(); ok {
		fields["set_temp"] = v
	}
	return client.NewPoint(Measurement, map[string]string{}, fields, at)
}

// Record buffers a point and writes the buffer once interval has passed
// since the previous write. Points that fail to write stay buffered.
func (r *InfluxRecorder) Record(at time.Time, st control.State) error {
	p, err := Point(at, st)
	if err != nil {
		return fmt.Errorf("build point: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastFlush.IsZero() {
		r.lastFlush = at
	}
	if len(r.points) >= maxBuffered {
		r.points = r.points[1:]
	}
	r.points = append(r.points, p)

	if at.Sub(r.lastFlush) < r.interval {
		return nil
	}
	r.lastFlush = at
	return r.flushLocked()
}

// Flush writes all buffered points now.
func (r *InfluxRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

// Buffered returns the number of points not yet written.
func (r *InfluxRecorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.points)
}

// Close flushes and closes the client.
func (r *InfluxRecorder) Close() error {
	return multierr.Combine(r.Flush(), r.client.Close())
}

func (r *InfluxRecorder) flushLocked() error {
	if len(r.points) == 0 {
		return nil
	}
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  r.database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	bp.AddPoints(r.points)
	if err := r.client.Write(bp); err != nil {
		return fmt.Errorf("write %d points: %w", len(r.points), err)
	}
	r.points = nil
	return nil
}
