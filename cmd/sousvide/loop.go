package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/sweeney/sousvide/internal/control"
	"github.com/sweeney/sousvide/internal/metrics"
	"github.com/sweeney/sousvide/internal/mqtt"
	"github.com/sweeney/sousvide/internal/status"
)

// daemon connects the control loop to its observers. The controller steps in
// its own goroutine; runLoop drains its events on every tick so slow MQTT or
// InfluxDB writes never delay a step.
type daemon struct {
	ctl        *control.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	recorder   metrics.Recorder // nil disables metrics
	heartbeat  time.Duration    // 0 disables heartbeats
	clock      clock.Clock
	logger     *zap.SugaredLogger

	lastHeartbeat time.Time
}

func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.ctl.Run(ctx) }()

	d.lastHeartbeat = d.clock.Now()

	for {
		select {
		case s := <-sig:
			d.logger.Infof("received %v, shutting down", s)
			cancel()
			err := <-done
			if err != nil {
				d.logger.Errorf("outputs off: %v", err)
			}
			d.sync()
			d.record()
			d.publishShutdown(signalName(s))
			return err

		case err := <-done:
			d.sync()
			return err

		case <-tick:
			d.sync()
			d.record()
			d.checkHeartbeat()
		}
	}
}

// sync publishes pending control events and refreshes the tracker.
func (d *daemon) sync() {
	for _, event := range d.ctl.DrainEvents() {
		d.logger.Infof("event: %s (pump=%v heater=%v cur_temp=%s set_temp=%s)",
			event.Type, event.State.Pump, event.State.Heater, event.State.Current, event.State.Setpoint)
		if err := d.publisher.Publish(event); err != nil {
			// Don't crash on publish failure
			d.logger.Errorf("publish error: %v", err)
		}
	}

	if d.ctl.Steps() > 0 {
		d.tracker.Update(d.ctl.Snapshot(), d.ctl.Counts())
	}
	d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	st := d.mqttStatus.BufferStats()
	d.tracker.SetMQTTBuffer(st.Pending, st.Dropped)
}

// record hands every step completed since the last tick to the recorder.
func (d *daemon) record() {
	steps := d.ctl.DrainSteps()
	if d.recorder == nil {
		return
	}
	var failed error
	for _, step := range steps {
		if err := d.recorder.Record(step.Timestamp, step.State); err != nil {
			failed = err
		}
	}
	if failed != nil {
		d.logger.Warnf("influx: %v", failed)
	}
}

func (d *daemon) checkHeartbeat() {
	if d.heartbeat <= 0 {
		return
	}
	now := d.clock.Now()
	if now.Sub(d.lastHeartbeat) < d.heartbeat {
		return
	}
	d.lastHeartbeat = now

	// Refresh network info for heartbeat
	if net := readNetworkInfo(); net != nil {
		d.tracker.SetNetwork(net)
	}
	snap := d.tracker.Snapshot()
	c := snap.Counts
	d.logger.Infof("heartbeat: uptime=%v pump_on=%d pump_off=%d heater_on=%d heater_off=%d",
		snap.Uptime().Truncate(time.Second), c.PumpOn, c.PumpOff, c.HeaterOn, c.HeaterOff)

	event := mqtt.SystemEvent{
		Timestamp:  now,
		Event:      "HEARTBEAT",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.logger.Errorf("heartbeat publish error: %v", err)
	}
}

func (d *daemon) publishShutdown(reason string) {
	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  d.clock.Now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.logger.Errorf("failed to publish shutdown event: %v", err)
	} else {
		d.logger.Infof("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
