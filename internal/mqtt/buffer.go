package mqtt

import "go.uber.org/zap"

// BufferStats describes the offline outbox.
type BufferStats struct {
	Pending int    // messages waiting for a connection
	Dropped uint64 // messages overwritten since startup
}

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. When full
// the oldest message is overwritten and counted as dropped.
// Not safe for concurrent use; caller must synchronize.
type outbox struct {
	msgs   []bufferedMsg
	oldest int
	n      int

	dropped uint64 // total since startup
	outage  int    // dropped since the last drain
	logger  *zap.SugaredLogger
}

func newOutbox(capacity int, logger *zap.SugaredLogger) *outbox {
	return &outbox{
		msgs:   make([]bufferedMsg, capacity),
		logger: logger,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if o.n < len(o.msgs) {
		o.msgs[(o.oldest+o.n)%len(o.msgs)] = msg
		o.n++
		return
	}

	if o.outage == 0 {
		o.logger.Warnf("mqtt: outbox full (%d messages), dropping oldest", len(o.msgs))
	}
	o.outage++
	o.dropped++
	o.msgs[o.oldest] = msg
	o.oldest = (o.oldest + 1) % len(o.msgs)
}

// drain returns the pending messages oldest first and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	if o.outage > 0 {
		o.logger.Warnf("mqtt: %d messages dropped while offline", o.outage)
		o.outage = 0
	}
	if o.n == 0 {
		return nil
	}

	out := make([]bufferedMsg, o.n)
	for i := range out {
		out[i] = o.msgs[(o.oldest+i)%len(o.msgs)]
		o.msgs[(o.oldest+i)%len(o.msgs)] = bufferedMsg{}
	}
	o.oldest, o.n = 0, 0
	return out
}

func (o *outbox) stats() BufferStats {
	return BufferStats{Pending: o.n, Dropped: o.dropped}
}
