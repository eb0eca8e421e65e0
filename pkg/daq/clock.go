package daq

import "time"

// Clock is a free-running microsecond counter.
type Clock interface {
	Micros() uint32
}

// MonotonicClock counts microseconds since it was created. Like an MCU
// micros() counter it wraps after 2^32 us (about 71 minutes).
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock starts a new clock at zero.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// Micros returns the elapsed microseconds modulo 2^32.
func (c *MonotonicClock) Micros() uint32 {
	return uint32(time.Since(c.start).Microseconds())
}
