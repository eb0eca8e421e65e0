package daq

import (
	"errors"
	"sync"
	"time"
)

// Ensure fakePort implements Port.
var _ Port = (*fakePort)(nil)

// fakePort is an in-memory Port. Input is fed by the test; output is
// collected for inspection.
type fakePort struct {
	mu  sync.Mutex
	in  []byte
	out []byte
}

func (p *fakePort) feed(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in = append(p.in, b...)
}

func (p *fakePort) written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.out...)
}

func (p *fakePort) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.in)
}

func (p *fakePort) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.in) == 0 {
		return 0, errors.New("buffer empty")
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, nil
}

func (p *fakePort) WriteByte(c byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, c)
	return nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, b...)
	return len(b), nil
}

// Ensure fakeSensor implements Sensor.
var _ Sensor = (*fakeSensor)(nil)

// fakeSensor returns an increasing reading and records Configure calls.
type fakeSensor struct {
	mu           sync.Mutex
	reads        int
	failAfter    int           // Fail the read after this many successes, 0 = never
	delay        time.Duration // Conversion time of every read
	configureErr error
	configured   []int
}

func (s *fakeSensor) Configure(channel, input, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configureErr != nil {
		return s.configureErr
	}
	s.configured = append(s.configured, offset)
	return nil
}

func (s *fakeSensor) ReadRaw(channel, rate int) (int32, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && s.reads >= s.failAfter {
		return 0, errors.New("i2c nack")
	}
	s.reads++
	return int32(s.reads * -100), nil
}

// countingTrigger wraps a Trigger and counts Arm/Disarm calls.
type countingTrigger struct {
	Trigger
	mu      sync.Mutex
	arms    int
	disarms int
}

func (c *countingTrigger) Arm() error {
	c.mu.Lock()
	c.arms++
	c.mu.Unlock()
	return c.Trigger.Arm()
}

func (c *countingTrigger) Disarm() {
	c.mu.Lock()
	c.disarms++
	c.mu.Unlock()
	c.Trigger.Disarm()
}

func (c *countingTrigger) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arms, c.disarms
}
