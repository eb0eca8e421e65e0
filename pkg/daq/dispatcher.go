package daq

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"
)

// Command opcodes sent by the host.
const (
	OpSetOffset      byte = 0x00
	OpSetSampleCount byte = 0x01
	OpStart          byte = 0x02
)

// Protocol bytes sent by either side.
const (
	StartByte byte = 'S' // Payload of OpStart
	MarkerOK  byte = 'O'
	MarkerErr byte = 'F'
)

// Default handshake timing: 200 polls 10 ms apart, a 2 s timeout.
const (
	DefaultRetryInterval = 10 * time.Millisecond
	DefaultRetries       = 200
)

// Port is a byte-oriented serial link with non-blocking reads. It matches
// the method set of TinyGo's machine.UART.
type Port interface {
	Buffered() int
	ReadByte() (byte, error)
	WriteByte(c byte) error
	Write(p []byte) (int, error)
}

// Timing controls how long a handler waits for its payload.
type Timing struct {
	RetryInterval time.Duration
	Retries       int
}

// DefaultTiming returns the reference handshake timing.
func DefaultTiming() Timing {
	return Timing{RetryInterval: DefaultRetryInterval, Retries: DefaultRetries}
}

// Timeout returns the total payload wait.
func (t Timing) Timeout() time.Duration {
	return time.Duration(t.Retries) * t.RetryInterval
}

// State is the dispatcher state.
type State int

const (
	Idle State = iota
	Handling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Handling:
		return "handling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dispatcher reads opcodes from a Port and runs the matching handler.
type Dispatcher struct {
	port   Port
	cfg    *Config
	sensor Sensor
	acq    *Acquirer
	timing Timing
	logger *log.Logger

	mu    sync.Mutex
	state State
	op    byte

	// One byte of lookahead left by the number parser
	pending    byte
	hasPending bool
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTiming overrides the handshake timing.
func WithTiming(t Timing) DispatcherOption {
	return func(d *Dispatcher) {
		if t.RetryInterval > 0 {
			d.timing.RetryInterval = t.RetryInterval
		}
		if t.Retries > 0 {
			d.timing.Retries = t.Retries
		}
	}
}

// WithLogger sets the diagnostics logger. It must not write to the data link.
func WithLogger(l *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates an idle dispatcher. cfg is shared with acq.
func NewDispatcher(port Port, cfg *Config, sensor Sensor, acq *Acquirer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		port:   port,
		cfg:    cfg,
		sensor: sensor,
		acq:    acq,
		timing: DefaultTiming(),
		logger: log.New(io.Discard, "", 0),
		state:  Idle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current state and, while Handling, the opcode in flight.
func (d *Dispatcher) State() (State, byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state, d.op
}

// Serve handles commands until ctx is done.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		handled, err := d.Step(ctx)
		if err != nil {
			return err
		}
		if handled {
			continue
		}
		if !sleep(ctx, PollInterval) {
			return ctx.Err()
		}
	}
}

// Step handles at most one opcode. It returns false when no byte was
// waiting. Unknown opcodes are consumed without any reply.
func (d *Dispatcher) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	op, ok, err := d.next()
	if err != nil || !ok {
		return false, err
	}

	var handler func(context.Context) error
	switch op {
	case OpSetOffset:
		handler = d.handleSetOffset
	case OpSetSampleCount:
		handler = d.handleSetSampleCount
	case OpStart:
		handler = d.handleStart
	default:
		return true, nil
	}

	d.setState(Handling, op)
	defer d.setState(Idle, 0)

	if err := d.port.WriteByte(op); err != nil {
		return true, fmt.Errorf("failed to echo opcode 0x%02x: %w", op, err)
	}
	return true, handler(ctx)
}

func (d *Dispatcher) handleSetOffset(ctx context.Context) error {
	v, ok, err := d.readNumber(ctx)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Printf("set offset: no complete payload within %v", d.timing.Timeout())
		return d.reply(MarkerErr)
	}

	if err := d.sensor.Configure(d.cfg.Channel, d.cfg.Input, v); err != nil {
		d.logger.Printf("set offset: failed to configure sensor with offset %d: %v", v, err)
		return d.reply(MarkerErr)
	}
	d.cfg.Offset = v
	d.logger.Printf("offset set to %d", v)

	return d.reply(MarkerOK)
}

func (d *Dispatcher) handleSetSampleCount(ctx context.Context) error {
	v, ok, err := d.readNumber(ctx)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Printf("set sample count: no complete payload within %v", d.timing.Timeout())
		return d.reply(MarkerErr)
	}

	d.cfg.SampleCount = v
	d.logger.Printf("sample count set to %d", v)

	return d.reply(MarkerOK)
}

// handleStart replies before streaming so the host can frame the records
// that follow the marker.
func (d *Dispatcher) handleStart(ctx context.Context) error {
	ok, err := d.waitFor(ctx, StartByte)
	if err != nil {
		return err
	}
	if !ok {
		d.logger.Printf("start: no start byte within %v", d.timing.Timeout())
		return d.reply(MarkerErr)
	}

	if err := d.reply(MarkerOK); err != nil {
		return err
	}

	d.logger.Printf("acquisition started: %d samples", d.cfg.SampleCount)
	start := time.Now()
	if err := d.acq.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Printf("acquisition aborted: %v", err)
		return nil
	}
	d.logger.Printf("acquisition finished in %v", time.Since(start))

	return nil
}

// readNumber waits for the first ASCII digit, discarding anything before
// it, then accumulates digits while each next byte arrives within one
// retry interval. The terminating non-digit stays unread. A number still
// growing when the payload timeout expires is rejected.
func (d *Dispatcher) readNumber(ctx context.Context) (int, bool, error) {
	deadline := time.Now().Add(d.timing.Timeout())

	first, ok, err := d.poll(ctx, isDigit)
	if err != nil || !ok {
		return 0, false, err
	}

	value := int(first - '0')
	for {
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
		b, ok, err := d.nextWithin(ctx, min(d.timing.RetryInterval, time.Until(deadline)))
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return value, true, nil
		}
		if !isDigit(b) {
			d.unread(b)
			return value, true, nil
		}
		value = accumulate(value, b)
	}
}

// waitFor polls for want, discarding other bytes.
func (d *Dispatcher) waitFor(ctx context.Context, want byte) (bool, error) {
	_, ok, err := d.poll(ctx, func(b byte) bool { return b == want })
	return ok, err
}

// poll checks the link up to Retries times, RetryInterval apart, for a byte
// accepted by match. Rejected bytes are dropped. Polls are scheduled from
// the start time so the total wait does not drift with loop overhead.
func (d *Dispatcher) poll(ctx context.Context, match func(byte) bool) (byte, bool, error) {
	start := time.Now()
	for timeout := 0; timeout < d.timing.Retries; timeout++ {
		for {
			b, ok, err := d.next()
			if err != nil {
				return 0, false, err
			}
			if !ok {
				break
			}
			if match(b) {
				return b, true, nil
			}
		}
		wake := start.Add(time.Duration(timeout+1) * d.timing.RetryInterval)
		if !sleep(ctx, time.Until(wake)) {
			return 0, false, ctx.Err()
		}
	}
	return 0, false, nil
}

// nextWithin returns the next byte if one arrives within wait.
func (d *Dispatcher) nextWithin(ctx context.Context, wait time.Duration) (byte, bool, error) {
	deadline := time.Now().Add(wait)
	for {
		b, ok, err := d.next()
		if err != nil || ok {
			return b, ok, err
		}
		if !time.Now().Before(deadline) {
			return 0, false, nil
		}
		if !sleep(ctx, PollInterval) {
			return 0, false, ctx.Err()
		}
	}
}

// next returns the next byte without blocking.
func (d *Dispatcher) next() (byte, bool, error) {
	if d.hasPending {
		d.hasPending = false
		return d.pending, true, nil
	}
	if d.port.Buffered() == 0 {
		return 0, false, nil
	}
	b, err := d.port.ReadByte()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read from port: %w", err)
	}
	return b, true, nil
}

func (d *Dispatcher) unread(b byte) {
	d.pending = b
	d.hasPending = true
}

func (d *Dispatcher) reply(marker byte) error {
	if err := d.port.WriteByte(marker); err != nil {
		return fmt.Errorf("failed to send marker %q: %w", marker, err)
	}
	return nil
}

func (d *Dispatcher) setState(s State, op byte) {
	d.mu.Lock()
	d.state = s
	d.op = op
	d.mu.Unlock()
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// accumulate appends a decimal digit, saturating at math.MaxInt32.
func accumulate(value int, digit byte) int {
	if value > (math.MaxInt32-9)/10 {
		next := int64(value)*10 + int64(digit-'0')
		if next > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(next)
	}
	return value*10 + int(digit-'0')
}

// sleep waits for d or until ctx is done. It reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
