package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/link"
)

var (
	// ErrTimeout is returned when the device does not answer in time.
	ErrTimeout = errors.New("timeout waiting for device")
	// ErrRejected is returned when the device answers with the failure marker.
	ErrRejected = errors.New("device rejected command")
	// ErrUnexpectedReply is returned when the device answers with a wrong byte.
	ErrUnexpectedReply = errors.New("unexpected reply from device")
	// ErrNotConnected is returned when the client has no open link.
	ErrNotConnected = errors.New("not connected")
)

// MaxOffset is the largest CAPDAC value the sensor accepts.
const MaxOffset = 31

// Timing controls how long the client waits for the device.
type Timing struct {
	EchoTimeout   time.Duration // Opcode echo
	ReplyTimeout  time.Duration // Result marker; must exceed the device payload timeout
	RecordTimeout time.Duration // Gap between two records
}

// DefaultTiming returns timeouts that fit the reference device timing.
func DefaultTiming() Timing {
	return Timing{
		EchoTimeout:   time.Second,
		ReplyTimeout:  3 * time.Second,
		RecordTimeout: time.Second,
	}
}

// Client drives the acquisition protocol from the host side.
type Client struct {
	port     string
	baudRate int
	timing   Timing

	mu        sync.Mutex
	stream    *link.Stream
	connected bool
}

// New creates a client for a serial port. Call Connect before use.
func New(port string, baudRate int) *Client {
	if baudRate == 0 {
		baudRate = link.DefaultBaudRate
	}
	return &Client{
		port:     port,
		baudRate: baudRate,
		timing:   DefaultTiming(),
	}
}

// NewWithStream creates a connected client on an existing stream.
func NewWithStream(s *link.Stream) *Client {
	return &Client{
		timing:    DefaultTiming(),
		stream:    s,
		connected: true,
	}
}

// SetTiming overrides the client timeouts. Zero fields keep their value.
func (c *Client) SetTiming(t Timing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.EchoTimeout > 0 {
		c.timing.EchoTimeout = t.EchoTimeout
	}
	if t.ReplyTimeout > 0 {
		c.timing.ReplyTimeout = t.ReplyTimeout
	}
	if t.RecordTimeout > 0 {
		c.timing.RecordTimeout = t.RecordTimeout
	}
}

// Connect opens the serial port.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	s, err := link.Open(c.port, c.baudRate)
	if err != nil {
		return err
	}

	c.stream = s
	c.connected = true
	return nil
}

// Close closes the link.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	if err := c.stream.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	c.stream = nil
	c.connected = false

	return nil
}

// IsConnected returns whether the client has an open link.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SetOffset sets the CAPDAC offset, clamped to 0-31.
func (c *Client) SetOffset(ctx context.Context, offset int) error {
	offset = max(0, min(MaxOffset, offset))
	return c.command(ctx, daq.OpSetOffset, []byte(strconv.Itoa(offset)))
}

// SetSampleCount sets the number of samples per acquisition.
func (c *Client) SetSampleCount(ctx context.Context, n int) error {
	if n < 0 {
		return fmt.Errorf("invalid sample count %d", n)
	}
	return c.command(ctx, daq.OpSetSampleCount, []byte(strconv.Itoa(n)))
}

// Acquire starts an acquisition and reads n records, n being the sample
// count last sent to the device. On a stalled stream it returns the records
// received so far together with ErrTimeout.
func (c *Client) Acquire(ctx context.Context, n int) ([]daq.Record, error) {
	records := make([]daq.Record, 0, n)
	err := c.AcquireFunc(ctx, n, func(r daq.Record) {
		records = append(records, r)
	})
	return records, err
}

// AcquireFunc is like Acquire but hands each record to fn as it arrives.
func (c *Client) AcquireFunc(ctx context.Context, n int, fn func(daq.Record)) error {
	if err := c.command(ctx, daq.OpStart, []byte{daq.StartByte}); err != nil {
		return err
	}

	s, timing, err := c.link()
	if err != nil {
		return err
	}

	var buf [daq.RecordSize]byte
	for i := range n {
		if err := read(ctx, s, buf[:], timing.RecordTimeout); err != nil {
			return fmt.Errorf("possible data loss, received %d of %d records: %w", i, n, err)
		}
		var r daq.Record
		if err := r.UnmarshalBinary(buf[:]); err != nil {
			return err
		}
		fn(r)
	}

	return nil
}

// command runs one opcode handshake: send the opcode, expect its echo, send
// the payload, expect the result marker.
func (c *Client) command(ctx context.Context, op byte, payload []byte) error {
	s, timing, err := c.link()
	if err != nil {
		return err
	}

	s.Reset()
	if err := s.WriteByte(op); err != nil {
		return fmt.Errorf("failed to send opcode 0x%02x: %w", op, err)
	}

	echo, err := readByte(ctx, s, timing.EchoTimeout)
	if err != nil {
		return fmt.Errorf("opcode 0x%02x echo: %w", op, err)
	}
	if echo != op {
		return fmt.Errorf("%w: echo 0x%02x for opcode 0x%02x", ErrUnexpectedReply, echo, op)
	}

	if _, err := s.Write(payload); err != nil {
		return fmt.Errorf("failed to send payload for opcode 0x%02x: %w", op, err)
	}

	marker, err := readByte(ctx, s, timing.ReplyTimeout)
	if err != nil {
		return fmt.Errorf("opcode 0x%02x result: %w", op, err)
	}
	switch marker {
	case daq.MarkerOK:
		return nil
	case daq.MarkerErr:
		return fmt.Errorf("opcode 0x%02x: %w", op, ErrRejected)
	default:
		return fmt.Errorf("%w: marker 0x%02x for opcode 0x%02x", ErrUnexpectedReply, marker, op)
	}
}

func (c *Client) link() (*link.Stream, Timing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, c.timing, ErrNotConnected
	}
	return c.stream, c.timing, nil
}

func readByte(ctx context.Context, s *link.Stream, timeout time.Duration) (byte, error) {
	var b [1]byte
	if err := read(ctx, s, b[:], timeout); err != nil {
		return 0, err
	}
	return b[0], nil
}

// read fills p within timeout, mapping an expired deadline to ErrTimeout.
func read(ctx context.Context, s *link.Stream, p []byte, timeout time.Duration) error {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := s.ReadFull(rctx, p)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
