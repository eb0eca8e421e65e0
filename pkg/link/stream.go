package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

var (
	// ErrEmpty is returned by ReadByte when no input is buffered.
	ErrEmpty = errors.New("buffer empty")
	// ErrClosed is returned after the stream has been closed or its reader
	// has stopped.
	ErrClosed = errors.New("stream closed")
)

// DefaultBufferSize is the initial capacity of the input buffer.
const DefaultBufferSize = 4096

// Stream adapts a blocking io.ReadWriteCloser to the non-blocking
// Buffered/ReadByte shape of an MCU UART. A reader goroutine moves input
// into an internal buffer.
type Stream struct {
	rw io.ReadWriteCloser

	mu     sync.Mutex
	buf    []byte
	notify chan struct{} // Closed and replaced whenever input arrives
	err    error         // Terminal reader error
	closed bool

	wmu  sync.Mutex
	done chan struct{}
}

// NewStream wraps rw and starts reading from it.
func NewStream(rw io.ReadWriteCloser) *Stream {
	s := &Stream{
		rw:     rw,
		buf:    make([]byte, 0, DefaultBufferSize),
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Pipe returns two Streams connected back to back in memory.
func Pipe() (*Stream, *Stream) {
	a, b := net.Pipe()
	return NewStream(a), NewStream(b)
}

// Buffered returns the number of bytes ready to read. Once the reader has
// stopped and the buffer is drained it returns 1, so that a poller calling
// ReadByte gets ErrClosed instead of waiting forever.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 && s.err != nil {
		return 1
	}
	return len(s.buf)
}

// ReadByte returns the next buffered byte without blocking.
func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, ErrEmpty
	}
	b := s.buf[0]
	s.buf = s.buf[1:]
	return b, nil
}

// ReadByteTimeout waits up to d for the next byte.
func (s *Stream) ReadByteTimeout(d time.Duration) (byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var b [1]byte
	if _, err := s.ReadFull(ctx, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadFull blocks until len(p) bytes have been read or ctx is done. It
// returns the number of bytes copied.
func (s *Stream) ReadFull(ctx context.Context, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		s.mu.Lock()
		c := copy(p[n:], s.buf)
		s.buf = s.buf[c:]
		n += c
		notify, err := s.notify, s.err
		s.mu.Unlock()

		if n == len(p) {
			break
		}
		if c > 0 {
			continue
		}
		if err != nil {
			return n, err
		}

		select {
		case <-ctx.Done():
			return n, ctx.Err()
		case <-notify:
		}
	}
	return n, nil
}

// Reset discards all buffered input.
func (s *Stream) Reset() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.mu.Unlock()
}

// WriteByte writes a single byte.
func (s *Stream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// Write writes p to the underlying link.
func (s *Stream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	n, err := s.rw.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to write %d bytes: %w", len(p), err)
	}
	return n, nil
}

// Close closes the underlying link and waits for the reader to stop.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.rw.Close()
	<-s.done
	return err
}

// Done is closed when the reader goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) readLoop() {
	defer close(s.done)

	chunk := make([]byte, 256)
	for {
		n, err := s.rw.Read(chunk)

		s.mu.Lock()
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err != nil {
			if !s.closed && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				log.Printf("Error reading from link: %v", err)
			}
			s.err = ErrClosed
		}
		if n > 0 || err != nil {
			close(s.notify)
			s.notify = make(chan struct{})
		}
		s.mu.Unlock()

		if err != nil {
			return
		}
	}
}
