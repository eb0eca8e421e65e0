package daq

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultPeriod is the sampling period of the reference configuration (80 Hz).
const DefaultPeriod = 12500 * time.Microsecond

// ErrArmed is returned by Arm when the trigger is already running.
var ErrArmed = errors.New("trigger already armed")

// Trigger is a fixed-period, auto-reloading time source.
type Trigger interface {
	// Arm starts counting from zero.
	Arm() error
	// Disarm stops counting and resets the counter, so the next Arm starts
	// a full period rather than a phase-shifted one.
	Disarm()
}

// TickerTrigger implements Trigger on top of time.Ticker. Its handler only
// sets the Flag: it never blocks and never touches the sensor or the link.
//
// Under TinyGo's cooperative scheduler the handler goroutine runs only when
// the main loop yields. Acquirer and Dispatcher sleep between polls, so a
// tick lands late by at most PollInterval plus a sensor read in progress.
type TickerTrigger struct {
	period time.Duration
	flag   *Flag

	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// Ensure TickerTrigger implements Trigger.
var _ Trigger = (*TickerTrigger)(nil)

// NewTickerTrigger creates a disarmed trigger that sets flag every period.
func NewTickerTrigger(period time.Duration, flag *Flag) (*TickerTrigger, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid trigger period %v", period)
	}
	if flag == nil {
		return nil, fmt.Errorf("trigger flag is nil")
	}
	return &TickerTrigger{period: period, flag: flag}, nil
}

// Period returns the configured period.
func (t *TickerTrigger) Period() time.Duration {
	return t.period
}

// Arm starts a fresh period.
func (t *TickerTrigger) Arm() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker != nil {
		return ErrArmed
	}

	t.ticker = time.NewTicker(t.period)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.handle(t.ticker.C, t.stop, t.done)

	return nil
}

// Disarm stops the ticker and waits for the handler to exit. Disarming a
// disarmed trigger is a no-op.
func (t *TickerTrigger) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ticker == nil {
		return
	}

	t.ticker.Stop()
	close(t.stop)
	<-t.done
	t.ticker = nil
}

// IsArmed reports whether the trigger is running.
func (t *TickerTrigger) IsArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}

func (t *TickerTrigger) handle(c <-chan time.Time, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-c:
			t.flag.Set()
		}
	}
}
