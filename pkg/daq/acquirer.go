package daq

import (
	"context"
	"fmt"
	"io"
	"time"
)

// PollInterval is how long the loops sleep when there is nothing to do.
const PollInterval = 100 * time.Microsecond

// Acquirer turns trigger events into a bounded, ordered stream of Records.
type Acquirer struct {
	cfg     *Config
	flag    *Flag
	trigger Trigger
	sensor  Sensor
	clock   Clock
	out     io.Writer

	samplesSent int
	buf         []byte
}

// NewAcquirer wires an acquisition loop. cfg is read at the start of every
// run and must not be modified while Run executes.
func NewAcquirer(cfg *Config, flag *Flag, trigger Trigger, sensor Sensor, clock Clock, out io.Writer) *Acquirer {
	return &Acquirer{
		cfg:     cfg,
		flag:    flag,
		trigger: trigger,
		sensor:  sensor,
		clock:   clock,
		out:     out,
		buf:     make([]byte, 0, RecordSize),
	}
}

// SamplesSent returns the number of records sent in the current run. It is
// zero between runs.
func (a *Acquirer) SamplesSent() int {
	return a.samplesSent
}

// Run arms the trigger, emits cfg.SampleCount records and disarms the
// trigger again. A sensor or link error aborts the run. There is no way
// to stop a run from the protocol; ctx only covers process shutdown.
func (a *Acquirer) Run(ctx context.Context) error {
	count := a.cfg.SampleCount
	channel, rate := a.cfg.Channel, a.cfg.Rate

	a.samplesSent = 0
	defer func() { a.samplesSent = 0 }()

	// Drop an event left over from a previous session
	a.flag.TestAndClear()

	if err := a.trigger.Arm(); err != nil {
		return fmt.Errorf("failed to arm trigger: %w", err)
	}
	defer a.trigger.Disarm()

	for a.samplesSent < count {
		if !a.flag.TestAndClear() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			time.Sleep(PollInterval)
			continue
		}

		ts := a.clock.Micros()
		value, err := a.sensor.ReadRaw(channel, rate)
		if err != nil {
			return fmt.Errorf("sensor read failed after %d samples: %w", a.samplesSent, err)
		}

		if err := a.send(Record{Timestamp: ts, Value: value}); err != nil {
			return fmt.Errorf("failed to send sample %d: %w", a.samplesSent, err)
		}
		a.samplesSent++
	}

	return nil
}

func (a *Acquirer) send(r Record) error {
	a.buf, _ = r.AppendBinary(a.buf[:0])
	_, err := a.out.Write(a.buf)
	return err
}
