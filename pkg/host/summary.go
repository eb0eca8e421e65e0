package host

import (
	"fmt"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
)

// Summary describes the cadence of a received record stream.
type Summary struct {
	Count     int
	First     uint32 // Timestamp of the first record (us)
	Last      uint32 // Timestamp of the last record (us)
	Duration  time.Duration
	MinDelta  time.Duration
	MaxDelta  time.Duration
	MeanDelta time.Duration
	// Gaps counts intervals longer than 1.5 periods, i.e. coalesced
	// trigger events.
	Gaps int
}

// Summarize computes stream statistics. Timestamp differences use uint32
// arithmetic, so a counter wrap inside the session is handled.
func Summarize(records []daq.Record, period time.Duration) Summary {
	s := Summary{Count: len(records)}
	if len(records) == 0 {
		return s
	}

	s.First = records[0].Timestamp
	s.Last = records[len(records)-1].Timestamp
	if len(records) == 1 {
		return s
	}

	var total time.Duration
	for i := 1; i < len(records); i++ {
		d := time.Duration(records[i].Timestamp-records[i-1].Timestamp) * time.Microsecond
		if i == 1 || d < s.MinDelta {
			s.MinDelta = d
		}
		if d > s.MaxDelta {
			s.MaxDelta = d
		}
		if period > 0 && d > period*3/2 {
			s.Gaps++
		}
		total += d
	}

	s.Duration = total
	s.MeanDelta = total / time.Duration(len(records)-1)
	return s
}

// String formats the summary for the console.
func (s Summary) String() string {
	if s.Count < 2 {
		return fmt.Sprintf("Total data received is: %d", s.Count)
	}
	return fmt.Sprintf("Total data received is: %d (%v, period mean %v min %v max %v, %d gaps)",
		s.Count, s.Duration, s.MeanDelta, s.MinDelta, s.MaxDelta, s.Gaps)
}
