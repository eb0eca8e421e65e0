package daq

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the size of one encoded Record on the wire.
const RecordSize = 8

// Record is a single timestamped sensor reading as streamed to the host.
// Wire layout: [timestamp uint32 LE][value int32 LE], no padding.
type Record struct {
	Timestamp uint32 // Monotonic microseconds
	Value     int32  // Raw sensor reading
}

// AppendBinary appends the wire encoding of r to b.
func (r Record) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint32(b, r.Timestamp)
	b = binary.LittleEndian.AppendUint32(b, uint32(r.Value))
	return b, nil
}

// MarshalBinary returns the 8-byte wire encoding of r.
func (r Record) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RecordSize))
}

// UnmarshalBinary decodes exactly one record from data.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("invalid record size: expected %d bytes, got %d", RecordSize, len(data))
	}
	r.Timestamp = binary.LittleEndian.Uint32(data[0:4])
	r.Value = int32(binary.LittleEndian.Uint32(data[4:8]))
	return nil
}

// DecodeRecords splits a back-to-back record stream. A trailing partial
// record is reported as an error together with the records decoded so far.
func DecodeRecords(data []byte) ([]Record, error) {
	n := len(data) / RecordSize
	records := make([]Record, n)
	for i := range n {
		// Size is exact, cannot fail
		_ = records[i].UnmarshalBinary(data[i*RecordSize : (i+1)*RecordSize])
	}
	if rem := len(data) % RecordSize; rem != 0 {
		return records, fmt.Errorf("possible data loss: %d trailing bytes after %d records", rem, n)
	}
	return records, nil
}
