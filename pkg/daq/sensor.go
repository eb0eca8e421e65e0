package daq

// Sensor is the capacitive sensor driver consumed by the core.
//
// ReadRaw blocks until a conversion is available and has no timeout. If the
// driver hangs, the acquisition session hangs with it and only a device
// reset recovers.
type Sensor interface {
	// Configure binds a measurement channel to a sensor input with the
	// given CAPDAC offset.
	Configure(channel, input, offset int) error
	// ReadRaw performs one conversion on channel at rate and returns the
	// raw signed reading.
	ReadRaw(channel, rate int) (int32, error)
}

// Config is the acquisition configuration. Offset and SampleCount change at
// runtime through the command protocol; Channel, Input and Rate are fixed
// at startup.
type Config struct {
	Offset      int // CAPDAC register value, 0-31 (not enforced)
	SampleCount int // Records per acquisition session
	Channel     int // Measurement channel
	Input       int // Sensor input bound to Channel
	Rate        int // Conversion rate in samples per second
}
