package fdc1004

import (
	"fmt"
	"math"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// CapdacStepPF is the capacitance shift of one CAPDAC step.
const CapdacStepPF = 3.125

// rawPerPF is the raw count per picofarad of the 24-bit result (2^19).
const rawPerPF = 524288.0

// MockConfig contains simulated sensor configuration.
type MockConfig struct {
	CapacitancePF float64 `yaml:"capacitance_pf"` // Simulated sensor capacitance (pF)
	NoisePF       float64 `yaml:"noise_pf"`       // Noise amplitude (pF)
}

// MockBus simulates an FDC1004 register file on an I2C bus. Conversions
// take one sample period at the requested rate.
type MockBus struct {
	cfg *MockConfig

	mu        sync.Mutex
	start     time.Time
	regs      [256]uint16
	readyAt   time.Time
	active    int // Measurement in progress, 0 = none
	converted int
}

// Ensure MockBus implements drivers.I2C.
var _ drivers.I2C = (*MockBus)(nil)

// NewMockBus creates a simulated FDC1004. A nil cfg uses a 10 pF sensor
// with a little noise.
func NewMockBus(cfg *MockConfig) *MockBus {
	if cfg == nil {
		cfg = &MockConfig{
			CapacitancePF: 10.0,
			NoisePF:       0.01,
		}
	}

	m := &MockBus{cfg: cfg, start: time.Now()}
	m.regs[regManufacturer] = manufacturerTI
	m.regs[regDeviceID] = deviceID
	for i := range 4 {
		m.regs[regConfMeas+i] = uint16(i) << 13 // CHA = CINn, CHB disabled
	}
	return m
}

// Conversions returns the number of completed conversions.
func (m *MockBus) Conversions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converted
}

// Register returns the current value of reg.
func (m *MockBus) Register(reg byte) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// Tx implements drivers.I2C.
func (m *MockBus) Tx(addr uint16, w, r []byte) error {
	if addr != DefaultAddress {
		return fmt.Errorf("no device at address 0x%02x", addr)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case len(w) == 1 && len(r) == 2:
		m.update(time.Now())
		v := m.regs[w[0]]
		r[0] = byte(v >> 8)
		r[1] = byte(v)
		return nil
	case len(w) == 3 && len(r) == 0:
		return m.write(w[0], uint16(w[1])<<8|uint16(w[2]), time.Now())
	default:
		return fmt.Errorf("unsupported transfer: write %d bytes, read %d bytes", len(w), len(r))
	}
}

func (m *MockBus) write(reg byte, v uint16, now time.Time) error {
	switch {
	case reg >= regConfMeas && reg < regConfMeas+4:
		m.regs[reg] = v
	case reg == regFDCConf:
		m.regs[reg] = v &^ 0x000F // DONE bits are read-only
		m.startConversion(v, now)
	default:
		return fmt.Errorf("register 0x%02x is read-only", reg)
	}
	return nil
}

func (m *MockBus) startConversion(conf uint16, now time.Time) {
	var hz int
	switch (conf >> 10) & 0b11 {
	case 0b01:
		hz = 100
	case 0b10:
		hz = 200
	case 0b11:
		hz = 400
	default:
		m.active = 0
		return
	}

	m.active = 0
	for meas := 1; meas <= 4; meas++ {
		if conf&(1<<(8-meas)) != 0 {
			m.active = meas
			break
		}
	}
	m.readyAt = now.Add(time.Second / time.Duration(hz))
}

// update completes the running conversion once its time has come.
func (m *MockBus) update(now time.Time) {
	if m.active == 0 || now.Before(m.readyAt) {
		return
	}

	meas := m.active
	m.active = 0

	conf := m.regs[regConfMeas+meas-1]
	capdac := 0
	if (conf>>10)&0b111 == chbCapdac {
		capdac = int(conf>>5) & capdacMax
	}

	raw := m.raw(capdac, now)
	reg := regMeasMSB + 2*(meas-1)
	m.regs[reg] = uint16(uint32(raw) >> 8)
	m.regs[reg+1] = uint16(uint32(raw)<<8) & 0xFF00
	m.regs[regFDCConf] |= 1 << (4 - meas)
	m.converted++
}

// raw returns the 24-bit reading for the simulated capacitance seen
// through the given CAPDAC setting.
func (m *MockBus) raw(capdac int, now time.Time) int32 {
	elapsed := now.Sub(m.start).Seconds()
	noise := (math.Sin(elapsed*97.0) + math.Cos(elapsed*131.0)) * m.cfg.NoisePF * 0.5

	pf := m.cfg.CapacitancePF + noise - float64(capdac)*CapdacStepPF
	v := math.Round(pf * rawPerPF)
	v = math.Max(v, -(1 << 23))
	v = math.Min(v, (1<<23)-1)
	return int32(v)
}
