// Package fdc1004 is a minimal adapter for the TI FDC1004 capacitance to
// digital converter. It covers the single-measurement path used by the
// acquisition loop and nothing else.
package fdc1004

import (
	"errors"
	"fmt"
	"time"

	"tinygo.org/x/drivers"
)

// DefaultAddress is the fixed 7-bit I2C address of the FDC1004.
const DefaultAddress = 0x50

// Registers.
const (
	regMeasMSB      = 0x00 // MEASn_MSB = 0x00 + 2*(n-1), LSB follows
	regConfMeas     = 0x08 // CONF_MEASn = 0x08 + (n-1)
	regFDCConf      = 0x0C
	regManufacturer = 0xFE
	regDeviceID     = 0xFF
)

const (
	manufacturerTI = 0x5449
	deviceID       = 0x1004

	capdacMax = 0x1F
	// CHB field value selecting the CAPDAC instead of a second input
	chbCapdac = 0b100
)

// PollInterval is the wait between DONE polls while a conversion runs.
var PollInterval = 200 * time.Microsecond

// ErrBadDeviceID is returned by Probe when the chip does not identify as an FDC1004.
var ErrBadDeviceID = errors.New("unexpected device id")

// Device is an FDC1004 on an I2C bus. machine.I2C on TinyGo, a periph.io
// i2c.Bus on Linux and MockBus all work.
type Device struct {
	bus  drivers.I2C
	addr uint16
	buf  [3]byte
}

// New returns a Device at addr. An addr of 0 selects DefaultAddress.
func New(bus drivers.I2C, addr uint16) *Device {
	if addr == 0 {
		addr = DefaultAddress
	}
	return &Device{bus: bus, addr: addr}
}

// Probe checks the manufacturer and device id registers.
func (d *Device) Probe() error {
	mfr, err := d.readRegister(regManufacturer)
	if err != nil {
		return fmt.Errorf("failed to read manufacturer id: %w", err)
	}
	id, err := d.readRegister(regDeviceID)
	if err != nil {
		return fmt.Errorf("failed to read device id: %w", err)
	}
	if mfr != manufacturerTI || id != deviceID {
		return fmt.Errorf("%w: manufacturer 0x%04x device 0x%04x", ErrBadDeviceID, mfr, id)
	}
	return nil
}

// Configure binds measurement meas (1-4) to input cin (1-4), single ended
// against the CAPDAC, with the given CAPDAC offset. Only the low five bits of
// capdac reach the register.
func (d *Device) Configure(meas, cin, capdac int) error {
	if err := checkIndex("measurement", meas); err != nil {
		return err
	}
	if err := checkIndex("input", cin); err != nil {
		return err
	}

	v := uint16(cin-1)<<13 | chbCapdac<<10 | uint16(capdac&capdacMax)<<5
	if err := d.writeRegister(regConfMeas+byte(meas-1), v); err != nil {
		return fmt.Errorf("failed to configure measurement %d: %w", meas, err)
	}
	return nil
}

// ReadRaw triggers one conversion of measurement meas at rateHz (100, 200
// or 400) and returns the sign-extended 24-bit result. It polls the DONE
// bit with no deadline: a chip that never completes blocks the caller.
func (d *Device) ReadRaw(meas, rateHz int) (int32, error) {
	if err := checkIndex("measurement", meas); err != nil {
		return 0, err
	}
	rate, err := rateCode(rateHz)
	if err != nil {
		return 0, err
	}

	conf := rate<<10 | 1<<(8-meas)
	if err := d.writeRegister(regFDCConf, conf); err != nil {
		return 0, fmt.Errorf("failed to trigger measurement %d: %w", meas, err)
	}

	done := uint16(1) << (4 - meas)
	for {
		status, err := d.readRegister(regFDCConf)
		if err != nil {
			return 0, fmt.Errorf("failed to read status: %w", err)
		}
		if status&done != 0 {
			break
		}
		time.Sleep(PollInterval)
	}

	reg := regMeasMSB + byte(2*(meas-1))
	msb, err := d.readRegister(reg)
	if err != nil {
		return 0, fmt.Errorf("failed to read measurement %d msb: %w", meas, err)
	}
	lsb, err := d.readRegister(reg + 1)
	if err != nil {
		return 0, fmt.Errorf("failed to read measurement %d lsb: %w", meas, err)
	}

	return int32(uint32(msb)<<16|uint32(lsb)) >> 8, nil
}

func (d *Device) readRegister(reg byte) (uint16, error) {
	d.buf[0] = reg
	if err := d.bus.Tx(d.addr, d.buf[:1], d.buf[1:3]); err != nil {
		return 0, err
	}
	return uint16(d.buf[1])<<8 | uint16(d.buf[2]), nil
}

func (d *Device) writeRegister(reg byte, v uint16) error {
	d.buf[0] = reg
	d.buf[1] = byte(v >> 8)
	d.buf[2] = byte(v)
	return d.bus.Tx(d.addr, d.buf[:3], nil)
}

func checkIndex(what string, i int) error {
	if i < 1 || i > 4 {
		return fmt.Errorf("invalid %s %d: must be 1-4", what, i)
	}
	return nil
}

// rateCode maps a sample rate to the FDC_CONF RATE field.
func rateCode(hz int) (uint16, error) {
	switch hz {
	case 100:
		return 0b01, nil
	case 200:
		return 0b10, nil
	case 400:
		return 0b11, nil
	default:
		return 0, fmt.Errorf("unsupported rate %d Hz: must be 100, 200 or 400", hz)
	}
}
