//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/fdc1004"
)

var (
	uart = machine.UART0
	i2c  = machine.I2C0
)

func main() {
	PIN_STATUS.Configure(machine.PinConfig{Mode: machine.PinOutput})

	// The UART carries binary records only, nothing else is printed on it
	// once the dispatcher runs.
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	if err := i2c.Configure(machine.I2CConfig{
		Frequency: I2C_FREQUENCY,
		SDA:       PIN_SDA,
		SCL:       PIN_SCL,
	}); err != nil {
		halt("i2c configure", err)
	}

	sensor := fdc1004.New(i2c, fdc1004.DefaultAddress)
	if err := sensor.Probe(); err != nil {
		halt("sensor probe", err)
	}

	cfg := &daq.Config{
		Offset:      CAPDAC_OFFSET,
		SampleCount: SAMPLE_COUNT,
		Channel:     SENSOR_CHANNEL,
		Input:       SENSOR_INPUT,
		Rate:        SENSOR_RATE_HZ,
	}
	if err := sensor.Configure(cfg.Channel, cfg.Input, cfg.Offset); err != nil {
		halt("sensor configure", err)
	}

	flag := &daq.Flag{}
	trigger, err := daq.NewTickerTrigger(SAMPLE_PERIOD, flag)
	if err != nil {
		halt("trigger", err)
	}

	acq := daq.NewAcquirer(cfg, flag, trigger, sensor, daq.NewMonotonicClock(), uart)
	disp := daq.NewDispatcher(uart, cfg, sensor, acq)

	PIN_STATUS.High()
	for {
		// The context is never cancelled, Serve returns only on a UART error
		_ = disp.Serve(context.Background())
	}
}

// halt reports a startup failure once and blinks the status LED forever.
// The device never serves commands unconfigured.
func halt(what string, err error) {
	println(what, "failed:", err.Error())
	for {
		PIN_STATUS.High()
		time.Sleep(100 * time.Millisecond)
		PIN_STATUS.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
