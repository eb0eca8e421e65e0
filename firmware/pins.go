//go:build tinygo

package main

import (
	"machine"
	"time"
)

const (
	// Sensor configuration, fixed for the lifetime of the firmware
	SENSOR_CHANNEL = 1   // FDC1004 measurement slot (1-4)
	SENSOR_INPUT   = 1   // FDC1004 input CIN1-CIN4
	SENSOR_RATE_HZ = 400 // Conversion rate: 100, 200 or 400

	// Startup values of the runtime parameters
	CAPDAC_OFFSET = 0    // CAPDAC steps of 3.125 pF (0-31)
	SAMPLE_COUNT  = 4800 // 60 s at 80 Hz

	// Sampling period. A 400 Hz conversion takes 2.5 ms, leaving room for
	// the 8-byte record within one period.
	SAMPLE_PERIOD = 12500 * time.Microsecond

	// I2C configuration
	I2C_FREQUENCY = 400 * machine.KHz

	// Serial configuration
	// 80 records/sec * 8 bytes = 640 bytes/sec
	// UART 8N1: 10 bits/byte = 6,400 baud minimum
	// 115200 provides ~18x headroom
	UART_BAUD_RATE = 115200
)

var (
	PIN_SDA    = machine.SDA_PIN
	PIN_SCL    = machine.SCL_PIN
	PIN_STATUS = machine.LED
)
