// Command capdaqd runs the capacitance acquisition core on a host serial
// port, with either a simulated FDC1004 or a real one on a Linux I2C bus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/capdaq/pkg/config"
	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/fdc1004"
	"github.com/itohio/capdaq/pkg/link"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		sensorFlag = flag.String("sensor", "", "Sensor driver override (mock or i2c)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *sensorFlag != "" {
		cfg.Sensor.Driver = *sensorFlag
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
	}

	bus, closeBus, err := openBus(cfg)
	if err != nil {
		log.Fatalf("Failed to open sensor bus: %v", err)
	}
	defer closeBus()

	sensor := fdc1004.New(bus, cfg.Sensor.Address)
	if err := sensor.Probe(); err != nil {
		log.Fatalf("Sensor not found: %v", err)
	}

	acqCfg := cfg.DAQ()
	if err := sensor.Configure(acqCfg.Channel, acqCfg.Input, acqCfg.Offset); err != nil {
		log.Fatalf("Failed to configure sensor: %v", err)
	}

	trigFlag := &daq.Flag{}
	trigger, err := daq.NewTickerTrigger(cfg.Acquisition.Period, trigFlag)
	if err != nil {
		log.Fatalf("Failed to configure trigger: %v", err)
	}

	stream, err := link.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	if err != nil {
		log.Fatalf("Failed to open link: %v", err)
	}
	defer stream.Close()

	acq := daq.NewAcquirer(acqCfg, trigFlag, trigger, sensor, daq.NewMonotonicClock(), stream)
	disp := daq.NewDispatcher(stream, acqCfg, sensor, acq,
		daq.WithTiming(cfg.Timing()),
		daq.WithLogger(log.Default()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Serving on %s (%s sensor, channel %d, input %d, %d Hz, period %v)",
		cfg.Serial.Port, cfg.Sensor.Driver, acqCfg.Channel, acqCfg.Input, acqCfg.Rate, cfg.Acquisition.Period)

	if err := disp.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Dispatcher stopped: %v", err)
	}
	log.Printf("Shutting down")
}

// openBus returns the sensor bus selected by the configuration.
func openBus(cfg *config.Config) (drivers.I2C, func() error, error) {
	switch cfg.Sensor.Driver {
	case config.DriverMock:
		return fdc1004.NewMockBus(&cfg.Mock), func() error { return nil }, nil
	case config.DriverI2C:
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("periph host init failed: %w", err)
		}
		bus, err := i2creg.Open(cfg.Sensor.Bus)
		if err != nil {
			return nil, nil, fmt.Errorf("i2c open failed on bus %s: %w", cfg.Sensor.Bus, err)
		}
		return bus, bus.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor driver %q", cfg.Sensor.Driver)
	}
}
