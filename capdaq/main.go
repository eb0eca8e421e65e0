// Command capdaq configures a capacitance acquisition device over a serial
// port, runs one acquisition session and reports what arrived.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/capdaq/pkg/config"
	"github.com/itohio/capdaq/pkg/daq"
	"github.com/itohio/capdaq/pkg/host"
	"github.com/itohio/capdaq/pkg/link"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyUSB0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		offsetFlag = flag.Int("offset", -1, "CAPDAC offset 0-31 (overrides config)")
		countFlag  = flag.Int("n", 0, "Number of samples to acquire (overrides config)")
		listFlag   = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := link.Ports()
		if err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		for _, p := range ports {
			fmt.Printf("%s\t%s\n", p.Name, p.Description)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *offsetFlag >= 0 {
		cfg.Acquisition.Offset = *offsetFlag
	}
	if *countFlag > 0 {
		cfg.Acquisition.SampleCount = *countFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := host.New(cfg.Serial.Port, cfg.Serial.BaudRate)
	if err := client.Connect(); err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Serial.Port, err)
	}
	defer client.Close()

	fmt.Printf("Connected to serial port: %s\n", cfg.Serial.Port)

	if err := client.SetOffset(ctx, cfg.Acquisition.Offset); err != nil {
		log.Fatalf("Failed to set offset: %v", err)
	}
	if err := client.SetSampleCount(ctx, cfg.Acquisition.SampleCount); err != nil {
		log.Fatalf("Failed to set sample count: %v", err)
	}

	n := cfg.Acquisition.SampleCount
	fmt.Printf("Acquiring %d samples (%d bytes)...\n", n, n*daq.RecordSize)

	records, err := client.Acquire(ctx, n)
	if err != nil {
		log.Printf("Acquisition incomplete: %v", err)
	}

	fmt.Println(host.Summarize(records, cfg.Acquisition.Period))
}
