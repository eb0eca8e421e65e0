package link

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the UART speed of the acquisition firmware.
const DefaultBaudRate = 115200

// PortInfo describes an available serial port.
type PortInfo struct {
	Name        string
	Description string
}

// Open opens a serial port in 8N1 mode and wraps it in a Stream. Pending
// input from before the open is discarded.
func Open(port string, baudRate int) (*Stream, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to reset input buffer of %s: %w", port, err)
	}

	return NewStream(p), nil
}

// Ports returns a list of available serial ports.
func Ports() ([]PortInfo, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]PortInfo, 0, len(ports))
	for _, name := range ports {
		result = append(result, PortInfo{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}
