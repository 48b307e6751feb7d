package serial

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	tarm "github.com/tarm/serial"

	"github.com/robotalks/hamster.go/pkg/l0/comm"
)

// Defaults of Config.
const (
	DefaultBaud         = 115200
	DefaultReadTimeout  = 100 * time.Millisecond
	DefaultProbeTimeout = 1500 * time.Millisecond
)

// PortPatterns are searched when no port is given.
var PortPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/cu.usbserial*",
	"/dev/cu.usbmodem*",
}

// Config configures the serial port.
type Config struct {
	Baud        int
	ReadTimeout time.Duration
	HardwareID  byte
	QueueSize   int
	// ProbeTimeout bounds waiting for a handshake on each port when scanning.
	ProbeTimeout time.Duration
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		Baud:         DefaultBaud,
		ReadTimeout:  DefaultReadTimeout,
		HardwareID:   comm.DefaultHardwareID,
		QueueSize:    DefaultQueueSize,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// OpenFunc opens a port, it's tarm.OpenPort by default.
type OpenFunc func(*tarm.Config) (io.ReadWriteCloser, error)

// Connector implements comm.Connector.
// The hint is the port name, an empty hint scans PortPatterns.
type Connector struct {
	Config Config
	Open   OpenFunc
}

// NewConnector creates a Connector.
func NewConnector(conf Config) *Connector {
	return &Connector{Config: conf, Open: openPort}
}

func openPort(conf *tarm.Config) (io.ReadWriteCloser, error) {
	return tarm.OpenPort(conf)
}

// Connect implements comm.Connector.
func (c *Connector) Connect(ctx context.Context, hint string) (comm.Transport, error) {
	if hint != "" {
		return c.open(hint)
	}
	ports := ScanPorts()
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial port found")
	}
	for _, name := range ports {
		link, err := c.open(name)
		if err != nil {
			glog.V(2).Infof("probe %s: %v", name, err)
			continue
		}
		if c.probe(ctx, link) {
			glog.Infof("found robot on %s", name)
			return link, nil
		}
		link.Close()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no robot answered on %v", ports)
}

func (c *Connector) open(name string) (*Link, error) {
	open := c.Open
	if open == nil {
		open = openPort
	}
	port, err := open(&tarm.Config{
		Name:        name,
		Baud:        c.Config.Baud,
		ReadTimeout: c.Config.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return NewLink(port, comm.MatchHardwareID(c.Config.HardwareID), c.Config.QueueSize), nil
}

// probe waits for a handshake packet and keeps it as the next one received.
func (c *Connector) probe(ctx context.Context, link *Link) bool {
	timeout := c.Config.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if p, ok := link.TryRecv(); ok && link.MatchesHandshake(p) {
			link.Unread(p)
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(idleWait):
		}
	}
}

// ScanPorts lists candidate serial ports.
func ScanPorts() []string {
	var ports []string
	for _, pattern := range PortPatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		ports = append(ports, matches...)
	}
	return ports
}
