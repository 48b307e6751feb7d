// Package env configures the connection to the robot from defaults,
// ROBO_* environment variables, an optional YAML file and flags.
package env

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/hamster.go/pkg/l0/comm"
	"github.com/robotalks/hamster.go/pkg/l0/serial"
	"github.com/robotalks/hamster.go/pkg/sim"
)

// Config provides common options to connect to the robot.
type Config struct {
	// Port is the serial port, empty to scan, "sim" for the simulated robot.
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	Address     string        `yaml:"address"`
	HardwareID  uint8         `yaml:"hardware_id"`
	Interval    time.Duration `yaml:"interval"`
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// ConfigFile is a YAML file loaded by Resolve.
	ConfigFile string `yaml:"-"`
}

var defaultConfig = Config{
	Baud:        serial.DefaultBaud,
	Address:     comm.DefaultAddress,
	HardwareID:  comm.DefaultHardwareID,
	Interval:    comm.DefaultInterval,
	OpenTimeout: comm.DefaultOpenTimeout,
}

var envErr error

func init() {
	envErr = defaultConfig.LoadEnv(os.Getenv)
}

// LoadEnv overrides the config from ROBO_* variables.
func (c *Config) LoadEnv(getenv func(string) string) error {
	if val := getenv("ROBO_PORT"); val != "" {
		c.Port = val
	}
	if val := getenv("ROBO_BAUD"); val != "" {
		baud, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("ROBO_BAUD: %w", err)
		}
		c.Baud = baud
	}
	if val := getenv("ROBO_ADDRESS"); val != "" {
		c.Address = val
	}
	if val := getenv("ROBO_HARDWARE_ID"); val != "" {
		id, err := strconv.ParseUint(val, 0, 8)
		if err != nil {
			return fmt.Errorf("ROBO_HARDWARE_ID: %w", err)
		}
		c.HardwareID = uint8(id)
	}
	for name, dst := range map[string]*time.Duration{
		"ROBO_INTERVAL":     &c.Interval,
		"ROBO_OPEN_TIMEOUT": &c.OpenTimeout,
	} {
		if val := getenv(name); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}
	if val := getenv("ROBO_CONFIG"); val != "" {
		c.ConfigFile = val
	}
	return nil
}

type hexByte struct{ v *uint8 }

func (h hexByte) String() string {
	if h.v == nil {
		return ""
	}
	return fmt.Sprintf("0x%02X", *h.v)
}

func (h hexByte) Set(s string) error {
	id, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return err
	}
	*h.v = uint8(id)
	return nil
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	SetupFlagSet(flag.CommandLine, &defaultConfig)
}

// SetupFlagSet binds flags in fs to conf.
func SetupFlagSet(fs *flag.FlagSet, conf *Config) {
	fs.StringVar(&conf.Port, "port", conf.Port, "Serial port of the robot, empty to scan, sim for the simulator.")
	fs.IntVar(&conf.Baud, "baud", conf.Baud, "Serial baud rate.")
	fs.StringVar(&conf.Address, "address", conf.Address, "Link address appended to outbound packets.")
	fs.Var(hexByte{&conf.HardwareID}, "hwid", "Hardware id expected in the handshake.")
	fs.DurationVar(&conf.Interval, "interval", conf.Interval, "Polling interval.")
	fs.DurationVar(&conf.OpenTimeout, "open-timeout", conf.OpenTimeout, "Timeout waiting for the handshake.")
	fs.StringVar(&conf.ConfigFile, "config", conf.ConfigFile, "YAML config file.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile overrides the config with a YAML file.
func (c *Config) LoadFile(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", fn, err)
	}
	return nil
}

// Resolve applies the config file and validates.
// Values of flags set in fs win over the file.
func (c *Config) Resolve(fs *flag.FlagSet) error {
	if envErr != nil {
		return envErr
	}
	if c.ConfigFile != "" {
		flagged := *c
		if err := c.LoadFile(c.ConfigFile); err != nil {
			return err
		}
		if fs != nil {
			fs.Visit(func(f *flag.Flag) {
				if restore, ok := flagFields[f.Name]; ok {
					restore(c, &flagged)
				}
			})
		}
	}
	return c.Validate()
}

var flagFields = map[string]func(dst, src *Config){
	"port":         func(dst, src *Config) { dst.Port = src.Port },
	"baud":         func(dst, src *Config) { dst.Baud = src.Baud },
	"address":      func(dst, src *Config) { dst.Address = src.Address },
	"hwid":         func(dst, src *Config) { dst.HardwareID = src.HardwareID },
	"interval":     func(dst, src *Config) { dst.Interval = src.Interval },
	"open-timeout": func(dst, src *Config) { dst.OpenTimeout = src.OpenTimeout },
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.Address == "" {
		return fmt.Errorf("address must be specified")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid interval %v", c.Interval)
	}
	if c.OpenTimeout < c.Interval {
		return fmt.Errorf("open timeout %v shorter than interval %v", c.OpenTimeout, c.Interval)
	}
	return nil
}

// Connector dispatches to the simulated robot for port "sim" and to
// the serial ports otherwise.
type Connector struct {
	Serial *serial.Connector
	Sim    *sim.Connector
}

// Connect implements comm.Connector.
func (c *Connector) Connect(ctx context.Context, hint string) (comm.Transport, error) {
	if hint == sim.Port {
		return c.Sim.Connect(ctx, hint)
	}
	return c.Serial.Connect(ctx, hint)
}

// NewConnector creates a Connector using current config.
func (c *Config) NewConnector() *Connector {
	conf := serial.DefaultConfig()
	conf.Baud = c.Baud
	conf.HardwareID = c.HardwareID
	return &Connector{
		Serial: serial.NewConnector(conf),
		Sim:    sim.NewConnector(c.HardwareID),
	}
}

// NewClient creates a Client using current config.
func (c *Config) NewClient() *comm.Client {
	client := comm.NewClient(c.NewConnector())
	client.Address = c.Address
	client.Interval = c.Interval
	client.OpenTimeout = c.OpenTimeout
	return client
}

// Open creates a Client and opens it on the configured port.
func (c *Config) Open(ctx context.Context) (*comm.Client, error) {
	client := c.NewClient()
	if err := client.Open(ctx, c.Port); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// MustOpen opens a Client and fails on error.
func (c *Config) MustOpen(ctx context.Context) *comm.Client {
	client, err := c.Open(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return client
}
