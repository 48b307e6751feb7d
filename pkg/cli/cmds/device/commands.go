package device

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/hamster.go/pkg/cli/sh"
	"github.com/robotalks/hamster.go/pkg/l0/device"
)

// ParseDevice resolves a device by name or numeric id.
func ParseDevice(arg string) (device.ID, error) {
	if id, ok := device.Lookup(arg); ok {
		return id, nil
	}
	if n, err := strconv.Atoi(arg); err == nil && device.ID(n).IsValid() {
		return device.ID(n), nil
	}
	return 0, fmt.Errorf("unknown device %q", arg)
}

// ParseValues parses device values.
func ParseValues(args []string) ([]float64, error) {
	values := make([]float64, len(args))
	for n, arg := range args {
		val, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("Invalid VALUE %q: %v", arg, err)
		}
		values[n] = val
	}
	return values, nil
}

type deviceInfo struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Size     int     `json:"size"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

var (
	// DevicesCmd lists devices.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"ls"},
		Help:    "list devices",
		Func: func(c *ishell.Context) {
			var infos []deviceInfo
			var lines []string
			for _, spec := range device.All() {
				infos = append(infos, deviceInfo{
					ID:       int(spec.ID),
					Name:     spec.Name,
					Category: spec.Category.String(),
					Size:     spec.Components,
					Min:      spec.Min,
					Max:      spec.Max,
				})
				lines = append(lines, fmt.Sprintf("%2d %-18s %-8s %d [%v, %v]",
					spec.ID, spec.Name, spec.Category, spec.Components, spec.Min, spec.Max))
			}
			sh.Print(c, infos, strings.Join(lines, "\n"))
		},
	}

	// WriteCmd writes a device.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "DEVICE VALUE...",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("DEVICE required"))
				return
			}
			id, err := ParseDevice(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			values, err := ParseValues(c.Args[1:])
			if err != nil {
				c.Err(err)
				return
			}
			client := sh.ShellFrom(c).Client
			if err := client.Write(id, values...); err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, client.Read(id), "OK")
		}),
	}

	// ReadCmd reads devices.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "DEVICE...",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			client := sh.ShellFrom(c).Client
			result := make(map[string][]float64)
			var lines []string
			for _, arg := range c.Args {
				id, err := ParseDevice(arg)
				if err != nil {
					c.Err(err)
					return
				}
				values := client.Read(id)
				result[id.String()] = values
				line := fmt.Sprintf("%s: %s", id, device.FormatValues(values, " "))
				if id.Spec().Category == device.Event {
					line += fmt.Sprintf(" (fired %d)", client.Occurrences(id))
				}
				lines = append(lines, line)
			}
			sh.Print(c, result, strings.Join(lines, "\n"))
		}),
	}

	// EventsCmd prints occurrences.
	EventsCmd = ishell.Cmd{
		Name:    "events",
		Aliases: []string{"ev"},
		Help:    "[DURATION]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			duration := 5 * time.Second
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("Invalid DURATION: %v", err))
					return
				}
				duration = d
			}
			sub := sh.ShellFrom(c).Client.Subscribe()
			defer sub.Close()
			timeout := time.After(duration)
			for {
				select {
				case ev, ok := <-sub.C():
					if !ok {
						return
					}
					sh.Print(c, map[string]interface{}{
						"device": ev.Device.String(),
						"values": ev.Values,
					}, strings.TrimSpace(ev.Device.String()+" "+device.FormatValues(ev.Values, " ")))
				case <-timeout:
					return
				}
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&DevicesCmd,
		&WriteCmd,
		&ReadCmd,
		&EventsCmd,
	)
}
