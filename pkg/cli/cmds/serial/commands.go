package serial

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/hamster.go/pkg/cli/sh"
	"github.com/robotalks/hamster.go/pkg/l0/comm"
)

// ParseDelimiter parses "all", a single character, an escape like \n,
// or a byte value like 0x0a.
func ParseDelimiter(arg string) (comm.Delimiter, error) {
	switch arg {
	case "", "all":
		return comm.DelimiterAll, nil
	}
	if s, err := strconv.Unquote(`"` + arg + `"`); err == nil && len(s) == 1 {
		return comm.Delimiter(s[0]), nil
	}
	if n, err := strconv.ParseUint(arg, 0, 8); err == nil {
		return comm.Delimiter(n), nil
	}
	return 0, fmt.Errorf("Invalid DELIMITER %q", arg)
}

var (
	// WriteCmd sends text to the robot's serial port.
	WriteCmd = ishell.Cmd{
		Name:    "serial.write",
		Aliases: []string{"sw"},
		Help:    "TEXT...",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			client := sh.ShellFrom(c).Client
			ticket, err := client.WriteSerial([]byte(strings.Join(c.Args, " ")), true)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, map[string]uint64{"ticket": uint64(ticket)}, fmt.Sprintf("queued #%d", ticket))
		}),
	}

	// ReadCmd reads text received from the robot's serial port.
	ReadCmd = ishell.Cmd{
		Name:    "serial.read",
		Aliases: []string{"sr"},
		Help:    "[DELIMITER]",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			var arg string
			if len(c.Args) > 0 {
				arg = c.Args[0]
			}
			delim, err := ParseDelimiter(arg)
			if err != nil {
				c.Err(err)
				return
			}
			data, ok := sh.ShellFrom(c).Client.ReadSerial(delim)
			if !ok {
				sh.Print(c, nil, "(nothing)")
				return
			}
			sh.Print(c, string(data), strconv.Quote(string(data)))
		}),
	}

	// SentCmd checks whether a serial write is transmitted.
	SentCmd = ishell.Cmd{
		Name:    "serial.sent",
		Aliases: []string{"ss"},
		Help:    "TICKET",
		Func: sh.MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TICKET required"))
				return
			}
			n, err := strconv.ParseUint(c.Args[0], 10, 64)
			if err != nil {
				c.Err(fmt.Errorf("Invalid TICKET: %v", err))
				return
			}
			sent := sh.ShellFrom(c).Client.SerialSent(comm.Ticket(n))
			sh.Print(c, sent, strconv.FormatBool(sent))
		}),
	}
)

func init() {
	sh.AddCmds(
		&WriteCmd,
		&ReadCmd,
		&SentCmd,
	)
}
