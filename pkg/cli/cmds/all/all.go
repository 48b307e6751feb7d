// Package all registers all shell commands.
package all

import (
	_ "github.com/robotalks/hamster.go/pkg/cli/cmds/device"
	_ "github.com/robotalks/hamster.go/pkg/cli/cmds/serial"
)
