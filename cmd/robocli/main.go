package main

import (
	"github.com/robotalks/hamster.go/pkg/cli/sh"
	"github.com/robotalks/hamster.go/pkg/env"

	_ "github.com/robotalks/hamster.go/pkg/cli/cmds/all"
)

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
