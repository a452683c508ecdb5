package main

import (
	"os"

	"github.com/xela07ax/spaceai-taskgate/cmd/gatectl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
