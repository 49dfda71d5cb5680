package main

import (
	"os"

	"github.com/xraph/conductor/cmd/conductor/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
