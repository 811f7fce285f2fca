package main

import (
	"os"

	"github.com/reillywatson/flakewatch/cmd/flaky-tests/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
