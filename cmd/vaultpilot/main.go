package main

import (
	"os"

	"github.com/vaultpilot/vaultpilot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
