package main

import (
	"os"

	"github.com/tmc/mcpdiag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
