package main

import (
	"os"

	"github.com/telhawk-systems/otelflow/cmd/otelflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
