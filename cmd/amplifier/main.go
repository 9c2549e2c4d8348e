package main

import (
	"os"

	"github.com/lazypower/amplifier/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
