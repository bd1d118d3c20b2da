package main

import (
	"os"

	"github.com/evlog-dev/evlog/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
