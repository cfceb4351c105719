package main

import (
	"os"

	"github.com/gradkit/gradkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
