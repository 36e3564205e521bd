package main

import (
	"os"

	"github.com/example/campus-presence/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
