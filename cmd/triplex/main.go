package main

import (
	"fmt"
	"os"

	"github.com/triplexrpc/triplex/cmd/triplex/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "triplex:", err)
		os.Exit(1)
	}
}
