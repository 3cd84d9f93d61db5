package main

import (
	"fmt"
	"os"

	"github.com/triplexrpc/triplex/cmd/triplexctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "triplexctl:", err)
		os.Exit(1)
	}
}
