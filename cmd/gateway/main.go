// Package main is the entry point for the streaming relay gateway.
package main

import (
	"os"

	"github.com/jmylchreest/streamgate/cmd/gateway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
