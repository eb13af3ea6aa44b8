// Package main is the entry point of the hsprobe packet selection probe.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/hsprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
