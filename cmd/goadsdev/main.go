// Command goadsdev runs a simulated ADS device: an AMS/TCP listener serving
// a symbol database built from a YAML or TOML configuration and, optionally,
// a TwinCAT TMC project description.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
