// Command ibftd runs an in-process demonstration network of IBFT
// replicas over the backend/memory reference chain, proposing and
// committing a new block on a fixed cadence.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
