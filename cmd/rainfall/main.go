// Command rainfall runs one-shot reshape, feature and forecast jobs over a
// wide yearly rainfall CSV and writes the result as CSV on stdout.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
