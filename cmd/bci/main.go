// Command bci runs the brain-computer interface service.
//
// Usage:
//
//	bci [--config file.yaml] <command>
//
// Commands:
//
//	serve    - acquisition, selection and confirmation loop plus the HTTP API
//	speller  - speller listener only; prints every completed phrase
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
