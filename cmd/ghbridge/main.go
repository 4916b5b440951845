package main

import (
	"fmt"
	"os"

	"ghbridge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ghbridge:", err)
		os.Exit(1)
	}
}
