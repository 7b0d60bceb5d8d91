package main

import (
	"fmt"
	"os"

	"room-status-backend/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd(cli.OpenRuntime)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
