// Copyright (C) 2025 bitchat-mesh
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Command bitchatd demonstrates the Orchestrator end to end: two local
// peers exchange a handshake and a message over an in-memory
// transport, while Prometheus metrics are served for inspection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bitchatd",
	Short: "bitchatd runs a demo mesh of local peers wired through the Orchestrator",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
}
