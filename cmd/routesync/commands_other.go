//go:build !linux

package main

import "github.com/spf13/cobra"

// Only the version command is available off Linux.
func addPlatformCommands(_ *cobra.Command) {}
