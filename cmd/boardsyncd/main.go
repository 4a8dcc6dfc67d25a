// Command boardsyncd runs the realtime board sync server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "boardsyncd",
	Short: "boardsyncd - multi-tenant realtime board sync server",
	Long: `boardsyncd serves a WebSocket protocol for agile project boards: work
items, projects, sprints, members, and comments, fanned out in real time to
every client subscribed to the affected project.

Examples:
  boardsyncd serve                 # start the server with the default config
  boardsyncd serve --json-logs     # start with structured JSON logging
  boardsyncd version                # print version information`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
