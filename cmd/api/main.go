// Package main is the entry point for the AskCart assistant server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "askcart",
	Short: "AskCart shopping assistant server",
	Long: `AskCart serves a conversational shopping assistant to storefront chat
widgets over a websocket, backed by a product catalog and an LLM.

Configuration is read from the environment (and a .env file, if present).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
