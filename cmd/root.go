package cmd

import (
	"fmt"
	"log"
	"os"

	"MagicDJ/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "magicdj_server",
	Short: "MagicDJ is an AI voice DJ console backend.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting MagicDJ server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
