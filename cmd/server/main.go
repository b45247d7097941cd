package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Inventory and sales backend",
	Long: `Inventory and sales backend.

Staff sign in with email and password and receive a bearer token. Each
user holds at most one active session; logging in again invalidates the
previous token.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newSweepCommand())
	rootCmd.AddCommand(newConsumeCommand())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	})
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
