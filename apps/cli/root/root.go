package root

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the VendaPro admin CLI. Subcommands
// (tenant, pool) are attached here.
var rootCmd = &cobra.Command{
	Use:           "vendapro",
	Short:         "VendaPro admin CLI",
	Long:          "Operational utilities for the VendaPro API server (tenant listing, pool invalidation and warm-up).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("VENDAPRO_SERVER", "http://localhost:3000"), "base URL of the API server")
	rootCmd.PersistentFlags().String("admin-token", os.Getenv("VENDAPRO_ADMIN_TOKEN"), "admin bearer token (defaults to VENDAPRO_ADMIN_TOKEN)")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
