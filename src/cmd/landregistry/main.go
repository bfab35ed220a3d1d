package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "landregistry",
		Short:         "Land registry server and command-line client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file (default ./config.yaml or /etc/landregistry/config.yaml)")
	root.PersistentFlags().String("api-url", envOr("LANDREGISTRY_API_URL", "http://localhost:8080/api"), "API base URL for client commands")
	root.PersistentFlags().String("token-file", "", "where client credentials are kept (default under the user config dir)")

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newVersionCommand(),
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newHealthCommand(),
		newLandsCommand(),
		newTransfersCommand(),
		newAdminCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "landregistry v%s\n", Version)
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
