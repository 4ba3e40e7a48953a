package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/pmbridge/internal/model"
)

var configFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "pmbridge",
		Short: "Normalize project-management platforms behind one model",
		Long: `pmbridge connects issue trackers and project boards (Jira, GitHub)
and exposes them through one normalized resource model, one error
taxonomy, and one webhook event shape.

Credentials are read from the system keyring under "<kind>/<instance>";
store them with "pmbridge credential set <kind>/<instance>" or override
the entry name with the backend's credential_key.`,
	}

	rootCmd.PersistentFlags().StringVar(
		&configFlag, "config", model.DefaultConfigPath(),
		"path to the pmbridge config file",
	)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newCredentialCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
