package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/pmbridge/internal/credential"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage backend tokens in the system keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set <kind>/<instance>",
		Short: "Store a backend token (read from stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !strings.Contains(key, "/") {
				return fmt.Errorf("credential key %q must be <kind>/<instance>", key)
			}

			fmt.Fprint(os.Stderr, "Token: ")
			reader := bufio.NewReader(os.Stdin)
			token, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("empty token for %q", key)
			}

			if err := credential.Set(key, token); err != nil {
				return err
			}
			fmt.Printf("stored credential %q\n", key)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <kind>/<instance>",
		Short: "Remove a backend token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credential.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted credential %q\n", args[0])
			return nil
		},
	})

	return cmd
}
