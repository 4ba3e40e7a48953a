package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/pmbridge/internal/backend"
	"github.com/nhle/pmbridge/internal/model"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity and capabilities of every backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(configFlag)
			if err != nil {
				return err
			}
			if len(cfg.Backends) == 0 {
				return fmt.Errorf("no backends configured in %s", configFlag)
			}

			reg := backend.NewRegistry()
			for _, bc := range cfg.Backends {
				adapter, err := buildAdapter(reg, bc)
				if err != nil {
					fmt.Printf("%-24s construction failed: %v\n",
						bc.Kind+"/"+bc.Instance, err)
					continue
				}

				status := "unreachable"
				if adapter.Connected(cmd.Context()) {
					status = "connected"
				}

				caps := backend.CapabilitiesOf(adapter)
				fmt.Printf("%-24s %-12s webhooks=%v create_project=%v delete_issue=%v\n",
					bc.Kind+"/"+bc.Instance, status,
					caps.ParseWebhooks, caps.CreateProject, caps.DeleteIssue)
			}
			return nil
		},
	}
}
