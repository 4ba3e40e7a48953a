package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/pmbridge/internal/model"
	"github.com/nhle/pmbridge/internal/store"
)

func newEventsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent normalized events from the audit store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(configFlag)
			if err != nil {
				return err
			}

			st, err := store.NewSQLiteStore(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			events, err := st.ListEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}

			for _, stored := range events {
				actor := "-"
				if stored.Event.Actor != nil {
					actor = stored.Event.Actor.Login
				}
				fmt.Printf("%s  %-16s %-18s %s/%s %s (by %s)\n",
					stored.Event.Timestamp.Format("2006-01-02 15:04:05"),
					stored.Backend+"/"+stored.Instance,
					stored.Event.Kind,
					stored.Event.ResourceKind, stored.Event.ResourceID,
					stored.Event.ProjectID, actor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events to show")
	return cmd
}
