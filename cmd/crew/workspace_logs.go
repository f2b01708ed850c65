package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
)

func workspaceLogsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "workspace-logs",
		Short: "Print recent work-log entries across a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := crew.New(*cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			room := roomID
			if room == "" {
				room = "default"
			}
			entries, err := c.Store().GetLogsByRoom(room)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				fmt.Printf("[%s] step %d %s: %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.StepNo, e.BotName, e.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "limit to the most recent N entries (default: unlimited)")
	return cmd
}
