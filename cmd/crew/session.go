package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
)

func sessionCmd() *cobra.Command {
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or manage a conversation session",
	}
	cmd.PersistentFlags().StringVarP(&sessionKey, "session", "s", "", "session key (default: cli:<room>)")

	cmd.AddCommand(sessionCompactCmd(&sessionKey))
	cmd.AddCommand(sessionStatusCmd(&sessionKey))
	cmd.AddCommand(sessionResetCmd(&sessionKey))
	return cmd
}

func resolveSessionKey(c *crew.Crew, sessionKey string) string {
	if sessionKey != "" {
		return sessionKey
	}
	room := roomID
	if room == "" {
		room = "default"
	}
	return "cli:" + room
}

func sessionCompactCmd(sessionKey *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Force a compaction pass on a session",
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

			leader := c.LeaderFor(roomID)
			loop, ok := c.Loop(leader)
			if !ok {
				return fmt.Errorf("session compact: no leader bot resolved for room %q", roomID)
			}
			key := resolveSessionKey(c, *sessionKey)
			if err := loop.ForceCompact(context.Background(), key); err != nil {
				return err
			}
			fmt.Println("compacted session", key)
			return nil
		},
	}
}

func sessionStatusCmd(sessionKey *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a session's message count and summary",
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

			key := resolveSessionKey(c, *sessionKey)
			count, err := c.Store().MessageCount(key)
			if err != nil {
				return err
			}
			summary, err := c.Store().GetSummary(key)
			if err != nil {
				return err
			}
			fmt.Printf("session: %s\nmessages: %d\n", key, count)
			if summary != "" {
				fmt.Println("summary:", summary)
			}
			return nil
		},
	}
}

func sessionResetCmd(sessionKey *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear a session's history and summary",
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

			key := resolveSessionKey(c, *sessionKey)
			if err := c.Store().CompactSession(key, nil, ""); err != nil {
				return err
			}
			fmt.Println("reset session", key)
			return nil
		},
	}
}
