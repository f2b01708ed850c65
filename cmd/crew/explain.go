package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
)

func explainCmd() *cobra.Command {
	var (
		sessionKey string
		mode       string
		bot        string
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain what happened in a room or session",
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
			bot = strings.TrimPrefix(bot, "@")

			switch mode {
			case "", "summary", "detailed":
				entries, err := c.Store().GetLogsByRoom(room)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if bot != "" && e.BotName != bot {
						continue
					}
					if mode == "detailed" {
						fmt.Printf("[%s] step %d (%s) %s: %s\n", e.Timestamp.Format("15:04:05"), e.StepNo, e.Level, e.BotName, e.Message)
					} else {
						fmt.Printf("%s: %s\n", e.BotName, e.Message)
					}
				}
			case "debug":
				entries, err := c.Store().GetLogsByRoom(room)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Printf("%+v\n", e)
				}
			case "coordination":
				entries, err := c.Store().GetLogsByRoom(room)
				if err != nil {
					return err
				}
				for _, e := range entries {
					if e.Level == "decision" || e.Level == "escalation" {
						fmt.Printf("%s: %s\n", e.BotName, e.Message)
					}
				}
			case "conversations":
				if sessionKey == "" {
					sessionKey = "cli:" + room
				}
				history, err := c.Store().GetHistory(sessionKey)
				if err != nil {
					return err
				}
				for _, m := range history {
					fmt.Printf("%s: %s\n", m.Role, m.Content)
				}
			default:
				return fmt.Errorf("explain: unknown --mode %q", mode)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionKey, "session", "", "session id (conversations mode)")
	cmd.Flags().StringVar(&mode, "mode", "summary", "summary|detailed|debug|coordination|conversations")
	cmd.Flags().StringVar(&bot, "bot", "", "filter to one bot, @name or name (summary and detailed modes)")
	return cmd
}
