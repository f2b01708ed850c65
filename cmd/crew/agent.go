package main

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
)

func agentCmd() *cobra.Command {
	var (
		message      string
		sessionKey   string
		noMarkdown   bool
		showWorkLogs bool
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Send one message to a room's leader bot and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("agent: -m/--message is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := crew.New(*cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			reply, err := c.RunCLI(ctx, roomID, sessionKey, message)
			if err != nil {
				return err
			}
			if noMarkdown {
				reply = stripMarkdown(reply)
			}
			fmt.Println(reply)

			if showWorkLogs {
				printRoomWorkLogs(c, roomID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "message to send")
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session key (default: cli:<room>)")
	cmd.Flags().Bool("markdown", true, "render markdown in the reply (default)")
	cmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "strip markdown from the reply")
	cmd.Flags().BoolVar(&showWorkLogs, "logs", false, "print the room's work-log entries after the reply")
	return cmd
}

var markdownStrip = regexp.MustCompile("[*_`#]")

func stripMarkdown(s string) string {
	return markdownStrip.ReplaceAllString(s, "")
}

func printRoomWorkLogs(c *crew.Crew, room string) {
	if room == "" {
		room = "default"
	}
	entries, err := c.Store().GetLogsByRoom(room)
	if err != nil {
		fmt.Println("(work log unavailable:", err, ")")
		return
	}
	fmt.Println("--- work log ---")
	for _, e := range entries {
		fmt.Printf("[%s] %s: %s\n", e.Level, e.BotName, e.Message)
	}
}
