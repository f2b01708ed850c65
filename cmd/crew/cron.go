package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
	"github.com/crewcore/crew/pkg/store"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled message injections",
	}
	cmd.AddCommand(cronAddCmd())
	return cmd
}

func cronAddCmd() *cobra.Command {
	var (
		name    string
		expr    string
		tz      string
		message string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a cron job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || expr == "" || message == "" {
				return fmt.Errorf("cron add: --name, --cron, and --message are required")
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

			room := roomID
			if room == "" {
				room = "default"
			}
			job := store.CronJob{
				Name:    name,
				Expr:    expr,
				TZ:      tz,
				Message: message,
				Channel: "cron",
				ChatID:  room,
			}
			if err := c.Store().PutCronJob(job); err != nil {
				return err
			}
			fmt.Printf("cron job %q scheduled (%s, tz=%s)\n", name, expr, job.TZ)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&expr, "cron", "", "cron expression")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (default UTC)")
	cmd.Flags().StringVar(&message, "message", "", "message to inject when due")
	return cmd
}
