package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
	"github.com/crewcore/crew/pkg/store"
)

func roomCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Manage rooms",
	}
	cmd.AddCommand(roomCreateCmd())
	return cmd
}

func roomCreateCmd() *cobra.Command {
	var (
		bots     string
		roomType string
	)

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create or update a room",
		Args:  cobra.ExactArgs(1),
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

			var participants []string
			if bots != "" {
				for _, b := range strings.Split(bots, ",") {
					participants = append(participants, strings.TrimSpace(b))
				}
			}

			room := store.Room{
				ID:              args[0],
				Kind:            roomType,
				Participants:    participants,
				CoordinatorMode: roomType == "coordination",
			}
			if err := c.Store().UpsertRoom(room); err != nil {
				return err
			}
			fmt.Printf("room %q created (type=%s, bots=%s)\n", room.ID, room.Kind, bots)
			return nil
		},
	}

	cmd.Flags().StringVar(&bots, "bots", "", "comma-separated bot names")
	cmd.Flags().StringVar(&roomType, "type", "open", "open|project|direct|coordination")
	return cmd
}
