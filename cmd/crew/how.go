package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
	"github.com/crewcore/crew/pkg/memory"
)

func howCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "how <query>",
		Short: "Search past knowledge and conversations for how something was done",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
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
			results, err := c.Memory().Vectors.Search(ctx, query, 10, "")
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No matching knowledge or conversations found.")
				return nil
			}
			fmt.Println(memory.FormatResults(results))
			return nil
		},
	}
	return cmd
}
