package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/crew"
	"github.com/crewcore/crew/pkg/memory"
)

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or manage the hybrid memory store",
	}
	cmd.AddCommand(memoryInitCmd())
	cmd.AddCommand(memoryStatusCmd())
	cmd.AddCommand(memorySearchCmd())
	cmd.AddCommand(memoryEntitiesCmd())
	cmd.AddCommand(memoryEntityCmd())
	cmd.AddCommand(memoryForgetCmd())
	cmd.AddCommand(memoryDoctorCmd())
	return cmd
}

func memoryInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace's durable store and vector index",
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
			fmt.Println("memory initialized at", cfg.Workspace)
			return nil
		},
	}
}

func memoryStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the entity count",
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

			entities, err := c.Store().AllEntities()
			if err != nil {
				return err
			}
			fmt.Printf("entities: %d\n", len(entities))
			return nil
		},
	}
}

func memorySearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search accumulated knowledge and conversations",
		Args:  cobra.MinimumNArgs(1),
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

			query := strings.Join(args, " ")
			results, err := c.Memory().Vectors.Search(context.Background(), query, limit, "")
			if err != nil {
				return err
			}
			fmt.Println(memory.FormatResults(results))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func memoryEntitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List known entities",
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

			entities, err := c.Store().AllEntities()
			if err != nil {
				return err
			}
			for _, e := range entities {
				fmt.Printf("%s (%s)\n", e.CanonicalName, e.Type)
			}
			return nil
		},
	}
}

func memoryEntityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entity <name>",
		Short: "Show relations known about an entity",
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

			relations, err := c.Memory().Graph.QueryEntity(args[0])
			if err != nil {
				return err
			}
			fmt.Println(memory.FormatRelations(relations))
			return nil
		},
	}
}

func memoryForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <name>",
		Short: "Remove an entity's indexed knowledge (best effort)",
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

			name := args[0]
			ent, ok, err := c.Store().FindEntityByName(name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("forget: entity %q not found", name)
			}
			if err := c.Memory().Vectors.DeleteKnowledge(context.Background(), ent.ID); err != nil {
				return err
			}
			fmt.Println("forgot indexed knowledge for", name)
			return nil
		},
	}
}

func memoryDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the workspace's store and vector index are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := crew.New(*cfg)
			if err != nil {
				fmt.Println("FAIL:", err)
				return err
			}
			defer c.Close()

			if _, err := c.Store().AllEntities(); err != nil {
				fmt.Println("FAIL: entity table unreadable:", err)
				return err
			}
			if _, err := c.Memory().Vectors.Search(context.Background(), "healthcheck", 1, ""); err != nil {
				fmt.Println("FAIL: vector index unreadable:", err)
				return err
			}
			fmt.Println("OK: store and vector index reachable")
			return nil
		},
	}
}
