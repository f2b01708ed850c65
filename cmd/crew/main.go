// Command crew is the operator CLI: one-shot reads and actions against a
// crew workspace (spec §6's agent/explain/how/workspace-logs/session/
// memory/room/cron surface). The long-running orchestrator lives in
// cmd/crewd.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/errkind"
)

var (
	cfgFile string
	roomID  string
)

var rootCmd = &cobra.Command{
	Use:   "crew",
	Short: "crew — multi-agent bot orchestrator CLI",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CREW_CONFIG_PATH; built-in defaults when neither is set)")
	rootCmd.PersistentFlags().StringVar(&roomID, "room", "", "room id (default: the implicit all-bots room)")

	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(explainCmd())
	rootCmd.AddCommand(howCmd())
	rootCmd.AddCommand(workspaceLogsCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(roomCmd())
	rootCmd.AddCommand(cronCmd())
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("CREW_CONFIG_PATH"); v != "" {
		return v
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	if k, ok := errkind.KindOf(err); ok {
		os.Exit(errkind.ExitCode(k))
	}
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fail(err)
	}
}
