package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "billingctl",
		Short:        "Operator tool for installment billing runs",
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to config.yaml")

	rootCmd.AddCommand(chargeCmd(&configPath))
	rootCmd.AddCommand(chargeOverdueCmd(&configPath))
	rootCmd.AddCommand(remindersCmd(&configPath))
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(tokenCmd(&configPath))
	rootCmd.AddCommand(sandboxCmd(&configPath))
	rootCmd.AddCommand(eventsCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}
