package main

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dosewatch",
	Short: "dosewatch - dosage reminder scheduling and delivery engine",
	Long: `dosewatch runs the reminder engine of a personal dosage tracker:
weekly recurring reminders and threshold reminders derived from a simulated
concentration curve, delivered through the system notification facility.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "~/.dosewatch/config.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(thresholdCmd)
	rootCmd.AddCommand(versionCmd)
}
