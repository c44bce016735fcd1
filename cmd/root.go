// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	logLevel      string
	overrideMode  string
	overrideStrat string
	outDir        string
)

var rootCmd = &cobra.Command{
	Use:   "vllm-simulation",
	Short: "Discrete-event simulator of a vLLM-style batched inference scheduler",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&overrideMode, "preemption_mode", "", "override control.preemption_mode (swap|sacrifice)")
	rootCmd.PersistentFlags().StringVar(&overrideStrat, "preemption_strategy", "", "override control.preemption_strategy (aggressive|conservative)")
	rootCmd.PersistentFlags().StringVar(&outDir, "out-dir", ".", "directory to write report CSVs into")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(exploreCmd)
	rootCmd.AddCommand(truncateCmd)
	rootCmd.AddCommand(compareAdmissionCmd)
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}
