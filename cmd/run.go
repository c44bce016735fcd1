package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a config file and an existing trace",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig()

		trace := loadOrGenerateTrace(cfg)
		if len(trace) == 0 {
			logrus.Warn("trace is empty; simulation returns immediately with zero metrics")
		}

		sim, _ := buildSimulator(cfg, trace)
		result := sim.Run()
		writeReports(result, cfg)
	},
}
