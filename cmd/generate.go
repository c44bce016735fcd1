package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a simulation against a freshly generated multi-class Poisson trace",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig()

		trace := generateFromConfig(cfg.Generation)
		logrus.Infof("generated %d requests", len(trace))

		sim, _ := buildSimulator(cfg, trace)
		result := sim.Run()
		writeReports(result, cfg)
	},
}
