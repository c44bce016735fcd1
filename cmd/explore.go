package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// exploreCmd runs generate immediately followed by run against the result,
// grounded in original_source/experiments/run_advanced_with_generation.py.
var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Generate a trace from config then immediately simulate it",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig()

		trace := generateFromConfig(cfg.Generation)
		logrus.Infof("explore: generated %d requests, starting simulation", len(trace))

		sim, _ := buildSimulator(cfg, trace)
		result := sim.Run()
		writeReports(result, cfg)
	},
}
