package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Luoxiaogan/vllm-simulation/internal/config"
	"github.com/Luoxiaogan/vllm-simulation/internal/report"
)

var thresholdsFlag []float64

// compareAdmissionCmd runs the same trace+config across a list of admission
// thresholds and prints rejected-count/max-ratio/sacrifice-count side by
// side, grounded in original_source/experiments/test_admission_control.py.
var compareAdmissionCmd = &cobra.Command{
	Use:   "compare-admission",
	Short: "Run the same config across several admission-control thresholds",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		baseCfg := loadConfig()

		if len(thresholdsFlag) == 0 {
			logrus.Fatal("configuration error: --threshold must be given at least once")
		}

		trace := loadOrGenerateTrace(baseCfg)

		fmt.Println("threshold\trejected_count\tmax_ratio\ttotal_sacrifices\tcompleted")
		for _, threshold := range thresholdsFlag {
			cfg := *baseCfg
			admissionCfg := config.AdmissionControl{Enabled: true, Threshold: threshold}
			cfg.AdmissionControl = &admissionCfg

			traceCopy := cloneTrace(trace)
			sim, overlay := buildSimulator(&cfg, traceCopy)
			result := sim.Run()
			summary := report.Summarize(result.Completed, result.Snapshots)

			rejected := 0
			maxRatio := 0.0
			if overlay != nil {
				rejected = overlay.RejectedCount
				maxRatio = overlay.MaxRatio
			}
			fmt.Printf("%.3f\t%d\t%.4f\t%d\t%d\n",
				threshold, rejected, maxRatio, sim.State.TotalSacrifices, summary.TotalCompleted)
		}
	},
}

func init() {
	compareAdmissionCmd.Flags().Float64SliceVar(&thresholdsFlag, "threshold", nil, "admission thresholds to compare (repeatable)")
}
