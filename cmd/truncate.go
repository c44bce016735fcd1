package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Luoxiaogan/vllm-simulation/internal/overlay"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/simulator"
	"github.com/Luoxiaogan/vllm-simulation/internal/workload"
)

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Run a simulation that discards and replaces the trace at a designated batch id",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()
		cfg := loadConfig()

		if cfg.Truncation == nil {
			logrus.Fatal("configuration error: truncation.batch_id is required in truncate mode")
		}

		trace := loadOrGenerateTrace(cfg)
		nextReqID := int64(len(trace))

		sim, _ := buildSimulator(cfg, trace)

		newGen := cfg.Truncation.NewGeneration
		trunc := overlay.NewTruncationOverlay(cfg.Truncation.BatchID, func() []*request.Request {
			classes := make([]workload.RequestClass, len(newGen.Classes))
			for i, c := range newGen.Classes {
				classes[i] = workload.RequestClass{PrefillLength: c.PrefillLength, DecodeLength: c.DecodeLength, Rate: c.Rate}
			}
			return workload.GeneratePoisson(classes, newGen.NumRequests, newGen.Seed)
		}, nextReqID)

		previous := sim.PreStep
		sim.PreStep = func(s *simulator.Simulator) {
			if previous != nil {
				previous(s)
			}
			trunc.MaybeApply(s, s.Clock)
		}

		result := sim.Run()
		writeReports(result, cfg)

		logrus.Infof("truncation: fired=%t batch_id=%d time=%f new_requests=[%f,%f]",
			trunc.Result.Fired, trunc.Result.TruncationBatchID, trunc.Result.TruncationTime,
			trunc.Result.NewRequestsStartTime, trunc.Result.NewRequestsEndTime)
	},
}
