package cmd

import (
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Luoxiaogan/vllm-simulation/internal/config"
	"github.com/Luoxiaogan/vllm-simulation/internal/overlay"
	"github.com/Luoxiaogan/vllm-simulation/internal/policy"
	"github.com/Luoxiaogan/vllm-simulation/internal/report"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/simulator"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
	"github.com/Luoxiaogan/vllm-simulation/internal/statesave"
	"github.com/Luoxiaogan/vllm-simulation/internal/workload"
)

// loadConfig loads configPath and applies the persistent --preemption_mode /
// --preemption_strategy CLI overrides on top of the document, matching
// spec.md §6's "overrides may be supplied on the command line".
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("configuration error: %v", err)
	}
	if overrideMode != "" {
		cfg.Control.PreemptionMode = overrideMode
	}
	if overrideStrat != "" {
		cfg.Control.PreemptionStrategy = overrideStrat
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("configuration error after override: %v", err)
	}
	return cfg
}

// buildSimulator wires a State, ControlPolicy, and Simulator from cfg and
// the given pending trace, optionally seeding from a saved checkpoint and
// wrapping the policy with the admission-control overlay.
func buildSimulator(cfg *config.Config, pending []*request.Request) (*simulator.Simulator, *overlay.AdmissionControlOverlay) {
	st := state.New(cfg.System.MTotal, cfg.System.B)

	basePolicy, err := policy.New(cfg.Control.PreemptionMode, cfg.Control.PreemptionStrategy, cfg.Control.VictimPolicy)
	if err != nil {
		logrus.Fatalf("configuration error: %v", err)
	}

	var pol policy.ControlPolicy = basePolicy
	var admissionOverlay *overlay.AdmissionControlOverlay
	if cfg.AdmissionControl != nil && cfg.AdmissionControl.Enabled {
		admissionOverlay = overlay.NewAdmissionControlOverlay(basePolicy, cfg.AdmissionControl.Threshold)
		pol = admissionOverlay
	}

	sim := simulator.New(st, pol, pending, cfg.System.D0, cfg.System.D1)

	if cfg.InitialState != nil && cfg.InitialState.Path != "" {
		loaded, err := statesave.Load(cfg.InitialState.Path)
		if err != nil {
			logrus.Fatalf("failed to load initial state %s: %v", cfg.InitialState.Path, err)
		}
		sim.SeedFromState(loaded.Waiting, loaded.Running, loaded.Swapped)
		sim.Clock = loaded.StartTime
		logrus.Infof("resumed from %s: %d waiting, %d running, %d swapped, start_time=%f",
			cfg.InitialState.Path, len(loaded.Waiting), len(loaded.Running), len(loaded.Swapped), loaded.StartTime)
	}

	sim.PreStep = func(s *simulator.Simulator) {
		if s.BatchID%100 == 0 {
			logrus.Infof("batch=%d time=%f waiting=%d running=%d swapped=%d completed=%d",
				s.BatchID, s.Clock, len(s.State.Waiting), len(s.State.Running), len(s.State.Swapped), len(s.State.Completed))
		}
	}
	wireStateSave(sim, cfg)

	return sim, admissionOverlay
}

// loadOrGenerateTrace loads cfg.Data.TracePath if set, otherwise synthesizes
// one from cfg.Generation (the `generate`/`explore` modes).
func loadOrGenerateTrace(cfg *config.Config) []*request.Request {
	if cfg.Data.TracePath != "" {
		reqs, err := workload.LoadTrace(cfg.Data.TracePath, cfg.Data.DecodeLengthCeiling)
		if err != nil {
			logrus.Fatalf("trace error: %v", err)
		}
		return reqs
	}
	return generateFromConfig(cfg.Generation)
}

func generateFromConfig(gen *config.Generation) []*request.Request {
	if gen == nil {
		logrus.Fatal("configuration error: no data.trace_path and no generation block")
	}
	classes := make([]workload.RequestClass, len(gen.Classes))
	for i, c := range gen.Classes {
		classes[i] = workload.RequestClass{PrefillLength: c.PrefillLength, DecodeLength: c.DecodeLength, Rate: c.Rate}
	}
	return workload.GeneratePoisson(classes, gen.NumRequests, gen.Seed)
}

// writeReports emits the three CSV artifacts and logs a terminal summary.
func writeReports(result simulator.Result, cfg *config.Config) {
	snapshotsPath := filepath.Join(outDir, "batch_snapshots.csv")
	tracePath := filepath.Join(outDir, "request_trace.csv")
	eventsPath := filepath.Join(outDir, "event_log.csv")

	if err := report.WriteSnapshots(snapshotsPath, result.Snapshots); err != nil {
		logrus.Fatalf("failed to write batch snapshots: %v", err)
	}
	if err := report.WriteRequestTrace(tracePath, result.Completed); err != nil {
		logrus.Fatalf("failed to write request trace: %v", err)
	}
	if err := report.WriteEventLog(eventsPath, result.EventLog); err != nil {
		logrus.Fatalf("failed to write event log: %v", err)
	}

	summary := report.Summarize(result.Completed, result.Snapshots)
	logrus.Infof("completed=%d total_batches=%d total_time=%f mean_delay=%f p99_delay=%f mean_util=%f max_util=%f",
		summary.TotalCompleted, result.TotalBatches, result.TotalTime,
		summary.MeanTotalDelay, summary.P99TotalDelay, summary.MeanMemoryUtilization, summary.MaxMemoryUtilization)
}

// wireStateSave layers a state_save hook onto sim.PreStep (on top of the
// progress-logging hook buildSimulator already installed) so a checkpoint
// is written the moment each configured batch id is entered.
func wireStateSave(sim *simulator.Simulator, cfg *config.Config) {
	if cfg.StateSave == nil || len(cfg.StateSave.BatchIDs) == 0 {
		return
	}
	targets := map[int64]bool{}
	for _, id := range cfg.StateSave.BatchIDs {
		targets[id] = true
	}
	previous := sim.PreStep
	sim.PreStep = func(s *simulator.Simulator) {
		if previous != nil {
			previous(s)
		}
		if !targets[s.BatchID] {
			return
		}
		path := filepath.Join(cfg.StateSave.OutDir, "checkpoint_"+itoa(s.BatchID)+".csv")
		if err := statesave.Save(path, s.State.Waiting, s.State.Running, s.State.Swapped, s.BatchID, s.Clock); err != nil {
			logrus.Errorf("failed to save state at batch %d: %v", s.BatchID, err)
			return
		}
		logrus.Infof("saved state checkpoint at batch %d to %s", s.BatchID, path)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// cloneTrace deep-copies a trace so the same base trace can be replayed
// across multiple independent runs (compare-admission mode) without one
// run's mutations (decode position, status) leaking into the next.
func cloneTrace(trace []*request.Request) []*request.Request {
	out := make([]*request.Request, len(trace))
	for i, r := range trace {
		out[i] = request.New(r.ID, r.ArrivalTime, r.PrefillLength, r.DecodeLength)
	}
	return out
}
