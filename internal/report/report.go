// Package report writes the three CSV artifacts a run produces (batch
// snapshots, the completed-request trace, the event log) and computes
// terminal aggregate statistics with gonum.
package report

import (
	"encoding/csv"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/Luoxiaogan/vllm-simulation/internal/eventlog"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

var snapshotColumns = []string{
	"time", "batch_id", "batch_count", "batch_tokens", "running_count",
	"waiting_count", "swapped_count", "gpu_memory_used", "memory_utilization",
	"batch_duration", "completed_count", "batch_sacrifice_count",
}

// WriteSnapshots writes one row per executed batch (spec.md §6).
func WriteSnapshots(path string, snapshots []state.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(snapshotColumns); err != nil {
		return err
	}
	for _, s := range snapshots {
		util := 0.0
		if s.SystemMemoryTotal > 0 {
			util = float64(s.GPUMemoryUsed) / float64(s.SystemMemoryTotal)
		}
		row := []string{
			formatFloat(s.Time),
			strconv.FormatInt(s.BatchID, 10),
			strconv.Itoa(s.ActualBatchCount),
			strconv.Itoa(s.ActualBatchTokens),
			strconv.Itoa(len(s.Running)),
			strconv.Itoa(len(s.Waiting)),
			strconv.Itoa(len(s.Swapped)),
			strconv.Itoa(s.GPUMemoryUsed),
			formatFloat(util),
			formatFloat(s.Duration),
			strconv.Itoa(s.NumCompleted),
			strconv.Itoa(s.BatchSacrifices),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

var requestTraceColumns = []string{
	"req_id", "arrival_time", "prefill_length", "decode_length", "completion_time",
	"total_delay", "waiting_time", "execution_time", "swap_count",
	"total_swapped_time", "sacrifice_count",
}

// WriteRequestTrace writes one row per completed request (spec.md §6).
func WriteRequestTrace(path string, completed []*request.Request) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(requestTraceColumns); err != nil {
		return err
	}
	for _, r := range completed {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			formatFloat(r.ArrivalTime),
			strconv.Itoa(r.PrefillLength),
			strconv.Itoa(r.DecodeLength),
			formatOptionalFloat(r.CompletionTime),
			formatOptionalFloat(r.TotalDelay()),
			formatOptionalFloat(r.WaitingTime()),
			formatOptionalFloat(r.ExecutionTime()),
			strconv.Itoa(r.SwapCount()),
			formatFloat(r.TotalSwappedTime()),
			strconv.Itoa(r.SacrificeCount()),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

var eventLogColumns = []string{"time", "batch_id", "event_type", "req_id", "details"}

// WriteEventLog writes the full event stream (spec.md §6).
func WriteEventLog(path string, log *eventlog.Log) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(eventLogColumns); err != nil {
		return err
	}
	for _, ev := range log.Events {
		row := []string{
			formatFloat(ev.Time),
			strconv.FormatInt(ev.BatchID, 10),
			string(ev.Type),
			strconv.FormatInt(ev.ReqID, 10),
			ev.Details,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// Summary is the terminal aggregate statistics computed over a run.
type Summary struct {
	TotalCompleted       int
	MeanTotalDelay       float64
	P99TotalDelay        float64
	MeanWaitingTime      float64
	MeanMemoryUtilization float64
	MaxMemoryUtilization float64
}

// Summarize computes terminal statistics using gonum for the mean and
// percentile reductions rather than hand-rolled loops.
func Summarize(completed []*request.Request, snapshots []state.Snapshot) Summary {
	var delays, waits []float64
	for _, r := range completed {
		if d := r.TotalDelay(); d != nil {
			delays = append(delays, *d)
		}
		if w := r.WaitingTime(); w != nil {
			waits = append(waits, *w)
		}
	}

	var utils []float64
	for _, s := range snapshots {
		if s.SystemMemoryTotal > 0 {
			utils = append(utils, float64(s.GPUMemoryUsed)/float64(s.SystemMemoryTotal))
		}
	}

	summary := Summary{TotalCompleted: len(completed)}
	if len(delays) > 0 {
		sorted := append([]float64{}, delays...)
		stat.SortWeighted(sorted, nil)
		summary.MeanTotalDelay = stat.Mean(delays, nil)
		summary.P99TotalDelay = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	}
	if len(waits) > 0 {
		summary.MeanWaitingTime = stat.Mean(waits, nil)
	}
	if len(utils) > 0 {
		sorted := append([]float64{}, utils...)
		stat.SortWeighted(sorted, nil)
		summary.MeanMemoryUtilization = stat.Mean(utils, nil)
		summary.MaxMemoryUtilization = sorted[len(sorted)-1]
	}
	return summary
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
