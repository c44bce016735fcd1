// Package state holds the scheduler's authoritative queues, memory
// accounting, and cumulative counters, and mediates every request state
// transition so invariants (one container at a time, monotonic counters)
// hold by construction.
package state

import (
	"fmt"

	"github.com/Luoxiaogan/vllm-simulation/internal/eventlog"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
)

// Snapshot is a point-in-time record of system state, emitted once per
// executed batch.
type Snapshot struct {
	Time     float64
	BatchID  int64
	Waiting  []int64
	Running  []int64
	Swapped  []int64
	Duration float64
	NextTime float64

	GPUMemoryUsed     int
	SystemMemoryTotal int

	NumCompleted   int
	NumAdmitted    int
	NumSwappedOut  int
	NumSwappedIn   int

	ActualBatchCount  int
	ActualBatchTokens int
	BatchSacrifices   int
}

// InvariantError reports a policy bug: an attempt to violate a hard
// invariant such as admitting a request that does not fit in memory.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return e.Msg }

// State is the scheduler's queues, memory budget, and counters.
//
// Waiting, Running, and Swapped are ordered slices: append at the tail is
// the common insertion, head-insertion is used to re-queue preempted
// requests with top priority. Completed is append-only.
type State struct {
	MTotal int
	B      int

	Waiting   []*request.Request
	Running   []*request.Request
	Swapped   []*request.Request
	Completed []*request.Request

	TotalAdmitted   int
	TotalSwappedOut int
	TotalSwappedIn  int
	TotalSacrifices int
	BatchSacrifices int

	ActualBatchCount  int
	ActualBatchTokens int

	// Log, if set, receives swap_out/swap_in/sacrifice events as they
	// happen. The simulator wires its own eventlog.Log in here; nil is a
	// valid zero value for tests that don't care about the event stream.
	Log *eventlog.Log

	// CurrentBatchID tags events Log records with the batch in progress.
	// The simulator keeps this in step with its own BatchID before every
	// PerformSchedulingCycle call.
	CurrentBatchID int64
}

// New creates a State with the given GPU token budget and per-step batch
// token budget.
func New(mTotal, b int) *State {
	return &State{MTotal: mTotal, B: b}
}

// GPUMemoryUsed sums CurrentMemoryUsage over RUNNING requests.
func (s *State) GPUMemoryUsed() int {
	total := 0
	for _, r := range s.Running {
		total += r.CurrentMemoryUsage()
	}
	return total
}

// AvailableMemory is the GPU budget minus current usage. May be negative
// transiently during Phase-2 memory-growth detection.
func (s *State) AvailableMemory() int {
	return s.MTotal - s.GPUMemoryUsed()
}

// CanAdmit reports whether req fits in the remaining GPU budget.
func (s *State) CanAdmit(req *request.Request) bool {
	return req.MemoryRequirement() <= s.AvailableMemory()
}

// AddToWaiting appends req to the tail of WAITING and marks it WAITING.
func (s *State) AddToWaiting(req *request.Request) {
	req.Status = request.StatusWaiting
	s.Waiting = append(s.Waiting, req)
}

// AdmitToBatch moves req into RUNNING, stamping an entry time. It fails
// with an *InvariantError if req does not fit under MTotal: callers must
// have already checked CanAdmit, so a failure here indicates a policy bug
// (spec.md §7).
func (s *State) AdmitToBatch(req *request.Request, now float64) error {
	if !s.CanAdmit(req) {
		return &InvariantError{Msg: fmt.Sprintf(
			"cannot admit request %d: needs %d tokens, %d available",
			req.ID, req.MemoryRequirement(), s.AvailableMemory())}
	}
	req.Status = request.StatusRunning
	req.EnterRunningTimes = append(req.EnterRunningTimes, now)
	s.Running = append(s.Running, req)
	s.TotalAdmitted++
	return nil
}

// RemoveFromBatch removes req from RUNNING (if present) and stamps an exit
// time. It is a no-op if req is not currently running.
func (s *State) RemoveFromBatch(req *request.Request, now float64) {
	for i, r := range s.Running {
		if r == req {
			req.ExitRunningTimes = append(req.ExitRunningTimes, now)
			s.Running = append(s.Running[:i], s.Running[i+1:]...)
			return
		}
	}
}

// SwapOut moves req from RUNNING to the tail of SWAPPED, recording a new
// SwapEvent. Callers are responsible for having checked this is the
// intended victim; SwapOut itself does not validate memory pressure.
func (s *State) SwapOut(req *request.Request, now float64) {
	s.RemoveFromBatch(req, now)
	req.SwapEvents = append(req.SwapEvents, request.SwapEvent{
		SwapOutTime:    now,
		DecodePosition: req.CurrentDecodePosition,
		MemorySize:     req.PrefillLength + req.CurrentDecodePosition,
	})
	req.Status = request.StatusSwapped
	s.Swapped = append(s.Swapped, req)
	s.TotalSwappedOut++

	if s.Log != nil {
		s.Log.SwapOut(now, s.CurrentBatchID, req.ID, req.SwapEvents[len(req.SwapEvents)-1].DecodePosition, req.SwapEvents[len(req.SwapEvents)-1].MemorySize)
	}
}

// SwapIn moves req from SWAPPED back into RUNNING, stamping the swap-in
// time on its latest SwapEvent. Returns the AdmitToBatch error, if any.
func (s *State) SwapIn(req *request.Request, now float64) error {
	idx := -1
	for i, r := range s.Swapped {
		if r == req {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	if err := s.AdmitToBatch(req, now); err != nil {
		return err
	}
	s.Swapped = append(s.Swapped[:idx], s.Swapped[idx+1:]...)
	s.TotalSwappedIn++
	if n := len(req.SwapEvents); n > 0 {
		req.SwapEvents[n-1].SwapInTime = &now
	}
	if s.Log != nil {
		s.Log.SwapIn(now, s.CurrentBatchID, req.ID)
	}
	return nil
}

// Sacrifice removes req from RUNNING, records a SacrificeEvent (with the
// contextual running-queue snapshot the spec requires for offline
// conditional-preemption analysis), resets decode progress to zero, and
// re-queues req at the HEAD of WAITING.
func (s *State) Sacrifice(req *request.Request, now float64) {
	samePosition := 0
	for _, r := range s.Running {
		if r.CurrentDecodePosition == req.CurrentDecodePosition {
			samePosition++
		}
	}
	totalRunning := len(s.Running)

	req.SacrificeEvents = append(req.SacrificeEvents, request.SacrificeEvent{
		Time:                     now,
		DecodePosition:           req.CurrentDecodePosition,
		MemoryFreed:              req.CurrentMemoryUsage(),
		RunningCountSamePosition: samePosition,
		TotalRunningCount:        totalRunning,
	})

	s.RemoveFromBatch(req, now)
	req.CurrentDecodePosition = 0
	req.Status = request.StatusWaiting
	s.Waiting = append([]*request.Request{req}, s.Waiting...)

	s.TotalSacrifices++
	s.BatchSacrifices++

	if s.Log != nil {
		s.Log.Sacrifice(now, s.CurrentBatchID, req.ID, req.SacrificeEvents[len(req.SacrificeEvents)-1].DecodePosition, req.SacrificeEvents[len(req.SacrificeEvents)-1].MemoryFreed)
	}
}

// CompleteRequest moves req from RUNNING into COMPLETED, stamping its
// completion time.
func (s *State) CompleteRequest(req *request.Request, now float64) {
	s.RemoveFromBatch(req, now)
	req.Status = request.StatusCompleted
	completion := now
	req.CompletionTime = &completion
	s.Completed = append(s.Completed, req)
}

// Snapshot captures the current queue/memory state under the given batch
// id and duration. ActualBatchCount/ActualBatchTokens must be populated by
// the caller (the simulator, after execution-batch selection) before this
// is called; if they are zero this falls back to the full RUNNING set, so
// the snapshot remains meaningful even before the first batch executes.
func (s *State) Snapshot(now float64, batchID int64, duration float64) Snapshot {
	ids := func(reqs []*request.Request) []int64 {
		out := make([]int64, len(reqs))
		for i, r := range reqs {
			out[i] = r.ID
		}
		return out
	}

	actualCount := s.ActualBatchCount
	if actualCount == 0 {
		actualCount = len(s.Running)
	}
	actualTokens := s.ActualBatchTokens
	if actualTokens == 0 {
		actualTokens = s.GPUMemoryUsed()
	}

	return Snapshot{
		Time:              now,
		BatchID:           batchID,
		Waiting:           ids(s.Waiting),
		Running:           ids(s.Running),
		Swapped:           ids(s.Swapped),
		Duration:          duration,
		NextTime:          now + duration,
		GPUMemoryUsed:     s.GPUMemoryUsed(),
		SystemMemoryTotal: s.MTotal,
		NumCompleted:      len(s.Completed),
		NumAdmitted:       s.TotalAdmitted,
		NumSwappedOut:     s.TotalSwappedOut,
		NumSwappedIn:      s.TotalSwappedIn,
		ActualBatchCount:  actualCount,
		ActualBatchTokens: actualTokens,
		BatchSacrifices:   s.BatchSacrifices,
	}
}

// Statistics is a point-in-time summary of queue depths and memory
// utilization.
type Statistics struct {
	TotalRequests      int
	WaitingCount       int
	RunningCount       int
	SwappedCount       int
	CompletedCount     int
	TotalAdmitted      int
	TotalSwappedOut    int
	TotalSwappedIn     int
	GPUMemoryUsed      int
	GPUMemoryTotal     int
	MemoryUtilization  float64
}

// Statistics computes a point-in-time summary.
func (s *State) Statistics() Statistics {
	used := s.GPUMemoryUsed()
	util := 0.0
	if s.MTotal > 0 {
		util = float64(used) / float64(s.MTotal)
	}
	return Statistics{
		TotalRequests:     len(s.Waiting) + len(s.Running) + len(s.Swapped) + len(s.Completed),
		WaitingCount:      len(s.Waiting),
		RunningCount:      len(s.Running),
		SwappedCount:      len(s.Swapped),
		CompletedCount:    len(s.Completed),
		TotalAdmitted:     s.TotalAdmitted,
		TotalSwappedOut:   s.TotalSwappedOut,
		TotalSwappedIn:    s.TotalSwappedIn,
		GPUMemoryUsed:     used,
		GPUMemoryTotal:    s.MTotal,
		MemoryUtilization: util,
	}
}
