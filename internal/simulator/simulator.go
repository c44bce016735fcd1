// Package simulator implements the discrete-event core loop: arrival
// dispatch, batch construction via a ControlPolicy, execution-batch
// selection under the per-step token budget, decode advancement, and
// completion extraction.
package simulator

import (
	"github.com/sirupsen/logrus"

	"github.com/Luoxiaogan/vllm-simulation/internal/eventlog"
	"github.com/Luoxiaogan/vllm-simulation/internal/policy"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// Result is everything a run produces: the final clock/batch count, the
// per-batch snapshots, the request-scoped event log, and the completed
// requests themselves (each carrying its own delay/waiting/swap history).
type Result struct {
	TotalTime     float64
	TotalBatches  int64
	Snapshots     []state.Snapshot
	EventLog      *eventlog.Log
	Completed     []*request.Request
	Statistics    state.Statistics
}

// Simulator drives a State through a trace with a ControlPolicy, advancing
// simulated time batch-by-batch rather than wall-clock.
type Simulator struct {
	Clock   float64
	BatchID int64

	// Pending is the not-yet-arrived trace, sorted ascending by
	// ArrivalTime. Overlays (e.g. truncation) may replace it wholesale.
	Pending []*request.Request

	State  *state.State
	Policy policy.ControlPolicy

	// D0, D1 are the batch-duration coefficients: duration = D0 + D1*tokens.
	D0, D1 float64

	Log *eventlog.Log

	// PreStep, if set, runs once per outer-loop iteration after the
	// arrival pump and before batch construction — the truncation
	// overlay's hook point (spec.md §4.5).
	PreStep func(s *Simulator)

	snapshots []state.Snapshot
}

// New builds a Simulator ready to Run. pending must be sorted by
// ArrivalTime ascending (workload.LoadTrace and the generator both
// guarantee this).
func New(st *state.State, pol policy.ControlPolicy, pending []*request.Request, d0, d1 float64) *Simulator {
	log := eventlog.New()
	st.Log = log
	return &Simulator{
		State:   st,
		Policy:  pol,
		Pending: pending,
		D0:      d0,
		D1:      d1,
		Log:     log,
	}
}

// SeedFromState places already-loaded requests directly into their saved
// containers (WAITING/RUNNING/SWAPPED) ahead of Run, for resuming from a
// state-save checkpoint (spec.md §6 initial_state).
func (s *Simulator) SeedFromState(waiting, running, swapped []*request.Request) {
	s.State.Waiting = append(s.State.Waiting, waiting...)
	s.State.Running = append(s.State.Running, running...)
	s.State.Swapped = append(s.State.Swapped, swapped...)
}

// empty reports whether every queue the simulator tracks (not counting
// pending arrivals) is empty.
func (s *Simulator) empty() bool {
	return len(s.State.Waiting) == 0 && len(s.State.Running) == 0 && len(s.State.Swapped) == 0
}

// pumpArrivals moves every pending request whose ArrivalTime has been
// reached into WAITING, in trace order (ties broken by original order).
func (s *Simulator) pumpArrivals() {
	for len(s.Pending) > 0 && s.Pending[0].ArrivalTime <= s.Clock {
		req := s.Pending[0]
		s.Pending = s.Pending[1:]
		s.State.AddToWaiting(req)
		s.Log.Arrival(s.Clock, s.BatchID, req.ID, req.PrefillLength, req.DecodeLength)
	}
}

// Run advances the simulator until pending arrivals and all queues are
// drained, implementing spec.md §4.1's nine-step loop. It returns
// gracefully (no error) on a stall — no request admissible and nothing
// pending — since the model is self-healing as completions release
// memory; a genuine bug surfaces as an *state.InvariantError surfaced
// through logging from the policy layer, not as a panic here.
func (s *Simulator) Run() Result {
	for {
		// 1. Arrival pump.
		s.pumpArrivals()

		if s.PreStep != nil {
			s.PreStep(s)
		}

		// 2. Idle fast-forward: if every queue is empty but more is
		// coming, jump straight to the next arrival rather than stepping
		// through dead time.
		if s.empty() {
			if len(s.Pending) == 0 {
				break
			}
			s.Clock = s.Pending[0].ArrivalTime
			continue
		}

		// 3. Batch construction.
		s.State.CurrentBatchID = s.BatchID
		if len(s.State.Running) == 0 {
			s.Policy.PerformSchedulingCycle(s.State, s.Clock)
			if len(s.State.Running) == 0 {
				logrus.Debug("simulator: scheduling cycle produced no running requests; ending run (stall)")
				break
			}
		}

		s.stepBatch()

		// 9. Post-step scheduling cycle: reseat swapped/waiting into
		// running for the next step, and absorb any preemption that the
		// just-finished decode step's growth requires.
		s.State.CurrentBatchID = s.BatchID
		s.Policy.PerformSchedulingCycle(s.State, s.Clock)
	}

	return Result{
		TotalTime:    s.Clock,
		TotalBatches: s.BatchID,
		Snapshots:    s.snapshots,
		EventLog:     s.Log,
		Completed:    s.State.Completed,
		Statistics:   s.State.Statistics(),
	}
}

// stepBatch executes steps 4-8 of spec.md §4.1 for the current running
// set: select the execution batch under B, snapshot, advance the clock,
// decode one token per executed request, and sweep completions.
func (s *Simulator) stepBatch() {
	// 4. Execution-batch selection under B.
	batch, tokens := SelectExecutionBatch(s.State.Running, s.State.B)
	s.State.ActualBatchCount = len(batch)
	s.State.ActualBatchTokens = tokens

	// 5. Snapshot, then zero the per-batch sacrifice counter.
	duration := s.D0 + s.D1*float64(tokens)
	s.snapshots = append(s.snapshots, s.State.Snapshot(s.Clock, s.BatchID, duration))
	s.State.BatchSacrifices = 0

	// 6. Time advance.
	s.Clock += duration
	s.BatchID++

	// 7. Decode step: only requests in the executed subset advance.
	for _, r := range batch {
		r.CurrentDecodePosition++
	}

	// 8. Completion sweep.
	for _, r := range append([]*request.Request{}, s.State.Running...) {
		if r.IsCompleted() {
			s.State.CompleteRequest(r, s.Clock)
			delay := s.Clock - r.ArrivalTime
			s.Log.Completion(s.Clock, s.BatchID, r.ID, delay)
		}
	}
}

// SelectExecutionBatch walks running in FCFS order and greedily includes
// request r while the running total of (memory_requirement+1) stays within
// b. If the head request alone exceeds b, it is included anyway so the
// simulation always makes progress (spec.md §4.2).
func SelectExecutionBatch(running []*request.Request, b int) (batch []*request.Request, tokens int) {
	total := 0
	for _, r := range running {
		cost := r.MemoryRequirement() + 1
		if total+cost > b {
			if len(batch) == 0 {
				batch = append(batch, r)
				total += cost
			}
			break
		}
		batch = append(batch, r)
		total += cost
	}
	return batch, total
}
