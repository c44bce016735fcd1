// Package overlay implements the truncation and admission-control overlays
// as decorators composed around a simulator/policy, rather than variants
// baked into the core loop.
package overlay

import (
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/simulator"
)

// Generator produces a fresh trace; callers typically supply a closure that
// calls workload.GeneratePoisson or GeneratePoissonWithRates with its own
// classes, request count and seed.
type Generator func() []*request.Request

// TruncationResult is what TruncationOverlay reports once it has fired, for
// inclusion in the run's terminal report.
type TruncationResult struct {
	Fired                bool
	TruncationBatchID    int64
	TruncationTime       float64
	NewRequestsStartTime float64
	NewRequestsEndTime   float64
}

// TruncationOverlay discards the pending trace at a designated batch id and
// splices in a freshly generated one, at most once per run (spec.md §4.5).
type TruncationOverlay struct {
	BatchID   int64
	Generate  Generator
	nextReqID int64

	Result TruncationResult
	fired  bool
}

// NewTruncationOverlay builds an overlay that fires at batchID, minting new
// request IDs starting at firstNewReqID (callers should pick an id past the
// highest id already present in the original trace).
func NewTruncationOverlay(batchID int64, generate Generator, firstNewReqID int64) *TruncationOverlay {
	return &TruncationOverlay{
		BatchID:   batchID,
		Generate:  generate,
		nextReqID: firstNewReqID,
	}
}

// MaybeApply is the Simulator.PreStep hook: once batch_id reaches BatchID it
// discards the not-yet-arrived trace, generates a replacement, offsets its
// arrival times by now, assigns fresh request ids, and installs it as the
// new pending trace. In-flight requests (WAITING/RUNNING/SWAPPED) are left
// untouched.
func (o *TruncationOverlay) MaybeApply(sim *simulator.Simulator, now float64) {
	if o.fired || sim.BatchID != o.BatchID {
		return
	}
	o.fired = true

	sim.Pending = nil

	fresh := o.Generate()
	if len(fresh) == 0 {
		o.Result = TruncationResult{
			Fired:                true,
			TruncationBatchID:    o.BatchID,
			TruncationTime:       now,
			NewRequestsStartTime: now,
			NewRequestsEndTime:   now,
		}
		return
	}

	start := fresh[0].ArrivalTime + now
	end := start
	for _, r := range fresh {
		r.ArrivalTime += now
		r.ID = o.nextReqID
		o.nextReqID++
		if r.ArrivalTime > end {
			end = r.ArrivalTime
		}
	}
	sim.Pending = fresh

	o.Result = TruncationResult{
		Fired:                true,
		TruncationBatchID:    o.BatchID,
		TruncationTime:       now,
		NewRequestsStartTime: start,
		NewRequestsEndTime:   end,
	}
}
