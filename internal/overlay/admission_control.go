package overlay

import (
	"github.com/Luoxiaogan/vllm-simulation/internal/policy"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// memoryGrowthAbsorber is satisfied by *policy.AggressivePolicy; a wrapped
// *policy.ConservativePolicy never preempts, so gating it under pressure is
// simply a no-op (it already performs no new admissions once memory is
// full, since AdmitToBatch itself refuses an over-budget request).
type memoryGrowthAbsorber interface {
	AbsorbMemoryGrowth(st *state.State, now float64) []*request.Request
}

// AdmissionControlOverlay gates the wrapped policy's scheduling cycle on
// GPU memory pressure (spec.md §4.6): once gpu_memory_used/M_total reaches
// threshold, new admissions stop and only the preemption (memory-growth
// absorption) path runs.
type AdmissionControlOverlay struct {
	Wrapped   policy.ControlPolicy
	Threshold float64

	RejectedCount      int
	TimeAboveThreshold float64
	MaxRatio           float64

	lastNow  float64
	wasAbove bool
	primed   bool
}

// NewAdmissionControlOverlay wraps policy p with a ratio gate at threshold.
func NewAdmissionControlOverlay(p policy.ControlPolicy, threshold float64) *AdmissionControlOverlay {
	return &AdmissionControlOverlay{Wrapped: p, Threshold: threshold}
}

// PerformSchedulingCycle implements policy.ControlPolicy. It is safe to call
// from both scheduling-cycle points in the simulator's step, matching
// spec.md's "before either scheduling-cycle call" requirement: ratio is
// recomputed fresh on every invocation.
func (o *AdmissionControlOverlay) PerformSchedulingCycle(st *state.State, now float64) {
	if o.primed && o.wasAbove {
		o.TimeAboveThreshold += now - o.lastNow
	}

	ratio := 0.0
	if st.MTotal > 0 {
		ratio = float64(st.GPUMemoryUsed()) / float64(st.MTotal)
	}
	if ratio > o.MaxRatio {
		o.MaxRatio = ratio
	}

	above := ratio >= o.Threshold
	o.lastNow = now
	o.wasAbove = above
	o.primed = true

	if !above {
		o.Wrapped.PerformSchedulingCycle(st, now)
		return
	}

	if len(st.Waiting) > 0 || len(st.Swapped) > 0 {
		o.RejectedCount++
	}

	absorber, ok := o.Wrapped.(memoryGrowthAbsorber)
	if !ok {
		return
	}
	preempted := absorber.AbsorbMemoryGrowth(st, now)
	policy.RequeueAtHead(st, preempted)
}
