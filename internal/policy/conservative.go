package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// ConservativePolicy never preempts: it only admits requests that already
// fit, skipping (not blocking on) ones that don't so a smaller later
// request can still get in. Spec.md §4.3.1.
type ConservativePolicy struct {
	Mode Mode
}

func (p *ConservativePolicy) PerformSchedulingCycle(st *state.State, now float64) {
	if p.Mode == ModeSwap {
		admitWithReservation(st, st.Swapped, now, true)
	}
	admitWithReservation(st, st.Waiting, now, false)
}

// admitWithReservation walks queue in order, admitting any request that
// fits under a running reservation of the memory already claimed by
// earlier admissions in this same pass. Unlike the aggressive strategy's
// Phase 1, it does NOT stop at the first failure — it skips over requests
// that don't fit so later, smaller requests still get a chance.
func admitWithReservation(st *state.State, queue []*request.Request, now float64, fromSwapped bool) {
	available := st.AvailableMemory()
	reserved := 0
	// snapshot the queue: AdmitToBatch mutates st.Waiting/st.Swapped as we go
	candidates := make([]*request.Request, len(queue))
	copy(candidates, queue)

	for _, req := range candidates {
		needed := req.MemoryRequirement() + 1
		if needed > available-reserved {
			continue
		}
		if fromSwapped {
			if err := st.SwapIn(req, now); err != nil {
				logrus.WithError(err).Errorf("conservative policy: admit invariant violated for request %d", req.ID)
				continue
			}
			reserved += req.MemoryRequirement()
			continue
		}
		removeFrom(&st.Waiting, req)
		if err := st.AdmitToBatch(req, now); err != nil {
			logrus.WithError(err).Errorf("conservative policy: admit invariant violated for request %d", req.ID)
			continue
		}
		reserved += req.MemoryRequirement()
	}
}

func removeFrom(queue *[]*request.Request, req *request.Request) {
	q := *queue
	for i, r := range q {
		if r == req {
			*queue = append(q[:i], q[i+1:]...)
			return
		}
	}
}
