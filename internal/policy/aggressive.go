package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// AggressivePolicy separates admission from preemption into three phases
// each cycle so a single cycle never admits and then immediately evicts the
// same frontier of requests (spec.md §4.3.2). Mirrors vLLM's default
// scheduler: schedule prefills, absorb running growth (preempting if
// needed), then re-enqueue anything preempted.
type AggressivePolicy struct {
	Mode          Mode
	SelectVictims VictimSelector
}

func (p *AggressivePolicy) PerformSchedulingCycle(st *state.State, now float64) {
	p.admitPrefills(st, now)
	preempted := p.AbsorbMemoryGrowth(st, now)
	RequeueAtHead(st, preempted)
}

// admitPrefills is Phase 1: walk SWAPPED (swap mode only) then WAITING in
// FCFS order, admitting while memory_requirement+1 fits in a running
// reservation, and stop at the FIRST request that does not fit (no
// B-check here — B gates execution, not admission).
func (p *AggressivePolicy) admitPrefills(st *state.State, now float64) {
	if p.Mode == ModeSwap {
		p.admitQueueStopAtFirstMiss(st, &st.Swapped, now, true)
	}
	p.admitQueueStopAtFirstMiss(st, &st.Waiting, now, false)
}

func (p *AggressivePolicy) admitQueueStopAtFirstMiss(st *state.State, queue *[]*request.Request, now float64, fromSwapped bool) {
	for len(*queue) > 0 {
		req := (*queue)[0]
		needed := req.MemoryRequirement() + 1
		if needed > st.AvailableMemory() {
			break
		}
		if fromSwapped {
			if err := st.SwapIn(req, now); err != nil {
				logrus.WithError(err).Errorf("aggressive policy: admit invariant violated for request %d", req.ID)
				break
			}
			continue
		}
		*queue = (*queue)[1:]
		if err := st.AdmitToBatch(req, now); err != nil {
			logrus.WithError(err).Errorf("aggressive policy: admit invariant violated for request %d", req.ID)
			break
		}
	}
}

// AbsorbMemoryGrowth is Phase 2: every RUNNING request will produce one
// more token next step, so projected occupancy is GPUMemoryUsed+|RUNNING|.
// While that exceeds MTotal, select victims (LIFO by default) and preempt
// them. Returns the preempted requests WITHOUT re-enqueueing them — callers
// that want the full cycle should follow with RequeueAtHead (Phase 3); the
// admission-control overlay calls this alone when new admissions are
// blocked but preemption must still proceed.
func (p *AggressivePolicy) AbsorbMemoryGrowth(st *state.State, now float64) []*request.Request {
	var preempted []*request.Request

	projected := st.GPUMemoryUsed() + len(st.Running)
	if projected <= st.MTotal {
		return preempted
	}
	memoryToFree := projected - st.MTotal

	for memoryToFree > 0 && len(st.Running) > 0 {
		victims := p.SelectVictims(st.Running, memoryToFree)
		if len(victims) == 0 {
			logrus.Warn("aggressive policy: memory pressure persists but no victim could be selected; stalling for this cycle")
			break
		}
		for _, victim := range victims {
			freedBefore := victim.CurrentMemoryUsage()
			switch p.Mode {
			case ModeSacrifice:
				st.Sacrifice(victim, now)
			case ModeSwap:
				st.SwapOut(victim, now)
			}
			preempted = append(preempted, victim)
			memoryToFree -= freedBefore
		}
	}
	return preempted
}

// RequeueAtHead is Phase 3: splice preempted requests onto the head of
// WAITING, preserving their relative order (reverse-insert: the same result
// as pushing each victim onto the head in reverse order). Requests sacrificed by state.Sacrifice are already at
// the head one at a time; this re-normalizes the final order across the
// whole batch of victims from this cycle. Swap victims are NOT re-enqueued
// here — they sit in SWAPPED until a future cycle's Phase 1 admits them.
func RequeueAtHead(st *state.State, preempted []*request.Request) {
	var toRequeue []*request.Request
	for _, req := range preempted {
		if req.Status == request.StatusWaiting {
			toRequeue = append(toRequeue, req)
		}
	}
	if len(toRequeue) == 0 {
		return
	}

	// state.Sacrifice already inserted each victim at the head individually
	// (in preemption order, most-recent victim ends up frontmost); remove
	// those entries and reinsert as a contiguous block preserving the
	// victim list's original relative order.
	remaining := make([]*request.Request, 0, len(st.Waiting))
	toRequeueSet := make(map[*request.Request]bool, len(toRequeue))
	for _, r := range toRequeue {
		toRequeueSet[r] = true
	}
	for _, r := range st.Waiting {
		if !toRequeueSet[r] {
			remaining = append(remaining, r)
		}
	}
	st.Waiting = append(append([]*request.Request{}, toRequeue...), remaining...)
}
