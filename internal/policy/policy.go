// Package policy implements the scheduler's admission and preemption
// decisions: the conservative (no-preemption) strategy, and the aggressive
// three-phase strategy (admit prefills, absorb memory growth, re-enqueue),
// each combinable with swap or sacrifice preemption.
package policy

import (
	"fmt"
	"sort"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// Mode selects what happens to a preemption victim.
type Mode string

const (
	ModeSwap      Mode = "swap"
	ModeSacrifice Mode = "sacrifice"
)

// Strategy selects whether preemption ever happens.
type Strategy string

const (
	StrategyAggressive   Strategy = "aggressive"
	StrategyConservative Strategy = "conservative"
)

// ControlPolicy is the single operation the simulator drives each step:
// admit waiting/swapped requests into RUNNING and, in aggressive mode,
// preempt victims to absorb projected memory growth.
type ControlPolicy interface {
	PerformSchedulingCycle(st *state.State, now float64)
}

// VictimSelector picks the minimal prefix of running (by its own ordering)
// whose combined CurrentMemoryUsage meets or exceeds memoryNeeded. It must
// not mutate running.
type VictimSelector func(running []*request.Request, memoryNeeded int) []*request.Request

// SelectVictimsLIFO orders by EnterRunningTimes' last entry, descending
// (most recently admitted evicted first) — the default, and the
// behaviorally active selector in vLLM's scheduler (spec.md §4.3.3).
// Ties (identical last-enter-time) preserve running's original relative
// order, since the sort is stable: whichever tied request appears earlier
// in running is evicted first.
func SelectVictimsLIFO(running []*request.Request, memoryNeeded int) []*request.Request {
	return selectVictims(running, memoryNeeded, func(candidates []*request.Request) {
		sort.SliceStable(candidates, func(i, j int) bool {
			return lastEnterTime(candidates[i]) > lastEnterTime(candidates[j])
		})
	})
}

// SelectVictimsArrivalDescending orders by ArrivalTime descending
// (protects early arrivals), an alternative selector exposed via
// config.Control.VictimPolicy = "arrival-fifo". Dead code in the source this
// was ported from; kept here as an opt-in, not the default.
func SelectVictimsArrivalDescending(running []*request.Request, memoryNeeded int) []*request.Request {
	return selectVictims(running, memoryNeeded, func(candidates []*request.Request) {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ArrivalTime > candidates[j].ArrivalTime
		})
	})
}

func selectVictims(running []*request.Request, memoryNeeded int, order func([]*request.Request)) []*request.Request {
	if len(running) == 0 || memoryNeeded <= 0 {
		return nil
	}
	candidates := make([]*request.Request, len(running))
	copy(candidates, running)
	order(candidates)

	var victims []*request.Request
	freed := 0
	for _, r := range candidates {
		if freed >= memoryNeeded {
			break
		}
		victims = append(victims, r)
		freed += r.CurrentMemoryUsage()
	}
	return victims
}

func lastEnterTime(r *request.Request) float64 {
	if len(r.EnterRunningTimes) == 0 {
		return 0
	}
	return r.EnterRunningTimes[len(r.EnterRunningTimes)-1]
}

// New constructs a ControlPolicy from mode/strategy names. Valid modes:
// "swap", "sacrifice". Valid strategies: "aggressive", "conservative".
// victimPolicy selects the victim selector: "lifo" (default) or
// "arrival-fifo". control.allow_waiting_preempt is not passed in and does
// not change scheduling behavior in either strategy (preemption is always
// driven off RUNNING growth, never off WAITING directly).
func New(mode, strategy, victimPolicy string) (ControlPolicy, error) {
	m := Mode(mode)
	if m != ModeSwap && m != ModeSacrifice {
		return nil, fmt.Errorf("unknown preemption_mode %q: must be %q or %q", mode, ModeSwap, ModeSacrifice)
	}
	s := Strategy(strategy)
	if s != StrategyAggressive && s != StrategyConservative {
		return nil, fmt.Errorf("unknown preemption_strategy %q: must be %q or %q", strategy, StrategyAggressive, StrategyConservative)
	}
	selector := SelectVictimsLIFO
	switch victimPolicy {
	case "", "lifo":
		selector = SelectVictimsLIFO
	case "arrival-fifo":
		selector = SelectVictimsArrivalDescending
	default:
		return nil, fmt.Errorf("unknown victim_policy %q: must be %q or %q", victimPolicy, "lifo", "arrival-fifo")
	}

	if s == StrategyConservative {
		return &ConservativePolicy{Mode: m}, nil
	}
	return &AggressivePolicy{Mode: m, SelectVictims: selector}, nil
}
