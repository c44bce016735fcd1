package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// GIVEN three running requests whose EnterRunningTimes all tie at the same
// timestamp, listed in running as [3, 1, 2]
// WHEN SelectVictimsLIFO is asked to free one unit of memory
// THEN the stable sort leaves tied entries in their original relative
// order, so the first entry in running (id 3) is evicted, not the
// numerically largest or smallest id.
func TestSelectVictimsLIFO_TiesPreserveRunningOrder(t *testing.T) {
	running := []*request.Request{
		request.New(3, 0, 10, 50),
		request.New(1, 0, 10, 50),
		request.New(2, 0, 10, 50),
	}
	for _, r := range running {
		r.Status = request.StatusRunning
		r.EnterRunningTimes = append(r.EnterRunningTimes, 0)
	}

	victims := SelectVictimsLIFO(running, 1)

	require.Len(t, victims, 1)
	assert.Equal(t, int64(3), victims[0].ID, "a tie on last-enter-time must resolve to running's original order, not id order")
}

// GIVEN three running requests admitted at distinct times
// WHEN SelectVictimsLIFO is asked to free more memory than any single
// victim holds
// THEN it keeps adding victims, most-recently-admitted first, until the
// accumulated freed memory meets the requirement.
func TestSelectVictimsLIFO_AccumulatesMultipleVictims(t *testing.T) {
	running := []*request.Request{
		request.New(1, 0, 10, 50),
		request.New(2, 0, 10, 50),
		request.New(3, 0, 10, 50),
	}
	running[0].Status = request.StatusRunning
	running[0].EnterRunningTimes = []float64{0}
	running[1].Status = request.StatusRunning
	running[1].EnterRunningTimes = []float64{1}
	running[2].Status = request.StatusRunning
	running[2].EnterRunningTimes = []float64{2}

	victims := SelectVictimsLIFO(running, 15)

	require.Len(t, victims, 2, "one victim (10 tokens) is not enough to reach 15, a second must be added")
	assert.Equal(t, int64(3), victims[0].ID)
	assert.Equal(t, int64(2), victims[1].ID)
}

// GIVEN the same three running requests
// WHEN SelectVictimsArrivalDescending selects victims
// THEN it orders by ArrivalTime descending instead of by admission
// recency, protecting the earliest arrival.
func TestSelectVictimsArrivalDescending_OrdersByArrivalNotAdmission(t *testing.T) {
	running := []*request.Request{
		request.New(1, 5, 10, 50),
		request.New(2, 20, 10, 50),
		request.New(3, 1, 10, 50),
	}
	for _, r := range running {
		r.Status = request.StatusRunning
		r.EnterRunningTimes = append(r.EnterRunningTimes, 0)
	}

	victims := SelectVictimsArrivalDescending(running, 1)

	require.Len(t, victims, 1)
	assert.Equal(t, int64(2), victims[0].ID, "the latest arrival (t=20) must be evicted first")
}

// GIVEN three running requests (5 tokens each) admitted in order 1, 2, 3,
// with MTotal tightened so the projected next-step occupancy (15 used + 3
// running = 18) exceeds it by more than any single request can free (a
// deficit of 8 against 5-token victims)
// WHEN AbsorbMemoryGrowth runs in sacrifice mode
// THEN it sacrifices victims LIFO-first (3 then 2) until the deficit
// clears, leaving the earliest-admitted request running.
func TestAbsorbMemoryGrowth_SacrificesMultipleVictimsToClearDeficit(t *testing.T) {
	st := state.New(1000, 1000)
	a := request.New(1, 0, 5, 50)
	b := request.New(2, 0, 5, 50)
	c := request.New(3, 0, 5, 50)
	require.NoError(t, st.AdmitToBatch(a, 0))
	require.NoError(t, st.AdmitToBatch(b, 1))
	require.NoError(t, st.AdmitToBatch(c, 2))
	st.MTotal = 10

	p := &AggressivePolicy{Mode: ModeSacrifice, SelectVictims: SelectVictimsLIFO}
	preempted := p.AbsorbMemoryGrowth(st, 5)

	require.Len(t, preempted, 2, "a single 5-token victim cannot close an 8-token deficit")
	assert.Equal(t, int64(3), preempted[0].ID)
	assert.Equal(t, int64(2), preempted[1].ID)
	require.Len(t, st.Running, 1)
	assert.Equal(t, int64(1), st.Running[0].ID)
	assert.Equal(t, 2, st.TotalSacrifices)
}

// GIVEN a running set under no memory pressure
// WHEN AbsorbMemoryGrowth runs
// THEN it returns no victims and leaves RUNNING untouched.
func TestAbsorbMemoryGrowth_NoOpUnderBudget(t *testing.T) {
	st := state.New(1000, 1000)
	a := request.New(1, 0, 10, 50)
	require.NoError(t, st.AdmitToBatch(a, 0))

	p := &AggressivePolicy{Mode: ModeSwap, SelectVictims: SelectVictimsLIFO}
	preempted := p.AbsorbMemoryGrowth(st, 5)

	assert.Empty(t, preempted)
	assert.Len(t, st.Running, 1)
}

// GIVEN two requests preempted in the same cycle, both sacrificed (so
// state.Sacrifice already spliced each onto the head of WAITING
// individually) plus a third request already waiting beforehand
// WHEN RequeueAtHead re-normalizes the queue
// THEN the preempted requests end up as a contiguous block at the head, in
// their original (pre-preemption) relative order, ahead of the pre-existing
// waiting request.
func TestRequeueAtHead_PreservesRelativeOrderOfPreemptedBlock(t *testing.T) {
	st := state.New(1000, 1000)
	preexisting := request.New(1, 0, 5, 5)
	st.AddToWaiting(preexisting)

	first := request.New(2, 0, 5, 5)
	second := request.New(3, 0, 5, 5)
	// mimic state.Sacrifice's one-at-a-time head insertion: first sacrificed
	// ends up behind second once second is also spliced to the head.
	st.Waiting = append([]*request.Request{second, first}, st.Waiting...)
	first.Status = request.StatusWaiting
	second.Status = request.StatusWaiting

	RequeueAtHead(st, []*request.Request{first, second})

	require.Len(t, st.Waiting, 3)
	assert.Equal(t, int64(2), st.Waiting[0].ID, "preempted block must preserve the order passed to RequeueAtHead, not the splice order")
	assert.Equal(t, int64(3), st.Waiting[1].ID)
	assert.Equal(t, int64(1), st.Waiting[2].ID, "pre-existing waiting request must follow the requeued block")
}
