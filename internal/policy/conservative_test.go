package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// GIVEN a waiting queue [big (does not fit), small (fits)] and a budget
// that only the second request fits under
// WHEN the conservative policy runs its scheduling cycle
// THEN it skips the mid-queue request that doesn't fit rather than
// stopping there, and still admits the smaller request behind it.
func TestConservativePolicy_SkipsNonFittingRequestInsteadOfStopping(t *testing.T) {
	st := state.New(10, 1000)
	big := request.New(1, 0, 10, 5)
	small := request.New(2, 0, 5, 5)
	st.AddToWaiting(big)
	st.AddToWaiting(small)

	p := &ConservativePolicy{Mode: ModeSwap}
	p.PerformSchedulingCycle(st, 0)

	require.Len(t, st.Running, 1)
	assert.Equal(t, int64(2), st.Running[0].ID, "the request that fits must be admitted even though an earlier one in queue didn't")
	require.Len(t, st.Waiting, 1)
	assert.Equal(t, int64(1), st.Waiting[0].ID, "the non-fitting request stays in WAITING rather than blocking the cycle")
}

// GIVEN a waiting queue where admitting the first request would leave
// insufficient reserved budget for the second, even though the second
// would fit against raw MTotal alone
// WHEN the conservative policy admits in order
// THEN each admission reserves memory against the ones after it, so the
// second request is skipped once the first has claimed enough of the
// budget.
func TestConservativePolicy_ReservesMemoryAcrossAdmissionsInQueueOrder(t *testing.T) {
	st := state.New(10, 1000)
	first := request.New(1, 0, 6, 5)
	second := request.New(2, 0, 6, 5)
	st.AddToWaiting(first)
	st.AddToWaiting(second)

	p := &ConservativePolicy{Mode: ModeSwap}
	p.PerformSchedulingCycle(st, 0)

	require.Len(t, st.Running, 1)
	assert.Equal(t, int64(1), st.Running[0].ID)
	require.Len(t, st.Waiting, 1)
	assert.Equal(t, int64(2), st.Waiting[0].ID, "second request no longer fits once the first has reserved its share of MTotal")
}

// GIVEN a request sitting in SWAPPED that fits under the budget
// WHEN the conservative policy runs in swap mode
// THEN it is admitted back into RUNNING via the reservation pass over
// SWAPPED before WAITING is considered, and no preemption or
// re-sacrifice ever happens under this strategy.
func TestConservativePolicy_AdmitsFromSwappedNeverPreempts(t *testing.T) {
	st := state.New(10, 1000)
	alreadyRunning := request.New(1, 0, 5, 5)
	require.NoError(t, st.AdmitToBatch(alreadyRunning, 0))
	toSwapIn := request.New(2, 0, 4, 5)
	require.NoError(t, st.AdmitToBatch(toSwapIn, 0))
	st.SwapOut(toSwapIn, 0)
	require.Len(t, st.Swapped, 1)
	require.Len(t, st.Running, 1)

	p := &ConservativePolicy{Mode: ModeSwap}
	p.PerformSchedulingCycle(st, 1)

	assert.Equal(t, 0, st.TotalSacrifices, "conservative strategy must never sacrifice")
	assert.Empty(t, st.Swapped)
	require.Len(t, st.Running, 2)
	ids := []int64{st.Running[0].ID, st.Running[1].ID}
	assert.Contains(t, ids, int64(2), "the swapped request must be admitted back once it fits")
}

// GIVEN a conservative policy in sacrifice mode with no SWAPPED requests
// WHEN PerformSchedulingCycle runs
// THEN it only walks WAITING and never calls into Sacrifice/SwapOut —
// conservative strategy admits but never preempts regardless of mode.
func TestConservativePolicy_SacrificeModeStillNeverPreempts(t *testing.T) {
	st := state.New(6, 1000)
	fits := request.New(1, 0, 5, 5)
	tooBig := request.New(2, 0, 100, 5)
	st.AddToWaiting(fits)
	st.AddToWaiting(tooBig)

	p := &ConservativePolicy{Mode: ModeSacrifice}
	p.PerformSchedulingCycle(st, 0)

	require.Len(t, st.Running, 1)
	assert.Equal(t, int64(1), st.Running[0].ID)
	require.Len(t, st.Waiting, 1)
	assert.Equal(t, int64(2), st.Waiting[0].ID)
	assert.Equal(t, 0, st.TotalSacrifices)
}
