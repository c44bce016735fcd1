package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luoxiaogan/vllm-simulation/internal/policy"
	"github.com/Luoxiaogan/vllm-simulation/internal/request"
	"github.com/Luoxiaogan/vllm-simulation/internal/state"
)

// GIVEN a single request (prefill=10, decode=5) with abundant memory and a
// fixed per-batch duration of 1.0
// WHEN the simulator runs to completion under the conservative+swap policy
// THEN it takes exactly one batch per decode step and the completion time
// matches arrival + decode_length * duration.
func TestRun_SingleRequest_ConservativeSwap(t *testing.T) {
	req := request.New(1, 0, 10, 5)
	st := state.New(100, 1000)
	pol, err := policy.New("swap", "conservative", "")
	require.NoError(t, err)

	sim := New(st, pol, []*request.Request{req}, 1.0, 0.0)
	result := sim.Run()

	assert.Equal(t, int64(5), result.TotalBatches)
	assert.Equal(t, 5.0, result.TotalTime)
	require.Len(t, result.Completed, 1)
	require.NotNil(t, result.Completed[0].CompletionTime)
	assert.Equal(t, 5.0, *result.Completed[0].CompletionTime)
	require.NotNil(t, result.Completed[0].TotalDelay())
	assert.Equal(t, 5.0, *result.Completed[0].TotalDelay())
}

// GIVEN a request whose memory requirement exceeds M_total
// WHEN conservative scheduling runs
// THEN the scheduling cycle never admits it and the run ends in a stall,
// matching spec.md's "never admitted" boundary case.
func TestRun_OversizedRequest_NeverAdmitted_Stalls(t *testing.T) {
	req := request.New(1, 0, 50, 5)
	st := state.New(10, 1000)
	pol, err := policy.New("swap", "conservative", "")
	require.NoError(t, err)

	sim := New(st, pol, []*request.Request{req}, 1.0, 0.0)
	result := sim.Run()

	assert.Equal(t, int64(0), result.TotalBatches)
	assert.Empty(t, result.Completed)
	assert.Equal(t, request.StatusWaiting, req.Status)
}

// GIVEN two requests, one arriving later than the first completes
// WHEN the simulator runs
// THEN the idle fast-forward jumps the clock straight to the second
// arrival instead of stepping through dead batches.
func TestRun_IdleFastForward_SkipsDeadTime(t *testing.T) {
	first := request.New(1, 0, 1, 1)
	second := request.New(2, 100, 1, 1)
	st := state.New(10, 1000)
	pol, err := policy.New("sacrifice", "aggressive", "")
	require.NoError(t, err)

	sim := New(st, pol, []*request.Request{first, second}, 1.0, 0.0)
	result := sim.Run()

	require.Len(t, result.Completed, 2)
	assert.Equal(t, 101.0, result.TotalTime)
}

func TestSelectExecutionBatch_GuaranteesProgressOnOversizedHead(t *testing.T) {
	running := []*request.Request{
		request.New(1, 0, 50, 10),
		request.New(2, 0, 1, 10),
	}
	batch, tokens := SelectExecutionBatch(running, 20)

	require.Len(t, batch, 1)
	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, 51, tokens)
}

func TestSelectExecutionBatch_FillsUnderBudget(t *testing.T) {
	running := []*request.Request{
		request.New(1, 0, 5, 10),
		request.New(2, 0, 5, 10),
		request.New(3, 0, 5, 10),
	}
	batch, tokens := SelectExecutionBatch(running, 13)

	require.Len(t, batch, 2)
	assert.Equal(t, 12, tokens)
}
