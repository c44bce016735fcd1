package statesave

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luoxiaogan/vllm-simulation/internal/request"
)

// GIVEN a set of in-flight requests saved at batch 10, time 5.0
// WHEN the checkpoint is reloaded
// THEN arrival times are renormalized to a minimum of 0 and StartTime is
// max_arrival - min_arrival.
func TestSaveAndLoad_RenormalizesArrivalTimes(t *testing.T) {
	waiting := request.New(1, 3.0, 10, 5)
	running := request.New(2, 1.0, 10, 5)
	running.Status = request.StatusRunning
	running.CurrentDecodePosition = 2
	running.EnterRunningTimes = append(running.EnterRunningTimes, 1.5)

	path := filepath.Join(t.TempDir(), "checkpoint.csv")
	require.NoError(t, Save(path, []*request.Request{waiting}, []*request.Request{running}, nil, 10, 5.0))

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Waiting, 1)
	require.Len(t, loaded.Running, 1)
	assert.Equal(t, 2.0, loaded.Waiting[0].ArrivalTime)
	assert.Equal(t, 0.0, loaded.Running[0].ArrivalTime)
	assert.Equal(t, 2.0, loaded.StartTime)
	assert.Equal(t, 2, loaded.Running[0].CurrentDecodePosition)
}

func TestSave_OmitsCompletedRequests(t *testing.T) {
	waiting := request.New(1, 0, 10, 5)
	path := filepath.Join(t.TempDir(), "checkpoint.csv")
	require.NoError(t, Save(path, []*request.Request{waiting}, nil, nil, 0, 0))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Waiting, 1)
	assert.Empty(t, loaded.Running)
	assert.Empty(t, loaded.Swapped)
}
