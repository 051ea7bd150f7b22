package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobCheckpointRoundTrip(t *testing.T) {
	job := &Job{Payload: JSON{}}

	cp := Checkpoint{
		ProcessedSourceIDs: []string{"a", "b", "c"},
		TotalExtractions:   5,
		TotalEntities:      2,
		LastCheckpointAt:   time.Now().UTC().Truncate(time.Second),
	}
	job.SetCheckpoint(cp)

	got := job.Checkpoint()
	assert.Equal(t, cp.ProcessedSourceIDs, got.ProcessedSourceIDs)
	assert.Equal(t, cp.TotalExtractions, got.TotalExtractions)
	assert.Equal(t, cp.TotalEntities, got.TotalEntities)
}

func TestJobCheckpointEmpty(t *testing.T) {
	job := &Job{Payload: JSON{}}
	assert.Empty(t, job.Checkpoint().ProcessedSourceIDs)
}

func TestJobIsTerminal(t *testing.T) {
	assert.False(t, (&Job{Status: StatusQueued}).IsTerminal())
	assert.False(t, (&Job{Status: StatusRunning}).IsTerminal())
	assert.False(t, (&Job{Status: StatusCancelling}).IsTerminal())
	assert.True(t, (&Job{Status: StatusCompleted}).IsTerminal())
	assert.True(t, (&Job{Status: StatusFailed}).IsTerminal())
	assert.True(t, (&Job{Status: StatusCancelled}).IsTerminal())
}
