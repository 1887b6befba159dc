package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/analyst/internal/model"
)

func TestRepair(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleAfter := 8 * time.Minute

	t.Run("complete without output", func(t *testing.T) {
		job := &model.Job{
			Status: model.JobStatusComplete,
			Agents: []model.AgentRecord{
				{Role: model.RoleManager, Status: model.AgentStatusComplete},
				{Role: model.RoleResearcher, Status: model.AgentStatusError},
			},
		}
		assert.True(t, Repair(job, now, staleAfter))
		assert.Equal(t, model.JobStatusError, job.Status)
		assert.Equal(t, StepRepairedEmpty, job.CurrentStep)
		assert.False(t, Repair(job, now, staleAfter), "repair is idempotent")
	})

	t.Run("stale processing", func(t *testing.T) {
		job := &model.Job{
			Status:           model.JobStatusProcessing,
			ProcessStartedAt: ptrTime(now.Add(-9 * time.Minute)),
			RunID:            "abandoned",
			Agents: []model.AgentRecord{
				{Role: model.RoleResearcher, Status: model.AgentStatusComplete, Content: "done"},
				{Role: model.RoleStrategist, Status: model.AgentStatusRunning},
				{Role: model.RoleSector, Status: model.AgentStatusPending},
			},
		}
		assert.True(t, Repair(job, now, staleAfter))
		assert.Equal(t, model.JobStatusError, job.Status)
		assert.Equal(t, "Analysis timed out after 8 minutes. Trigger processing again to retry.", job.CurrentStep)
		assert.Nil(t, job.ProcessStartedAt)
		assert.Empty(t, job.RunID)
		assert.Equal(t, model.AgentStatusComplete, job.Agents[0].Status)
		assert.Equal(t, model.AgentStatusError, job.Agents[1].Status)
		assert.Equal(t, model.AgentStatusPending, job.Agents[2].Status)
	})

	t.Run("fresh processing", func(t *testing.T) {
		job := &model.Job{
			Status:           model.JobStatusProcessing,
			ProcessStartedAt: ptrTime(now.Add(-7 * time.Minute)),
		}
		assert.False(t, Repair(job, now, staleAfter))
		assert.Equal(t, model.JobStatusProcessing, job.Status)
	})

	t.Run("processing never started", func(t *testing.T) {
		job := &model.Job{Status: model.JobStatusProcessing}
		assert.False(t, Repair(job, now, staleAfter))
	})

	t.Run("healthy complete", func(t *testing.T) {
		job := &model.Job{
			Status: model.JobStatusComplete,
			Agents: []model.AgentRecord{{Role: model.RoleSummary, Status: model.AgentStatusComplete}},
		}
		assert.False(t, Repair(job, now, staleAfter))
	})
}
