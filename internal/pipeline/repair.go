package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/analyst/internal/model"
)

// Repair messages written to CurrentStep.
const (
	StepRepairedEmpty = "Analysis finished without any agent output. Trigger processing again to retry."
	stepTimedOut      = "Analysis timed out after %d minutes. Trigger processing again to retry."
)

// Repair corrects the two impossible states a crashed run can leave
// behind and reports whether job changed:
//
//   - complete with no complete agent becomes error;
//   - processing with a stale start time becomes error, running agents
//     become error, and the run id is cleared so a late write from the
//     abandoned run is rejected.
func Repair(job *model.Job, now time.Time, staleAfter time.Duration) bool {
	switch {
	case job.Status == model.JobStatusComplete && job.CompletedAgents() == 0:
		job.Status = model.JobStatusError
		job.CurrentStep = StepRepairedEmpty
		return true

	case job.Status == model.JobStatusProcessing && model.IsStale(now, job.ProcessStartedAt, staleAfter):
		job.Status = model.JobStatusError
		job.CurrentStep = fmt.Sprintf(stepTimedOut, int(staleAfter/time.Minute))
		job.ProcessStartedAt = nil
		job.RunID = ""
		for i := range job.Agents {
			if job.Agents[i].Status == model.AgentStatusRunning {
				job.Agents[i].Status = model.AgentStatusError
				job.Agents[i].Error = "timed out"
			}
		}
		return true
	}
	return false
}
