package model

import (
	"time"
)

// JobStatus is the top-level state of an analysis job.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusError      JobStatus = "error"
)

// AgentStatus tracks one persona through pending → running → terminal.
type AgentStatus string

const (
	AgentStatusPending  AgentStatus = "pending"
	AgentStatusRunning  AgentStatus = "running"
	AgentStatusComplete AgentStatus = "complete"
	AgentStatusError    AgentStatus = "error"
	AgentStatusSkipped  AgentStatus = "skipped"
)

// Terminal reports whether the status is final for the current run.
func (s AgentStatus) Terminal() bool {
	return s == AgentStatusComplete || s == AgentStatusError || s == AgentStatusSkipped
}

// InputType records how the job was submitted.
type InputType string

const (
	InputTypeFile InputType = "file"
	InputTypeText InputType = "text"
	InputTypeName InputType = "name"
)

// Priority ranks a gap question.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// AgentRecord is one persona's row on the job.
type AgentRecord struct {
	Role          Role        `json:"role"`
	Title         string      `json:"title"`
	Emoji         string      `json:"emoji"`
	Content       string      `json:"content"`
	Status        AgentStatus `json:"status"`
	Error         string      `json:"error,omitempty"`
	SkippedReason string      `json:"skippedReason,omitempty"`
}

// GapQuestion is a follow-up question proposed by gap analysis.
type GapQuestion struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
	Impact   string   `json:"impact,omitempty"`
}

// RoleReason pairs a role with the manager's justification.
type RoleReason struct {
	Role   Role   `json:"role"`
	Reason string `json:"reason"`
}

// ManagerDecision is the structured output of the triage step.
type ManagerDecision struct {
	Selected []RoleReason `json:"selected"`
	Skipped  []RoleReason `json:"skipped"`
}

// IsSelected reports whether role appears in the selected list.
func (d *ManagerDecision) IsSelected(role Role) bool {
	if d == nil {
		return false
	}
	for _, s := range d.Selected {
		if s.Role == role {
			return true
		}
	}
	return false
}

// SkipReason returns the reason recorded for a skipped role.
func (d *ManagerDecision) SkipReason(role Role) (string, bool) {
	if d == nil {
		return "", false
	}
	for _, s := range d.Skipped {
		if s.Role == role {
			return s.Reason, true
		}
	}
	return "", false
}

// DeepenEntry is one append-only record of a deepen request.
type DeepenEntry struct {
	Answers   map[string]string `json:"answers"`
	Timestamp time.Time         `json:"timestamp"`
}

// FileRef points at an uploaded document, either an http(s) URL or a
// blob:// key in the upload bucket.
type FileRef struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// IndexEntry is the denormalized listing projection of a job.
type IndexEntry struct {
	ID          string    `json:"id"`
	CompanyName string    `json:"companyName"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      JobStatus `json:"status"`
}

// Job is one analysis request and its accumulated results.
type Job struct {
	ID               string           `json:"id"`
	CompanyName      string           `json:"companyName"`
	InputType        InputType        `json:"inputType"`
	InputSummary     string           `json:"inputSummary"`
	InputFull        string           `json:"inputFull,omitempty"`
	Status           JobStatus        `json:"status"`
	CurrentStep      string           `json:"currentStep,omitempty"`
	ProcessStartedAt *time.Time       `json:"processStartedAt,omitempty"`
	RunID            string           `json:"runId,omitempty"`
	Agents           []AgentRecord    `json:"agents"`
	ManagerDecision  *ManagerDecision `json:"managerDecision,omitempty"`
	GapQuestions     []GapQuestion    `json:"gapQuestions"`
	WebEnrichment    string           `json:"webEnrichment,omitempty"`
	DeepenHistory    []DeepenEntry    `json:"deepenHistory"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Agent returns the record for role, or nil when the job does not carry it.
func (j *Job) Agent(role Role) *AgentRecord {
	for i := range j.Agents {
		if j.Agents[i].Role == role {
			return &j.Agents[i]
		}
	}
	return nil
}

// AnyAgent reports whether any agent is in one of the given statuses.
func (j *Job) AnyAgent(statuses ...AgentStatus) bool {
	for _, a := range j.Agents {
		for _, s := range statuses {
			if a.Status == s {
				return true
			}
		}
	}
	return false
}

// CompletedAgents counts agents that produced output. The manager record is
// derived from the triage decision and never counts as analysis.
func (j *Job) CompletedAgents() int {
	n := 0
	for _, a := range j.Agents {
		if a.Role != RoleManager && a.Status == AgentStatusComplete {
			n++
		}
	}
	return n
}

// IndexEntry projects the job into its listing entry.
func (j *Job) IndexEntry() IndexEntry {
	return IndexEntry{
		ID:          j.ID,
		CompanyName: j.CompanyName,
		CreatedAt:   j.CreatedAt,
		Status:      j.Status,
	}
}

// Public returns a copy suitable for clients, without the full input text
// or the internal run id.
func (j *Job) Public() *Job {
	c := j.Clone()
	c.InputFull = ""
	c.RunID = ""
	return c
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.ProcessStartedAt != nil {
		t := *j.ProcessStartedAt
		c.ProcessStartedAt = &t
	}
	c.Agents = append([]AgentRecord(nil), j.Agents...)
	c.GapQuestions = append([]GapQuestion(nil), j.GapQuestions...)
	if j.ManagerDecision != nil {
		d := ManagerDecision{
			Selected: append([]RoleReason(nil), j.ManagerDecision.Selected...),
			Skipped:  append([]RoleReason(nil), j.ManagerDecision.Skipped...),
		}
		c.ManagerDecision = &d
	}
	c.DeepenHistory = make([]DeepenEntry, len(j.DeepenHistory))
	for i, e := range j.DeepenHistory {
		answers := make(map[string]string, len(e.Answers))
		for k, v := range e.Answers {
			answers[k] = v
		}
		c.DeepenHistory[i] = DeepenEntry{Answers: answers, Timestamp: e.Timestamp}
	}
	return &c
}
