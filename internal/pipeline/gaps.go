package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/analyst/internal/model"
)

// DefaultGapQuestions is used whenever gap generation yields nothing usable.
func DefaultGapQuestions() []model.GapQuestion {
	return []model.GapQuestion{
		{ID: "gap_1", Question: "What is the company's annual revenue?", Category: "Financial Data", Priority: model.PriorityHigh},
		{ID: "gap_2", Question: "Who are the top 3 competitors?", Category: "Competitive Intelligence", Priority: model.PriorityHigh},
		{ID: "gap_3", Question: "What is the company's primary customer segment?", Category: "Customer Data", Priority: model.PriorityMedium},
		{ID: "gap_4", Question: "How many employees does the company have?", Category: "Team & Operations", Priority: model.PriorityMedium},
		{ID: "gap_5", Question: "What is the company's growth rate?", Category: "Financial Data", Priority: model.PriorityHigh},
	}
}

// ParseGapQuestions reads the first JSON array in raw. Missing ids become
// gap_<n>, unknown priorities become medium, and entries without a question
// are dropped. An empty result falls back to DefaultGapQuestions.
func ParseGapQuestions(raw string) []model.GapQuestion {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return DefaultGapQuestions()
	}

	var entries []struct {
		ID       string `json:"id"`
		Question string `json:"question"`
		Category string `json:"category"`
		Priority string `json:"priority"`
		Impact   string `json:"impact"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &entries); err != nil {
		return DefaultGapQuestions()
	}

	out := make([]model.GapQuestion, 0, len(entries))
	for _, e := range entries {
		q := strings.TrimSpace(e.Question)
		if q == "" {
			continue
		}
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = fmt.Sprintf("gap_%d", len(out)+1)
		}
		out = append(out, model.GapQuestion{
			ID:       id,
			Question: q,
			Category: strings.TrimSpace(e.Category),
			Priority: normalizePriority(e.Priority),
			Impact:   strings.TrimSpace(e.Impact),
		})
	}
	if len(out) == 0 {
		return DefaultGapQuestions()
	}
	return out
}

func normalizePriority(p string) model.Priority {
	switch model.Priority(strings.ToLower(strings.TrimSpace(p))) {
	case model.PriorityHigh:
		return model.PriorityHigh
	case model.PriorityLow:
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}
