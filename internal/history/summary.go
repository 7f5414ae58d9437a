package history

import (
	"time"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// Summary is the at-a-glance view of a reconstructed run.
type Summary struct {
	TotalEvents    int           `json:"totalEvents"`
	TotalItems     int           `json:"totalItems"`
	WorkflowCount  int           `json:"workflowCount"`
	ActivityCount  int           `json:"activityCount"`
	TimerCount     int           `json:"timerCount"`
	SignalCount    int           `json:"signalCount"`
	WorkflowStatus schema.Status `json:"workflowStatus"`
	StartTime      *time.Time    `json:"startTime,omitempty"`
	EndTime        *time.Time    `json:"endTime,omitempty"`
	// Duration is in milliseconds and only set when both ends are known.
	Duration *int64 `json:"duration,omitempty"`
}

// Summarize counts items by kind and reports the root workflow's status and
// timing. totalEvents is the raw event count the items were built from.
func Summarize(items []schema.Item, totalEvents int) Summary {
	s := Summary{
		TotalEvents:    totalEvents,
		TotalItems:     len(items),
		WorkflowStatus: "unknown",
	}

	var root *schema.Workflow
	for _, it := range items {
		switch it.Kind() {
		case schema.KindWorkflow, schema.KindChildWorkflow:
			s.WorkflowCount++
			if wf, ok := it.(*schema.Workflow); ok && root == nil && wf.Type == schema.KindWorkflow {
				root = wf
			}
		case schema.KindActivity:
			s.ActivityCount++
		case schema.KindTimer:
			s.TimerCount++
		case schema.KindSignal:
			s.SignalCount++
		}
	}

	if root == nil {
		return s
	}
	s.WorkflowStatus = root.Status
	start := root.StartTime
	s.StartTime = &start
	if root.EndTime != nil {
		end := *root.EndTime
		s.EndTime = &end
		ms := end.Sub(start).Milliseconds()
		s.Duration = &ms
	}
	return s
}
