package history

import "github.com/rendis/temporal-mcp/pkg/schema"

var statusByEventType = map[schema.EventType]schema.Status{
	schema.EventWorkflowExecutionStarted:    schema.StatusRunning,
	schema.EventWorkflowExecutionCompleted:  schema.StatusCompleted,
	schema.EventWorkflowExecutionFailed:     schema.StatusFailed,
	schema.EventWorkflowExecutionTimedOut:   schema.StatusTimedOut,
	schema.EventWorkflowExecutionCanceled:   schema.StatusCanceled,
	schema.EventWorkflowExecutionTerminated: schema.StatusTerminated,

	schema.EventActivityTaskScheduled: schema.StatusScheduled,
	schema.EventActivityTaskStarted:   schema.StatusStarted,
	schema.EventActivityTaskCompleted: schema.StatusCompleted,
	schema.EventActivityTaskFailed:    schema.StatusFailed,
	schema.EventActivityTaskTimedOut:  schema.StatusTimedOut,
	schema.EventActivityTaskCanceled:  schema.StatusCanceled,

	schema.EventTimerStarted:  schema.StatusStarted,
	schema.EventTimerFired:    schema.StatusFired,
	schema.EventTimerCanceled: schema.StatusCanceled,
}

// Classify maps an event type to the status it puts its entity in.
// Unrecognized types map to StatusUnknown.
func Classify(t schema.EventType) schema.Status {
	if s, ok := statusByEventType[t]; ok {
		return s
	}
	return schema.StatusUnknown
}
