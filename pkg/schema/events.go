package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// EventType is the history event tag reported by the Temporal HTTP API.
// The set below is the closed enumeration the server understands; any other
// value decodes without error and is ignored by reconstruction.
type EventType string

// Workflow lifecycle.
const (
	EventWorkflowExecutionStarted    EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_STARTED"
	EventWorkflowExecutionCompleted  EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_COMPLETED"
	EventWorkflowExecutionFailed     EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_FAILED"
	EventWorkflowExecutionTimedOut   EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_TIMED_OUT"
	EventWorkflowExecutionCanceled   EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_CANCELED"
	EventWorkflowExecutionTerminated EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_TERMINATED"
	EventWorkflowExecutionSignaled   EventType = "EVENT_TYPE_WORKFLOW_EXECUTION_SIGNALED"

	EventWorkflowTaskScheduled EventType = "EVENT_TYPE_WORKFLOW_TASK_SCHEDULED"
	EventWorkflowTaskStarted   EventType = "EVENT_TYPE_WORKFLOW_TASK_STARTED"
	EventWorkflowTaskCompleted EventType = "EVENT_TYPE_WORKFLOW_TASK_COMPLETED"
)

// Activities.
const (
	EventActivityTaskScheduled EventType = "EVENT_TYPE_ACTIVITY_TASK_SCHEDULED"
	EventActivityTaskStarted   EventType = "EVENT_TYPE_ACTIVITY_TASK_STARTED"
	EventActivityTaskCompleted EventType = "EVENT_TYPE_ACTIVITY_TASK_COMPLETED"
	EventActivityTaskFailed    EventType = "EVENT_TYPE_ACTIVITY_TASK_FAILED"
	EventActivityTaskTimedOut  EventType = "EVENT_TYPE_ACTIVITY_TASK_TIMED_OUT"
	EventActivityTaskCanceled  EventType = "EVENT_TYPE_ACTIVITY_TASK_CANCELED"
)

// Timers.
const (
	EventTimerStarted  EventType = "EVENT_TYPE_TIMER_STARTED"
	EventTimerFired    EventType = "EVENT_TYPE_TIMER_FIRED"
	EventTimerCanceled EventType = "EVENT_TYPE_TIMER_CANCELED"
)

// Child workflows and external signals. Accepted, never reconstructed.
const (
	EventStartChildWorkflowExecutionInitiated EventType = "EVENT_TYPE_START_CHILD_WORKFLOW_EXECUTION_INITIATED"
	EventChildWorkflowExecutionStarted        EventType = "EVENT_TYPE_CHILD_WORKFLOW_EXECUTION_STARTED"
	EventChildWorkflowExecutionCompleted      EventType = "EVENT_TYPE_CHILD_WORKFLOW_EXECUTION_COMPLETED"
	EventChildWorkflowExecutionFailed         EventType = "EVENT_TYPE_CHILD_WORKFLOW_EXECUTION_FAILED"
	EventStartChildWorkflowExecutionFailed    EventType = "EVENT_TYPE_START_CHILD_WORKFLOW_EXECUTION_FAILED"

	EventSignalExternalWorkflowExecutionInitiated EventType = "EVENT_TYPE_SIGNAL_EXTERNAL_WORKFLOW_EXECUTION_INITIATED"
	EventExternalWorkflowExecutionSignaled        EventType = "EVENT_TYPE_EXTERNAL_WORKFLOW_EXECUTION_SIGNALED"
	EventSignalExternalWorkflowExecutionFailed    EventType = "EVENT_TYPE_SIGNAL_EXTERNAL_WORKFLOW_EXECUTION_FAILED"
)

// EventID is a decimal-encoded event identifier. The HTTP API encodes int64
// as a JSON string, but a bare JSON number is accepted too.
type EventID string

// UnmarshalJSON accepts "12", 12 and null.
func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = EventID(n.String())
	return nil
}

// Int returns the numeric value of the id; unparseable ids are 0.
func (id EventID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Payload is one opaque, base64-encoded blob.
type Payload struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Data     *string           `json:"data,omitempty"`
}

// Payloads is the wrapper the API uses around payload lists.
type Payloads struct {
	Payloads []Payload `json:"payloads,omitempty"`
}

// List returns the payloads, tolerating a nil receiver.
func (p *Payloads) List() []Payload {
	if p == nil {
		return nil
	}
	return p.Payloads
}

// TaskQueue identifies the queue a task was dispatched on.
type TaskQueue struct {
	Name       string `json:"name,omitempty"`
	Kind       string `json:"kind,omitempty"`
	NormalName string `json:"normalName,omitempty"`
}

// NamedType is the {name: ...} wrapper used for workflow and activity types.
type NamedType struct {
	Name string `json:"name"`
}

// WorkflowExecution is a workflow id / run id pair.
type WorkflowExecution struct {
	WorkflowID string `json:"workflowId"`
	RunID      string `json:"runId,omitempty"`
}

// RetryPolicy mirrors the activity retry policy recorded at scheduling time.
type RetryPolicy struct {
	InitialInterval        string   `json:"initialInterval,omitempty"`
	BackoffCoefficient     float64  `json:"backoffCoefficient,omitempty"`
	MaximumInterval        string   `json:"maximumInterval,omitempty"`
	MaximumAttempts        int      `json:"maximumAttempts,omitempty"`
	NonRetryableErrorTypes []string `json:"nonRetryableErrorTypes,omitempty"`
}

// HistoryEvent is one raw record of a workflow run's history. At most one
// attribute pointer is populated, matching EventType.
type HistoryEvent struct {
	EventID   EventID   `json:"eventId"`
	EventTime time.Time `json:"eventTime"`
	EventType EventType `json:"eventType"`
	Version   EventID   `json:"version,omitempty"`
	TaskID    EventID   `json:"taskId,omitempty"`

	WorkflowExecutionStarted    *WorkflowExecutionStartedAttributes    `json:"workflowExecutionStartedEventAttributes,omitempty"`
	WorkflowExecutionCompleted  *WorkflowExecutionCompletedAttributes  `json:"workflowExecutionCompletedEventAttributes,omitempty"`
	WorkflowExecutionFailed     *WorkflowExecutionFailedAttributes     `json:"workflowExecutionFailedEventAttributes,omitempty"`
	WorkflowExecutionTimedOut   *WorkflowExecutionTimedOutAttributes   `json:"workflowExecutionTimedOutEventAttributes,omitempty"`
	WorkflowExecutionCanceled   *WorkflowExecutionCanceledAttributes   `json:"workflowExecutionCanceledEventAttributes,omitempty"`
	WorkflowExecutionTerminated *WorkflowExecutionTerminatedAttributes `json:"workflowExecutionTerminatedEventAttributes,omitempty"`
	WorkflowExecutionSignaled   *WorkflowExecutionSignaledAttributes   `json:"workflowExecutionSignaledEventAttributes,omitempty"`

	ActivityTaskScheduled *ActivityTaskScheduledAttributes `json:"activityTaskScheduledEventAttributes,omitempty"`
	ActivityTaskStarted   *ActivityTaskStartedAttributes   `json:"activityTaskStartedEventAttributes,omitempty"`
	ActivityTaskCompleted *ActivityTaskCompletedAttributes `json:"activityTaskCompletedEventAttributes,omitempty"`
	ActivityTaskFailed    *ActivityTaskFailedAttributes    `json:"activityTaskFailedEventAttributes,omitempty"`
	ActivityTaskTimedOut  *ActivityTaskTimedOutAttributes  `json:"activityTaskTimedOutEventAttributes,omitempty"`
	ActivityTaskCanceled  *ActivityTaskCanceledAttributes  `json:"activityTaskCanceledEventAttributes,omitempty"`

	TimerStarted  *TimerStartedAttributes `json:"timerStartedEventAttributes,omitempty"`
	TimerFired    *TimerFiredAttributes   `json:"timerFiredEventAttributes,omitempty"`
	TimerCanceled *TimerFiredAttributes   `json:"timerCanceledEventAttributes,omitempty"`
}

// TimerIDFor returns the business timer id of a fired or canceled timer
// event. Canceled events share the fired attribute layout; when the canceled
// attributes are missing the fired ones are consulted, which is how older
// histories present cancellations.
func (e *HistoryEvent) TimerIDFor() (string, bool) {
	switch e.EventType {
	case EventTimerFired:
		if e.TimerFired != nil {
			return e.TimerFired.TimerID, true
		}
	case EventTimerCanceled:
		if e.TimerCanceled != nil {
			return e.TimerCanceled.TimerID, true
		}
		if e.TimerFired != nil {
			return e.TimerFired.TimerID, true
		}
	}
	return "", false
}

type WorkflowExecutionStartedAttributes struct {
	WorkflowType             NamedType          `json:"workflowType"`
	WorkflowID               string             `json:"workflowId,omitempty"`
	TaskQueue                TaskQueue          `json:"taskQueue"`
	Input                    *Payloads          `json:"input,omitempty"`
	WorkflowExecutionTimeout string             `json:"workflowExecutionTimeout,omitempty"`
	WorkflowRunTimeout       string             `json:"workflowRunTimeout,omitempty"`
	WorkflowTaskTimeout      string             `json:"workflowTaskTimeout,omitempty"`
	OriginalExecutionRunID   string             `json:"originalExecutionRunId,omitempty"`
	FirstExecutionRunID      string             `json:"firstExecutionRunId,omitempty"`
	Identity                 string             `json:"identity,omitempty"`
	Attempt                  int                `json:"attempt,omitempty"`
	FirstWorkflowTaskBackoff string             `json:"firstWorkflowTaskBackoff,omitempty"`
	Header                   json.RawMessage    `json:"header,omitempty"`
	Memo                     json.RawMessage    `json:"memo,omitempty"`
	SearchAttributes         json.RawMessage    `json:"searchAttributes,omitempty"`
	ParentWorkflowNamespace  string             `json:"parentWorkflowNamespace,omitempty"`
	ParentWorkflowExecution  *WorkflowExecution `json:"parentWorkflowExecution,omitempty"`
	RootWorkflowExecution    *WorkflowExecution `json:"rootWorkflowExecution,omitempty"`
}

type WorkflowExecutionCompletedAttributes struct {
	Result                       *Payloads `json:"result,omitempty"`
	WorkflowTaskCompletedEventID EventID   `json:"workflowTaskCompletedEventId,omitempty"`
	NewExecutionRunID            string    `json:"newExecutionRunId,omitempty"`
}

type WorkflowExecutionFailedAttributes struct {
	Failure                      json.RawMessage `json:"failure,omitempty"`
	RetryState                   string          `json:"retryState,omitempty"`
	WorkflowTaskCompletedEventID EventID         `json:"workflowTaskCompletedEventId,omitempty"`
	NewExecutionRunID            string          `json:"newExecutionRunId,omitempty"`
}

type WorkflowExecutionTimedOutAttributes struct {
	RetryState        string `json:"retryState,omitempty"`
	NewExecutionRunID string `json:"newExecutionRunId,omitempty"`
}

type WorkflowExecutionCanceledAttributes struct {
	WorkflowTaskCompletedEventID EventID   `json:"workflowTaskCompletedEventId,omitempty"`
	Details                      *Payloads `json:"details,omitempty"`
}

type WorkflowExecutionTerminatedAttributes struct {
	Reason   string    `json:"reason,omitempty"`
	Details  *Payloads `json:"details,omitempty"`
	Identity string    `json:"identity,omitempty"`
}

type WorkflowExecutionSignaledAttributes struct {
	SignalName string          `json:"signalName"`
	Input      *Payloads       `json:"input,omitempty"`
	Identity   string          `json:"identity,omitempty"`
	Header     json.RawMessage `json:"header,omitempty"`
}

type ActivityTaskScheduledAttributes struct {
	ActivityID                   string          `json:"activityId"`
	ActivityType                 NamedType       `json:"activityType"`
	TaskQueue                    TaskQueue       `json:"taskQueue"`
	Header                       json.RawMessage `json:"header,omitempty"`
	Input                        *Payloads       `json:"input,omitempty"`
	ScheduleToCloseTimeout       string          `json:"scheduleToCloseTimeout,omitempty"`
	ScheduleToStartTimeout       string          `json:"scheduleToStartTimeout,omitempty"`
	StartToCloseTimeout          string          `json:"startToCloseTimeout,omitempty"`
	HeartbeatTimeout             string          `json:"heartbeatTimeout,omitempty"`
	WorkflowTaskCompletedEventID EventID         `json:"workflowTaskCompletedEventId,omitempty"`
	RetryPolicy                  *RetryPolicy    `json:"retryPolicy,omitempty"`
}

type ActivityTaskStartedAttributes struct {
	ScheduledEventID EventID         `json:"scheduledEventId"`
	Identity         string          `json:"identity,omitempty"`
	RequestID        string          `json:"requestId,omitempty"`
	Attempt          int             `json:"attempt,omitempty"`
	LastFailure      json.RawMessage `json:"lastFailure,omitempty"`
}

type ActivityTaskCompletedAttributes struct {
	Result           *Payloads `json:"result,omitempty"`
	ScheduledEventID EventID   `json:"scheduledEventId"`
	StartedEventID   EventID   `json:"startedEventId,omitempty"`
	Identity         string    `json:"identity,omitempty"`
}

type ActivityTaskFailedAttributes struct {
	Failure          json.RawMessage `json:"failure,omitempty"`
	ScheduledEventID EventID         `json:"scheduledEventId"`
	StartedEventID   EventID         `json:"startedEventId,omitempty"`
	Identity         string          `json:"identity,omitempty"`
	RetryState       string          `json:"retryState,omitempty"`
}

type ActivityTaskTimedOutAttributes struct {
	Failure          json.RawMessage `json:"failure,omitempty"`
	ScheduledEventID EventID         `json:"scheduledEventId"`
	StartedEventID   EventID         `json:"startedEventId,omitempty"`
	RetryState       string          `json:"retryState,omitempty"`
}

type ActivityTaskCanceledAttributes struct {
	Details                      *Payloads `json:"details,omitempty"`
	LatestCancelRequestedEventID EventID   `json:"latestCancelRequestedEventId,omitempty"`
	ScheduledEventID             EventID   `json:"scheduledEventId"`
	StartedEventID               EventID   `json:"startedEventId,omitempty"`
	Identity                     string    `json:"identity,omitempty"`
}

type TimerStartedAttributes struct {
	TimerID                      string  `json:"timerId"`
	StartToFireTimeout           string  `json:"startToFireTimeout,omitempty"`
	WorkflowTaskCompletedEventID EventID `json:"workflowTaskCompletedEventId,omitempty"`
}

// TimerFiredAttributes is shared by fired and canceled timer events.
type TimerFiredAttributes struct {
	TimerID        string  `json:"timerId"`
	StartedEventID EventID `json:"startedEventId,omitempty"`
}
