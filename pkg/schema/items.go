package schema

import (
	"encoding/json"
	"time"
)

// ItemKind discriminates the chronological item union. It is serialized as
// the "type" field of every item.
type ItemKind string

const (
	KindWorkflow      ItemKind = "workflow"
	KindChildWorkflow ItemKind = "childWorkflow"
	KindActivity      ItemKind = "activity"
	KindTimer         ItemKind = "timer"
	KindSignal        ItemKind = "signal"
)

// SortKey positions an item in the chronological list. It is captured when
// the item is created and never changes afterwards.
type SortKey struct {
	Time    time.Time
	EventID EventID
}

// Less orders by instant, then by numeric event id.
func (k SortKey) Less(o SortKey) bool {
	if !k.Time.Equal(o.Time) {
		return k.Time.Before(o.Time)
	}
	return k.EventID.Int() < o.EventID.Int()
}

// Item is one reconstructed entity: *Workflow, *Activity, *Timer or *Signal.
type Item interface {
	Kind() ItemKind
	SortKey() SortKey
	item()
}

// Workflow is a workflow run. The root run of a history has kind "workflow".
type Workflow struct {
	Type                         ItemKind        `json:"type"`
	WorkflowID                   string          `json:"workflowId"`
	RunID                        string          `json:"runId"`
	WorkflowType                 string          `json:"workflowType"`
	Namespace                    string          `json:"namespace"`
	Status                       Status          `json:"status"`
	StartTime                    time.Time       `json:"startTime"`
	EndTime                      *time.Time      `json:"endTime,omitempty"`
	Input                        *string         `json:"input,omitempty"`
	Result                       *string         `json:"result,omitempty"`
	TaskQueue                    TaskQueue       `json:"taskQueue"`
	Header                       json.RawMessage `json:"header,omitempty"`
	Memo                         json.RawMessage `json:"memo,omitempty"`
	SearchAttributes             json.RawMessage `json:"searchAttributes,omitempty"`
	OriginalExecutionRunID       string          `json:"originalExecutionRunId,omitempty"`
	FirstExecutionRunID          string          `json:"firstExecutionRunId,omitempty"`
	WorkflowRunTimeout           string          `json:"workflowRunTimeout,omitempty"`
	WorkflowTaskTimeout          string          `json:"workflowTaskTimeout,omitempty"`
	Attempts                     int             `json:"attempts,omitempty"`
	ParentWorkflowID             string          `json:"parentWorkflowId,omitempty"`
	ParentWorkflowRunID          string          `json:"parentWorkflowRunId,omitempty"`
	ParentWorkflowNamespace      string          `json:"parentWorkflowNamespace,omitempty"`
	WorkflowTaskCompletedEventID EventID         `json:"workflowTaskCompletedEventId,omitempty"`
	RelatedEventIDs              []EventID       `json:"relatedEventIds"`
	SortEventTime                time.Time       `json:"sortEventTime"`
	SortEventID                  EventID         `json:"sortEventId"`
}

func (w *Workflow) Kind() ItemKind   { return w.Type }
func (w *Workflow) SortKey() SortKey { return SortKey{Time: w.SortEventTime, EventID: w.SortEventID} }
func (*Workflow) item()              {}

// Activity is one scheduled activity task, correlated by its scheduling
// event id rather than its business activity id.
type Activity struct {
	Type                         ItemKind        `json:"type"`
	ActivityID                   string          `json:"activityId"`
	ActivityType                 string          `json:"activityType,omitempty"`
	WorkflowID                   string          `json:"workflowId"`
	WorkflowRunID                string          `json:"workflowRunId"`
	Namespace                    string          `json:"namespace,omitempty"`
	Status                       Status          `json:"status"`
	ScheduleTime                 time.Time       `json:"scheduleTime"`
	StartTime                    time.Time       `json:"startTime"`
	EndTime                      *time.Time      `json:"endTime,omitempty"`
	TaskQueue                    TaskQueue       `json:"taskQueue"`
	Input                        *string         `json:"input,omitempty"`
	Result                       *string         `json:"result,omitempty"`
	Failure                      *string         `json:"failure,omitempty"`
	Header                       json.RawMessage `json:"header,omitempty"`
	RetryPolicy                  *RetryPolicy    `json:"retryPolicy,omitempty"`
	HeartbeatTimeout             string          `json:"heartbeatTimeout,omitempty"`
	ScheduleToCloseTimeout       string          `json:"scheduleToCloseTimeout,omitempty"`
	ScheduleToStartTimeout       string          `json:"scheduleToStartTimeout,omitempty"`
	StartToCloseTimeout          string          `json:"startToCloseTimeout,omitempty"`
	Attempts                     int             `json:"attempts,omitempty"`
	RequestID                    string          `json:"requestId,omitempty"`
	Identity                     string          `json:"identity,omitempty"`
	WorkflowTaskCompletedEventID EventID         `json:"workflowTaskCompletedEventId,omitempty"`
	RelatedEventIDs              []EventID       `json:"relatedEventIds"`
	SortEventTime                time.Time       `json:"sortEventTime"`
	SortEventID                  EventID         `json:"sortEventId"`
}

func (a *Activity) Kind() ItemKind   { return KindActivity }
func (a *Activity) SortKey() SortKey { return SortKey{Time: a.SortEventTime, EventID: a.SortEventID} }
func (*Activity) item()              {}

// Timer is a durable timer, correlated by its business timer id.
type Timer struct {
	Type                         ItemKind   `json:"type"`
	TimerID                      string     `json:"timerId"`
	FireTime                     string     `json:"fireTime"`
	WorkflowID                   string     `json:"workflowId"`
	WorkflowRunID                string     `json:"workflowRunId"`
	Status                       Status     `json:"status"`
	StartTime                    time.Time  `json:"startTime"`
	EndTime                      *time.Time `json:"endTime,omitempty"`
	WorkflowTaskCompletedEventID EventID    `json:"workflowTaskCompletedEventId,omitempty"`
	RelatedEventIDs              []EventID  `json:"relatedEventIds"`
	SortEventTime                time.Time  `json:"sortEventTime"`
	SortEventID                  EventID    `json:"sortEventId"`
}

func (t *Timer) Kind() ItemKind   { return KindTimer }
func (t *Timer) SortKey() SortKey { return SortKey{Time: t.SortEventTime, EventID: t.SortEventID} }
func (*Timer) item()              {}

// Signal is a received signal. It never changes after creation.
type Signal struct {
	Type          ItemKind  `json:"type"`
	SignalID      EventID   `json:"signalId"`
	SignalName    string    `json:"signalName"`
	Input         *string   `json:"input,omitempty"`
	Identity      string    `json:"identity,omitempty"`
	WorkflowID    string    `json:"workflowId"`
	WorkflowRunID string    `json:"workflowRunId"`
	Status        Status    `json:"status"`
	StartTime     time.Time `json:"startTime"`
	SortEventTime time.Time `json:"sortEventTime"`
	SortEventID   EventID   `json:"sortEventId"`
}

func (s *Signal) Kind() ItemKind   { return KindSignal }
func (s *Signal) SortKey() SortKey { return SortKey{Time: s.SortEventTime, EventID: s.SortEventID} }
func (*Signal) item()              {}
