// Package history rebuilds the entities of a workflow run (the run itself,
// its activities, timers and signals) from the run's raw event history.
package history

import (
	"encoding/json"
	"sort"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

// ErrMissingRootEvent is returned when a history has no workflow execution
// started event. Match it with errors.Is.
var ErrMissingRootEvent = schema.NewError(schema.ErrCodeMissingRootEvent, "workflow execution started event not found")

// Reconstruct turns an id-ordered event history into chronological items.
//
// The first item created is the root workflow; every other item is created
// by its scheduling or starting event and mutated in place by later events
// that reference it. Events that reference an unknown entity, or that lack
// the attributes their type implies, are skipped. The result is sorted by
// each item's creation time, then by numeric creation event id.
func Reconstruct(events []schema.HistoryEvent, namespace, runID string) ([]schema.Item, error) {
	root, err := rootWorkflow(events, namespace, runID)
	if err != nil {
		return nil, err
	}

	r := &reconstruction{
		namespace:  namespace,
		runID:      runID,
		root:       root,
		items:      make([]schema.Item, 0, len(events)/2+1),
		activities: make(map[schema.EventID]*schema.Activity),
		timers:     make(map[string]*schema.Timer),
	}
	r.items = append(r.items, root)

	for i := range events {
		r.apply(&events[i])
	}

	sort.SliceStable(r.items, func(i, j int) bool {
		return r.items[i].SortKey().Less(r.items[j].SortKey())
	})
	return r.items, nil
}

// reconstruction is the state of one Reconstruct call. Nothing in it
// outlives the call.
type reconstruction struct {
	namespace string
	runID     string

	root  *schema.Workflow
	items []schema.Item

	// activities is keyed by the id of the scheduling event.
	activities map[schema.EventID]*schema.Activity
	// timers is keyed by the business timer id.
	timers map[string]*schema.Timer
}

func (r *reconstruction) apply(ev *schema.HistoryEvent) {
	switch ev.EventType {
	case schema.EventWorkflowExecutionCompleted,
		schema.EventWorkflowExecutionFailed,
		schema.EventWorkflowExecutionTimedOut,
		schema.EventWorkflowExecutionCanceled,
		schema.EventWorkflowExecutionTerminated:
		r.closeWorkflow(ev)

	case schema.EventActivityTaskScheduled:
		r.scheduleActivity(ev)
	case schema.EventActivityTaskStarted:
		r.startActivity(ev)
	case schema.EventActivityTaskCompleted,
		schema.EventActivityTaskFailed,
		schema.EventActivityTaskTimedOut,
		schema.EventActivityTaskCanceled:
		r.closeActivity(ev)

	case schema.EventTimerStarted:
		r.startTimer(ev)
	case schema.EventTimerFired, schema.EventTimerCanceled:
		r.closeTimer(ev)

	case schema.EventWorkflowExecutionSignaled:
		r.receiveSignal(ev)
	}
}

func rootWorkflow(events []schema.HistoryEvent, namespace, runID string) (*schema.Workflow, error) {
	var start *schema.HistoryEvent
	for i := range events {
		if events[i].EventType == schema.EventWorkflowExecutionStarted {
			start = &events[i]
			break
		}
	}
	if start == nil || start.WorkflowExecutionStarted == nil {
		return nil, schema.NewErrorf(schema.ErrCodeMissingRootEvent,
			"workflow execution started event not found in %d events", len(events))
	}

	attrs := start.WorkflowExecutionStarted
	wf := &schema.Workflow{
		Type:                         schema.KindWorkflow,
		WorkflowID:                   attrs.WorkflowID,
		RunID:                        runID,
		WorkflowType:                 attrs.WorkflowType.Name,
		Namespace:                    namespace,
		Status:                       schema.StatusRunning,
		StartTime:                    start.EventTime,
		Input:                        DecodePayloads(attrs.Input.List()),
		TaskQueue:                    attrs.TaskQueue,
		Header:                       attrs.Header,
		Memo:                         attrs.Memo,
		SearchAttributes:             attrs.SearchAttributes,
		OriginalExecutionRunID:       attrs.OriginalExecutionRunID,
		FirstExecutionRunID:          attrs.FirstExecutionRunID,
		WorkflowRunTimeout:           attrs.WorkflowRunTimeout,
		WorkflowTaskTimeout:          attrs.WorkflowTaskTimeout,
		Attempts:                     attrs.Attempt,
		ParentWorkflowNamespace:      attrs.ParentWorkflowNamespace,
		WorkflowTaskCompletedEventID: start.EventID,
		RelatedEventIDs:              []schema.EventID{start.EventID},
		SortEventTime:                start.EventTime,
		SortEventID:                  start.EventID,
	}
	if p := attrs.ParentWorkflowExecution; p != nil {
		wf.ParentWorkflowID = p.WorkflowID
		wf.ParentWorkflowRunID = p.RunID
	}
	return wf, nil
}

// closeWorkflow applies a terminal workflow event to the root. A completed
// run carries its decoded result payloads; a failed run carries its whole
// failure attribute structure serialized as JSON.
func (r *reconstruction) closeWorkflow(ev *schema.HistoryEvent) {
	wf := r.root
	end := ev.EventTime
	wf.EndTime = &end
	wf.RelatedEventIDs = append(wf.RelatedEventIDs, ev.EventID)
	wf.Status = Classify(ev.EventType)

	switch ev.EventType {
	case schema.EventWorkflowExecutionCompleted:
		var result []schema.Payload
		if ev.WorkflowExecutionCompleted != nil {
			result = ev.WorkflowExecutionCompleted.Result.List()
		}
		wf.Result = DecodePayloads(result)
	case schema.EventWorkflowExecutionFailed:
		wf.Result = marshalString(ev.WorkflowExecutionFailed)
	}
}

func (r *reconstruction) scheduleActivity(ev *schema.HistoryEvent) {
	attrs := ev.ActivityTaskScheduled
	if attrs == nil {
		return
	}

	a := &schema.Activity{
		Type:                         schema.KindActivity,
		ActivityID:                   attrs.ActivityID,
		ActivityType:                 attrs.ActivityType.Name,
		WorkflowID:                   r.root.WorkflowID,
		WorkflowRunID:                r.runID,
		Namespace:                    r.namespace,
		Status:                       schema.StatusScheduled,
		ScheduleTime:                 ev.EventTime,
		StartTime:                    ev.EventTime,
		TaskQueue:                    attrs.TaskQueue,
		Input:                        DecodePayloads(attrs.Input.List()),
		Header:                       attrs.Header,
		RetryPolicy:                  attrs.RetryPolicy,
		HeartbeatTimeout:             attrs.HeartbeatTimeout,
		ScheduleToCloseTimeout:       attrs.ScheduleToCloseTimeout,
		ScheduleToStartTimeout:       attrs.ScheduleToStartTimeout,
		StartToCloseTimeout:          attrs.StartToCloseTimeout,
		WorkflowTaskCompletedEventID: attrs.WorkflowTaskCompletedEventID,
		RelatedEventIDs:              []schema.EventID{ev.EventID},
		SortEventTime:                ev.EventTime,
		SortEventID:                  ev.EventID,
	}
	r.activities[ev.EventID] = a
	r.items = append(r.items, a)
}

func (r *reconstruction) startActivity(ev *schema.HistoryEvent) {
	attrs := ev.ActivityTaskStarted
	if attrs == nil {
		return
	}
	a, ok := r.activities[attrs.ScheduledEventID]
	if !ok {
		return
	}

	a.Status = schema.StatusStarted
	a.StartTime = ev.EventTime
	a.Attempts = attrs.Attempt
	a.RequestID = attrs.RequestID
	a.Identity = attrs.Identity
	a.RelatedEventIDs = append(a.RelatedEventIDs, ev.EventID)
}

func (r *reconstruction) closeActivity(ev *schema.HistoryEvent) {
	var scheduledID schema.EventID
	switch {
	case ev.EventType == schema.EventActivityTaskCompleted && ev.ActivityTaskCompleted != nil:
		scheduledID = ev.ActivityTaskCompleted.ScheduledEventID
	case ev.EventType == schema.EventActivityTaskFailed && ev.ActivityTaskFailed != nil:
		scheduledID = ev.ActivityTaskFailed.ScheduledEventID
	case ev.EventType == schema.EventActivityTaskTimedOut && ev.ActivityTaskTimedOut != nil:
		scheduledID = ev.ActivityTaskTimedOut.ScheduledEventID
	case ev.EventType == schema.EventActivityTaskCanceled && ev.ActivityTaskCanceled != nil:
		scheduledID = ev.ActivityTaskCanceled.ScheduledEventID
	default:
		return
	}
	a, ok := r.activities[scheduledID]
	if !ok {
		return
	}

	end := ev.EventTime
	a.Status = Classify(ev.EventType)
	a.EndTime = &end
	a.RelatedEventIDs = append(a.RelatedEventIDs, ev.EventID)

	switch ev.EventType {
	case schema.EventActivityTaskCompleted:
		a.Result = DecodePayloads(ev.ActivityTaskCompleted.Result.List())
	case schema.EventActivityTaskFailed:
		a.Failure = marshalString(ev.ActivityTaskFailed.Failure)
	case schema.EventActivityTaskTimedOut:
		a.Failure = marshalString(ev.ActivityTaskTimedOut.Failure)
	case schema.EventActivityTaskCanceled:
		a.Result = DecodePayloads(ev.ActivityTaskCanceled.Details.List())
	}
}

func (r *reconstruction) startTimer(ev *schema.HistoryEvent) {
	attrs := ev.TimerStarted
	if attrs == nil {
		return
	}

	t := &schema.Timer{
		Type:                         schema.KindTimer,
		TimerID:                      attrs.TimerID,
		FireTime:                     attrs.StartToFireTimeout,
		WorkflowID:                   r.root.WorkflowID,
		WorkflowRunID:                r.runID,
		Status:                       schema.StatusStarted,
		StartTime:                    ev.EventTime,
		WorkflowTaskCompletedEventID: attrs.WorkflowTaskCompletedEventID,
		RelatedEventIDs:              []schema.EventID{ev.EventID},
		SortEventTime:                ev.EventTime,
		SortEventID:                  ev.EventID,
	}
	r.timers[attrs.TimerID] = t
	r.items = append(r.items, t)
}

func (r *reconstruction) closeTimer(ev *schema.HistoryEvent) {
	timerID, ok := ev.TimerIDFor()
	if !ok {
		return
	}
	t, ok := r.timers[timerID]
	if !ok {
		return
	}

	end := ev.EventTime
	t.Status = Classify(ev.EventType)
	t.EndTime = &end
	t.RelatedEventIDs = append(t.RelatedEventIDs, ev.EventID)
}

func (r *reconstruction) receiveSignal(ev *schema.HistoryEvent) {
	attrs := ev.WorkflowExecutionSignaled
	if attrs == nil {
		return
	}

	r.items = append(r.items, &schema.Signal{
		Type:          schema.KindSignal,
		SignalID:      ev.EventID,
		SignalName:    attrs.SignalName,
		Input:         DecodePayloads(attrs.Input.List()),
		Identity:      attrs.Identity,
		WorkflowID:    r.root.WorkflowID,
		WorkflowRunID: r.runID,
		Status:        schema.StatusReceived,
		StartTime:     ev.EventTime,
		SortEventTime: ev.EventTime,
		SortEventID:   ev.EventID,
	})
}

// marshalString serializes v as JSON. Absent values (nil pointers, empty
// raw messages) yield nil, as does anything that fails to encode.
func marshalString(v any) *string {
	switch x := v.(type) {
	case json.RawMessage:
		if len(x) == 0 {
			return nil
		}
	case *schema.WorkflowExecutionFailedAttributes:
		if x == nil {
			return nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}
