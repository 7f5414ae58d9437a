package history

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func payloads(values ...string) *schema.Payloads {
	p := &schema.Payloads{}
	for _, v := range values {
		enc := base64.StdEncoding.EncodeToString([]byte(v))
		p.Payloads = append(p.Payloads, schema.Payload{Data: &enc})
	}
	return p
}

func started(id string, ts time.Time, workflowID string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventWorkflowExecutionStarted,
		WorkflowExecutionStarted: &schema.WorkflowExecutionStartedAttributes{
			WorkflowType: schema.NamedType{Name: "W"},
			WorkflowID:   workflowID,
			TaskQueue:    schema.TaskQueue{Name: "q"},
		},
	}
}

func completed(id string, ts time.Time, result string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventWorkflowExecutionCompleted,
		WorkflowExecutionCompleted: &schema.WorkflowExecutionCompletedAttributes{
			Result: payloads(result),
		},
	}
}

func activityScheduled(id string, ts time.Time, activityID string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventActivityTaskScheduled,
		ActivityTaskScheduled: &schema.ActivityTaskScheduledAttributes{
			ActivityID:   activityID,
			ActivityType: schema.NamedType{Name: "A"},
			TaskQueue:    schema.TaskQueue{Name: "q"},
		},
	}
}

func activityStarted(id string, ts time.Time, scheduled string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventActivityTaskStarted,
		ActivityTaskStarted: &schema.ActivityTaskStartedAttributes{
			ScheduledEventID: schema.EventID(scheduled),
			Attempt:          1,
			RequestID:        "req-" + id,
		},
	}
}

func activityCompleted(id string, ts time.Time, scheduled, result string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventActivityTaskCompleted,
		ActivityTaskCompleted: &schema.ActivityTaskCompletedAttributes{
			ScheduledEventID: schema.EventID(scheduled),
			Result:           payloads(result),
		},
	}
}

func timerStarted(id string, ts time.Time, timerID string) schema.HistoryEvent {
	return schema.HistoryEvent{
		EventID:   schema.EventID(id),
		EventTime: ts,
		EventType: schema.EventTimerStarted,
		TimerStarted: &schema.TimerStartedAttributes{
			TimerID:            timerID,
			StartToFireTimeout: "60s",
		},
	}
}

func loadFixture(t *testing.T, name string) []schema.HistoryEvent {
	t.Helper()
	raw, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	var doc struct {
		History struct {
			Events []schema.HistoryEvent `json:"events"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc.History.Events
}

func strPtr(s string) *string { return &s }
