package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want EventID
	}{
		{"string", `"12"`, "12"},
		{"number", `12`, "12"},
		{"null", `null`, ""},
		{"large", `"9007199254740993"`, "9007199254740993"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var id EventID
			require.NoError(t, json.Unmarshal([]byte(tc.in), &id))
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestEventID_UnmarshalJSON_Invalid(t *testing.T) {
	var id EventID
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &id))
}

func TestEventID_IntIsNumeric(t *testing.T) {
	assert.Equal(t, int64(10), EventID("10").Int())
	assert.Equal(t, int64(0), EventID("abc").Int())
	assert.True(t, EventID("9").Int() < EventID("10").Int())
}

func TestHistoryEvent_Decode(t *testing.T) {
	raw := `{
		"eventId": "5",
		"eventTime": "2024-03-01T10:00:00.123Z",
		"eventType": "EVENT_TYPE_ACTIVITY_TASK_STARTED",
		"taskId": "1048601",
		"activityTaskStartedEventAttributes": {
			"scheduledEventId": "4",
			"identity": "worker@host",
			"requestId": "req-1",
			"attempt": 2
		}
	}`
	var ev HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Equal(t, EventID("5"), ev.EventID)
	assert.Equal(t, EventActivityTaskStarted, ev.EventType)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 123000000, time.UTC), ev.EventTime.UTC())
	require.NotNil(t, ev.ActivityTaskStarted)
	assert.Equal(t, EventID("4"), ev.ActivityTaskStarted.ScheduledEventID)
	assert.Equal(t, 2, ev.ActivityTaskStarted.Attempt)
	assert.Nil(t, ev.ActivityTaskScheduled)
}

func TestHistoryEvent_UnknownTypeDecodes(t *testing.T) {
	raw := `{"eventId":"9","eventTime":"2024-03-01T10:00:00Z","eventType":"EVENT_TYPE_WORKFLOW_EXECUTION_UPDATE_ACCEPTED","somethingNew":{"x":1}}`
	var ev HistoryEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, EventType("EVENT_TYPE_WORKFLOW_EXECUTION_UPDATE_ACCEPTED"), ev.EventType)
}

func TestHistoryEvent_TimerIDFor(t *testing.T) {
	fired := HistoryEvent{EventType: EventTimerFired, TimerFired: &TimerFiredAttributes{TimerID: "t1"}}
	id, ok := fired.TimerIDFor()
	assert.True(t, ok)
	assert.Equal(t, "t1", id)

	canceled := HistoryEvent{EventType: EventTimerCanceled, TimerCanceled: &TimerFiredAttributes{TimerID: "t2"}}
	id, ok = canceled.TimerIDFor()
	assert.True(t, ok)
	assert.Equal(t, "t2", id)

	legacy := HistoryEvent{EventType: EventTimerCanceled, TimerFired: &TimerFiredAttributes{TimerID: "t3"}}
	id, ok = legacy.TimerIDFor()
	assert.True(t, ok)
	assert.Equal(t, "t3", id)

	bare := HistoryEvent{EventType: EventTimerCanceled}
	_, ok = bare.TimerIDFor()
	assert.False(t, ok)

	started := HistoryEvent{EventType: EventTimerStarted, TimerFired: &TimerFiredAttributes{TimerID: "t4"}}
	_, ok = started.TimerIDFor()
	assert.False(t, ok)
}

func TestSortKey_Less(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := SortKey{Time: t0, EventID: "9"}
	b := SortKey{Time: t0, EventID: "10"}
	c := SortKey{Time: t0.Add(time.Millisecond), EventID: "2"}

	assert.True(t, a.Less(b), "numeric tie-break")
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c), "time dominates id")
	assert.False(t, a.Less(a))
}

func TestItemKinds(t *testing.T) {
	var items []Item = []Item{
		&Workflow{Type: KindWorkflow},
		&Workflow{Type: KindChildWorkflow},
		&Activity{Type: KindActivity},
		&Timer{Type: KindTimer},
		&Signal{Type: KindSignal},
	}
	want := []ItemKind{KindWorkflow, KindChildWorkflow, KindActivity, KindTimer, KindSignal}
	for i, it := range items {
		assert.Equal(t, want[i], it.Kind())
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusTimedOut, StatusCanceled, StatusTerminated} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []Status{StatusRunning, StatusScheduled, StatusStarted, StatusFired, StatusUnknown} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestError_IsMatchesCode(t *testing.T) {
	sentinel := NewError(ErrCodeMissingRootEvent, "missing")
	err := fmt.Errorf("parse: %w", NewError(ErrCodeMissingRootEvent, "no start event in 3 events"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, NewError(ErrCodeUpstream, "x")))
	assert.Equal(t, ErrCodeMissingRootEvent, CodeOf(err))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestError_IsRetryable(t *testing.T) {
	assert.True(t, NewError(ErrCodeUpstream, "x").WithStatus(503).IsRetryable())
	assert.True(t, NewError(ErrCodeUpstream, "x").WithStatus(429).IsRetryable())
	assert.True(t, NewError(ErrCodeUpstream, "x").IsRetryable())
	assert.False(t, NewError(ErrCodeUpstream, "x").WithStatus(404).IsRetryable())
	assert.False(t, NewError(ErrCodeValidation, "x").IsRetryable())
}

func TestError_Format(t *testing.T) {
	assert.Equal(t, "[NOT_FOUND] gone", NewError(ErrCodeNotFound, "gone").Error())
	assert.Equal(t, "[UPSTREAM_ERROR] boom (status 502)", NewError(ErrCodeUpstream, "boom").WithStatus(502).Error())

	cause := errors.New("root cause")
	assert.ErrorIs(t, NewError(ErrCodeStore, "wrap").WithCause(cause), cause)
}
