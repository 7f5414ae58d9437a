package validation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/temporal-mcp/pkg/schema"
)

func newValidator(t *testing.T) *HistoryValidator {
	t.Helper()
	v, err := NewHistoryValidator()
	require.NoError(t, err)
	return v
}

func TestNewHistoryValidator(t *testing.T) {
	v := newValidator(t)
	assert.NotNil(t, v.pageSchema)
	assert.NotNil(t, v.eventSchema)
}

func TestValidatePage_Valid(t *testing.T) {
	v := newValidator(t)

	page := `{
		"history": {"events": [
			{"eventId": "1", "eventTime": "2024-05-01T12:00:00Z", "eventType": "EVENT_TYPE_WORKFLOW_EXECUTION_STARTED"},
			{"eventId": 2, "eventTime": "2024-05-01T12:00:01.5Z", "eventType": "EVENT_TYPE_ACTIVITY_TASK_STARTED",
			 "activityTaskStartedEventAttributes": {"scheduledEventId": "1"}}
		]},
		"nextPageToken": "CAEQAQ=="
	}`

	report, err := v.ValidatePage([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, 2, report.EventCount)
	assert.Equal(t, "CAEQAQ==", report.NextPageToken)
	assert.Empty(t, report.Issues.Warnings)
}

func TestValidatePage_NullTokenAndEmptyHistory(t *testing.T) {
	v := newValidator(t)

	report, err := v.ValidatePage([]byte(`{"history": {}, "nextPageToken": null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, report.EventCount)
	assert.Equal(t, "", report.NextPageToken)
}

func TestValidatePage_Invalid(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"not json", `{"history":`, "not valid JSON"},
		{"missing history", `{"events": []}`, "history"},
		{"history not an object", `{"history": []}`, "/history"},
		{"events not an array", `{"history": {"events": {}}}`, "/history/events"},
		{"numeric token", `{"history": {}, "nextPageToken": 7}`, "/nextPageToken"},
	}
	v := newValidator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidatePage([]byte(tc.page))
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
			assert.Contains(t, err.Error()+detailsText(err), tc.want)
		})
	}
}

func TestValidatePage_EventViolationsAreWarnings(t *testing.T) {
	tests := []struct {
		name   string
		event  string
		wantAt string
		wantID schema.EventID
	}{
		{"missing eventType", `{"eventId": "1"}`, "/history/events/1", "1"},
		{"non numeric id", `{"eventId": "abc", "eventType": "X"}`, "/history/events/1/eventId", "abc"},
		{"bad time", `{"eventId": "4", "eventType": "EVENT_TYPE_MARKER_RECORDED", "eventTime": "yesterday"}`, "/history/events/1/eventTime", "4"},
		{"bad scheduled ref", `{"eventId": "3", "eventType": "EVENT_TYPE_ACTIVITY_TASK_COMPLETED",
			"activityTaskCompletedEventAttributes": {"scheduledEventId": true}}`, "/history/events/1/activityTaskCompletedEventAttributes/scheduledEventId", "3"},
		{"not an object", `"oops"`, "/history/events/1", ""},
	}
	v := newValidator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			page := `{"history": {"events": [
				{"eventId": "1", "eventType": "EVENT_TYPE_WORKFLOW_EXECUTION_STARTED"},` + tc.event + `]}}`

			report, err := v.ValidatePage([]byte(page))
			require.NoError(t, err)
			assert.Equal(t, 2, report.EventCount)
			require.True(t, report.Issues.Valid())
			require.NotEmpty(t, report.Issues.Warnings)

			var paths []string
			for _, w := range report.Issues.Warnings {
				paths = append(paths, w.Path)
				assert.Equal(t, tc.wantID, w.EventID)
				assert.Equal(t, schema.SeverityWarning, w.Severity)
			}
			assert.Contains(t, paths, tc.wantAt)
		})
	}
}

func TestValidatePage_TimerCancelWarnings(t *testing.T) {
	v := newValidator(t)

	page := `{"history": {"events": [
		{"eventId": "2", "eventType": "EVENT_TYPE_TIMER_STARTED", "timerStartedEventAttributes": {"timerId": "t"}},
		{"eventId": "3", "eventType": "EVENT_TYPE_TIMER_CANCELED", "timerCanceledEventAttributes": {"timerId": "t"}},
		{"eventId": "4", "eventType": "EVENT_TYPE_TIMER_CANCELED", "timerFiredEventAttributes": {"timerId": "t"}},
		{"eventId": "5", "eventType": "EVENT_TYPE_TIMER_CANCELED"}
	]}}`

	report, err := v.ValidatePage([]byte(page))
	require.NoError(t, err)
	require.True(t, report.Issues.Valid())
	require.Len(t, report.Issues.Warnings, 2)

	assert.Equal(t, schema.EventID("4"), report.Issues.Warnings[0].EventID)
	assert.Equal(t, "/history/events/2", report.Issues.Warnings[0].Path)
	assert.Contains(t, report.Issues.Warnings[0].Message, "fired shape")
	assert.Equal(t, schema.EventID("5"), report.Issues.Warnings[1].EventID)
}

func TestValidatePage_Concurrent(t *testing.T) {
	v := newValidator(t)
	page := []byte(`{"history": {"events": [{"eventId": "1", "eventType": "EVENT_TYPE_WORKFLOW_EXECUTION_STARTED"}]}}`)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.ValidatePage(page)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

// detailsText renders the violation paths carried in an error's details.
func detailsText(err error) string {
	var out string
	if e, ok := err.(*schema.Error); ok {
		if issues, ok := e.Details["errors"].([]schema.ValidationIssue); ok {
			for _, is := range issues {
				out += " " + is.Path + ": " + is.Message
			}
		}
	}
	return out
}
