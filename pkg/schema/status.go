package schema

// Status is the human-facing state of a reconstructed item.
type Status string

const (
	StatusRunning    Status = "Running"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusTimedOut   Status = "TimedOut"
	StatusCanceled   Status = "Canceled"
	StatusTerminated Status = "Terminated"
	StatusScheduled  Status = "Scheduled"
	StatusStarted    Status = "Started"
	StatusFired      Status = "Fired"
	StatusReceived   Status = "Received"
	StatusUnknown    Status = "Unknown"
)

// IsTerminal reports whether the status closes a workflow run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusCanceled, StatusTerminated:
		return true
	default:
		return false
	}
}
