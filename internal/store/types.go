package store

import "time"

// Key identifies one workflow run.
type Key struct {
	Namespace  string
	WorkflowID string
	RunID      string
}

func (k Key) String() string {
	return k.Namespace + "/" + k.WorkflowID + "/" + k.RunID
}

// CachedHistory is a stored upstream document. Document is the JSON
// encoding of a temporal.WorkflowData.
type CachedHistory struct {
	Key
	Document   []byte
	EventCount int
	FetchedAt  time.Time
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	Entries     int64      `json:"entries"`
	TotalEvents int64      `json:"total_events"`
	Oldest      *time.Time `json:"oldest,omitempty"`
	Newest      *time.Time `json:"newest,omitempty"`
}
