package job

import (
	"time"
)

// Status is the lifecycle state of a conversion job.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Running reports whether the job is with the AI service from the client's
// point of view. Clients poll until the status leaves this set.
func (s Status) Running() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Job tracks one conversion request end-to-end. InputRef is a logical locator
// for the source media; a non-file source is encoded with a tagged prefix
// (e.g. "youtube:<url>"). OutputRef is set only once the job completed; Error
// only once it failed.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	InputRef  string    `json:"inputReference"`
	OutputRef string    `json:"outputReference,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
