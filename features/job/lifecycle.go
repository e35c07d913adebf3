package job

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"scorio/backend/internal/config"
)

// DispatchFailedMessage is the fixed diagnostic recorded when a job could not
// be handed to the AI service.
const DispatchFailedMessage = "failed to dispatch to AI service"

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// Event is emitted on every applied state transition. Advisory only; consumers
// must treat the job record as the source of truth.
type Event struct {
	JobID     string    `json:"jobId"`
	Status    Status    `json:"status"`
	OutputRef string    `json:"outputReference,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Lifecycle is the single writer of job state. Every component that needs to
// move a job forward goes through here, so transitions stay atomic per id and
// each one produces at most one event.
type Lifecycle struct {
	repo Repository
	pub  EventPublisher
}

func NewLifecycle(repo Repository, pub EventPublisher) *Lifecycle {
	return &Lifecycle{repo: repo, pub: pub}
}

// AttachInput records the uploaded input reference, moving the job from
// uploading to queued. Returns false if the job was not in uploading.
func (l *Lifecycle) AttachInput(ctx context.Context, id, inputRef string) (bool, error) {
	ok, err := l.repo.SetInput(ctx, id, inputRef)
	if err != nil {
		return false, err
	}
	if ok {
		l.publish(ctx, Event{JobID: id, Status: StatusQueued})
	}
	return ok, nil
}

// MarkProcessing records that the AI service accepted the dispatch request.
func (l *Lifecycle) MarkProcessing(ctx context.Context, id string) error {
	ok, err := l.repo.MarkProcessing(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		// A callback beat the dispatch worker to the row; nothing to do.
		slog.InfoContext(ctx, "job left queued before dispatch was recorded", "job_id", id)
		return nil
	}
	l.publish(ctx, Event{JobID: id, Status: StatusProcessing})
	return nil
}

// MarkDispatchFailed terminates a job whose dispatch never reached the AI
// service. Absorbs the race against a terminal callback.
func (l *Lifecycle) MarkDispatchFailed(ctx context.Context, id string) error {
	_, err := l.Fail(ctx, id, DispatchFailedMessage)
	return err
}

// Complete moves a running job to completed with its output reference.
// Returns false if the job was not in a running state.
func (l *Lifecycle) Complete(ctx context.Context, id, outputRef string) (bool, error) {
	ok, err := l.repo.Complete(ctx, id, outputRef)
	if err != nil {
		return false, err
	}
	if ok {
		l.publish(ctx, Event{JobID: id, Status: StatusCompleted, OutputRef: outputRef})
	}
	return ok, nil
}

// Fail moves a non-terminal job to failed with the given message.
func (l *Lifecycle) Fail(ctx context.Context, id, message string) (bool, error) {
	ok, err := l.repo.Fail(ctx, id, message)
	if err != nil {
		return false, err
	}
	if ok {
		l.publish(ctx, Event{JobID: id, Status: StatusFailed, Error: message})
	}
	return ok, nil
}

func (l *Lifecycle) publish(ctx context.Context, ev Event) {
	if l.pub == nil {
		return
	}
	ev.At = time.Now().UTC()
	payload, _ := json.Marshal(ev)
	if err := l.pub.Publish(config.TopicJobEvents, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish job event", "job_id", ev.JobID, "status", ev.Status, "error", err)
	}
}
