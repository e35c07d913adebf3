package job

import (
	"context"
	"errors"
	"log/slog"
)

// ErrConflict is returned when a callback arrives for a job that is neither
// running nor terminal (e.g. still uploading).
var ErrConflict = errors.New("job state conflict")

// Dispatcher hands a queued job to the AI service out of band. Enqueue must
// return before the dispatch attempt completes.
type Dispatcher interface {
	Enqueue(jobID, inputRef string)
}

// Callback is a terminal outcome reported by the AI service.
type Callback struct {
	Status    Status
	OutputRef string
	Error     string
}

type Service struct {
	repo       Repository
	lifecycle  *Lifecycle
	dispatcher Dispatcher
}

func NewService(repo Repository, lifecycle *Lifecycle, dispatcher Dispatcher) *Service {
	return &Service{repo: repo, lifecycle: lifecycle, dispatcher: dispatcher}
}

// Create starts a new job. With a non-empty input reference the job is created
// queued and dispatch is attempted asynchronously; otherwise it is created
// uploading and the caller completes the upload out of band.
func (s *Service) Create(ctx context.Context, inputRef string) (*Job, error) {
	j := &Job{Status: StatusUploading, InputRef: inputRef}
	if inputRef != "" {
		j.Status = StatusQueued
	}

	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "job created", "job_id", j.ID, "status", j.Status)

	if j.Status == StatusQueued {
		s.dispatcher.Enqueue(j.ID, j.InputRef)
	}
	return j, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]Job, error) {
	return s.repo.List(ctx, limit)
}

// AttachInput completes the deferred-upload flow: the stored input reference is
// recorded, the job moves to queued, and dispatch is attempted. Returns
// sql.ErrNoRows via the repo if the job is unknown, ErrConflict if the job
// already left uploading.
func (s *Service) AttachInput(ctx context.Context, id, inputRef string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	ok, err := s.lifecycle.AttachInput(ctx, id, inputRef)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}

	s.dispatcher.Enqueue(id, inputRef)
	return nil
}

// FailInput records that a deferred upload could not deliver its input,
// moving the job to failed with the given reason. A job that already reached
// a terminal state is left untouched.
func (s *Service) FailInput(ctx context.Context, id, reason string) error {
	ok, err := s.lifecycle.Fail(ctx, id, reason)
	if err != nil {
		return err
	}
	if !ok {
		slog.InfoContext(ctx, "upload failure not recorded, job already terminal", "job_id", id)
	}
	return nil
}

// HandleCallback applies a terminal outcome reported by the AI service.
// Duplicate deliveries for an already-terminal job are accepted as no-ops; the
// first well-formed callback wins.
func (s *Service) HandleCallback(ctx context.Context, id string, cb Callback) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		slog.InfoContext(ctx, "duplicate callback ignored", "job_id", id, "status", j.Status)
		return nil
	}

	switch cb.Status {
	case StatusCompleted:
		ok, err := s.lifecycle.Complete(ctx, id, cb.OutputRef)
		if err != nil {
			return err
		}
		if !ok {
			return s.resolveLostRace(ctx, id)
		}
	case StatusFailed:
		message := cb.Error
		if message == "" {
			message = "AI processing failed"
		}
		ok, err := s.lifecycle.Fail(ctx, id, message)
		if err != nil {
			return err
		}
		if !ok {
			return s.resolveLostRace(ctx, id)
		}
	default:
		return ErrConflict
	}
	return nil
}

// resolveLostRace re-reads a job whose transition CAS did not apply. If a
// concurrent callback already made it terminal the delivery is idempotent;
// anything else (e.g. still uploading) is a genuine conflict.
func (s *Service) resolveLostRace(ctx context.Context, id string) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		slog.InfoContext(ctx, "concurrent callback already recorded", "job_id", id, "status", j.Status)
		return nil
	}
	return ErrConflict
}
