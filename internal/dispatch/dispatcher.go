package dispatch

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder applies the two possible outcomes of a dispatch attempt.
// Implemented by the job lifecycle.
type Recorder interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkDispatchFailed(ctx context.Context, jobID string) error
}

// Submitter hands one request to the AI service.
type Submitter interface {
	Submit(ctx context.Context, jobID, inputRef string) error
}

type task struct {
	jobID    string
	inputRef string
}

// Dispatcher runs a fixed pool of workers that hand queued jobs to the AI
// service. Every dequeued task records exactly one outcome: processing on
// acceptance, failed on transport error. Nothing is retried here.
type Dispatcher struct {
	client  Submitter
	rec     Recorder
	workers int
	tasks   chan task
	wg      sync.WaitGroup
}

func NewDispatcher(client Submitter, rec Recorder, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		client:  client,
		rec:     rec,
		workers: workers,
		tasks:   make(chan task, 256),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
}

// Enqueue schedules a dispatch attempt. Returns before the attempt happens.
func (d *Dispatcher) Enqueue(jobID, inputRef string) {
	d.tasks <- task{jobID: jobID, inputRef: inputRef}
}

// Stop drains queued tasks and waits for in-flight attempts to record their
// outcome.
func (d *Dispatcher) Stop() {
	close(d.tasks)
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for t := range d.tasks {
		ctx := context.Background()

		if err := d.client.Submit(ctx, t.jobID, t.inputRef); err != nil {
			slog.Error("dispatch to AI service failed", "job_id", t.jobID, "error", err)
			if recErr := d.rec.MarkDispatchFailed(ctx, t.jobID); recErr != nil {
				slog.Error("failed to record dispatch failure", "job_id", t.jobID, "error", recErr)
			}
			continue
		}

		if err := d.rec.MarkProcessing(ctx, t.jobID); err != nil {
			slog.Error("failed to record dispatch acceptance", "job_id", t.jobID, "error", err)
		} else {
			slog.Info("job dispatched to AI service", "job_id", t.jobID)
		}
	}
}
