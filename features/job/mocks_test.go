package job_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"scorio/backend/features/job"
)

// MockRepo implements job.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context, limit int) ([]job.Job, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}

func (m *MockRepo) SetInput(ctx context.Context, id, inputRef string) (bool, error) {
	args := m.Called(ctx, id, inputRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) Complete(ctx context.Context, id, outputRef string) (bool, error) {
	args := m.Called(ctx, id, outputRef)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) Fail(ctx context.Context, id, message string) (bool, error) {
	args := m.Called(ctx, id, message)
	return args.Bool(0), args.Error(1)
}

// MockPublisher records published topics
type MockPublisher struct {
	mu     sync.Mutex
	Topics []string
	Bodies [][]byte
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Topics = append(m.Topics, topic)
	m.Bodies = append(m.Bodies, body)
	return nil
}

func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Topics)
}

// MockDispatcher records enqueued jobs
type MockDispatcher struct {
	mu      sync.Mutex
	Entries []string
}

func (m *MockDispatcher) Enqueue(jobID, inputRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, jobID+"|"+inputRef)
}

func (m *MockDispatcher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}
