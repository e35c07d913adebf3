package upload_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"scorio/backend/features/upload"
)

type fakeAdvancer struct {
	calls []string
	fails []string
	err   error
}

func (f *fakeAdvancer) AttachInput(ctx context.Context, id, inputRef string) error {
	f.calls = append(f.calls, id+"|"+inputRef)
	return f.err
}

func (f *fakeAdvancer) FailInput(ctx context.Context, id, reason string) error {
	f.fails = append(f.fails, id+"|"+reason)
	return f.err
}

// brokenReader fails mid-stream, like a client that went away.
type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func newTestHandler(t *testing.T, advancer *fakeAdvancer) (*upload.Handler, *upload.Hub) {
	hub := upload.NewHub()
	ingestor := upload.NewIngestor(t.TempDir(), hub)
	return upload.NewHandler(ingestor, advancer, hub, 200), hub
}

func TestHandler_Upload(t *testing.T) {
	advancer := &fakeAdvancer{}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav", strings.NewReader("bytes"))
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["inputReference"], "/storage/input/"))
	assert.Empty(t, advancer.calls, "no jobId supplied, nothing to advance")
}

func TestHandler_Upload_MissingFilename(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeAdvancer{})

	req := httptest.NewRequest("POST", "/jobs/upload", strings.NewReader("bytes"))
	w := httptest.NewRecorder()

	handler.Upload(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Upload_AdvancesJob(t *testing.T) {
	advancer := &fakeAdvancer{}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav&jobId=j-1", strings.NewReader("bytes"))
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, advancer.calls, 1)
	assert.True(t, strings.HasPrefix(advancer.calls[0], "j-1|/storage/input/"))
}

func TestHandler_Upload_AdvanceFailureStillStoresFile(t *testing.T) {
	advancer := &fakeAdvancer{err: sql.ErrNoRows}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav&jobId=ghost", strings.NewReader("bytes"))
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["inputReference"])
}

func TestHandler_Upload_AdvanceErrorStillStoresFile(t *testing.T) {
	advancer := &fakeAdvancer{err: errors.New("db down")}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav&jobId=j-2", strings.NewReader("bytes"))
	w := httptest.NewRecorder()

	handler.Upload(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandler_Upload_IngestFailureFailsJob(t *testing.T) {
	advancer := &fakeAdvancer{}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav&jobId=j-7", brokenReader{})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, advancer.calls)
	require.Len(t, advancer.fails, 1)
	assert.Equal(t, "j-7|upload failed", advancer.fails[0])
}

func TestHandler_Upload_IngestFailureWithoutJobID(t *testing.T) {
	advancer := &fakeAdvancer{}
	handler, _ := newTestHandler(t, advancer)

	req := httptest.NewRequest("POST", "/jobs/upload?filename=song.wav", brokenReader{})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, advancer.fails, "no job to fail")
}

func TestHandler_Progress_StreamsAndClosesAt100(t *testing.T) {
	handler, hub := newTestHandler(t, &fakeAdvancer{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := httptest.NewRequest("GET", "/jobs/j-1/progress", nil).WithContext(ctx)
	req.SetPathValue("id", "j-1")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Progress(w, req)
		close(done)
	}()

	// The subscriber registers asynchronously; keep publishing until the
	// terminal update lands.
	for {
		select {
		case <-done:
			body := w.Body.String()
			assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
			assert.Contains(t, body, "event: progress")
			assert.Contains(t, body, "data: 100")
			return
		case <-ctx.Done():
			t.Fatal("progress stream did not close after 100%")
		default:
			hub.Publish("j-1", 100)
			time.Sleep(5 * time.Millisecond)
		}
	}
}
