package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"scorio/backend/internal/app"
	"scorio/backend/internal/config"
)

func newTestApp(t *testing.T) (*app.App, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		ServerPort:             8081,
		StorageRoot:            t.TempDir(),
		MaxUploadSizeMB:        200,
		DispatchWorkers:        1,
		DispatchTimeoutSeconds: 1,
	}

	a, err := app.New(cfg, db, nil)
	require.NoError(t, err)
	return a, mock
}

func TestApp_Health(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestApp_CORSPreflight(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("OPTIONS", "/jobs", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestApp_CorrelationIDOnResponses(t *testing.T) {
	a, mock := newTestApp(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "status", "input_ref", "output_ref", "error", "created_at", "updated_at"}))

	req := httptest.NewRequest("GET", "/jobs", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestApp_CreateJobRoute(t *testing.T) {
	a, mock := newTestApp(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO jobs (status, input_ref) VALUES ($1, $2) RETURNING id, created_at, updated_at`)).
		WithArgs("uploading", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("new-id", now, now))

	req := httptest.NewRequest("POST", "/jobs", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "new-id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApp_ListJobsRoute(t *testing.T) {
	a, mock := newTestApp(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "status", "input_ref", "output_ref", "error", "created_at", "updated_at"}).
		AddRow("j-1", "completed", "in.wav", "output/j-1/score.xml", "", now, now)
	mock.ExpectQuery("SELECT .* FROM jobs ORDER BY created_at DESC").
		WithArgs(50).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/jobs", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outputReference":"output/j-1/score.xml"`)
}

func TestApp_ResultRouteRejectsTraversal(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/results?path=..%2F..%2Fetc%2Fpasswd", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApp_Run_ShutsDownCleanly(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		ServerPort:             0,
		StorageRoot:            t.TempDir(),
		MaxUploadSizeMB:        1,
		DispatchWorkers:        1,
		DispatchTimeoutSeconds: 1,
	}
	a, err := app.New(cfg, db, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after shutdown")
	}
}

func TestApp_UnknownRoute(t *testing.T) {
	a, _ := newTestApp(t)

	req := httptest.NewRequest("GET", "/nope", nil)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
