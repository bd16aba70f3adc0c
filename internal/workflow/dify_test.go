package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

func newDifyServer(t *testing.T, mux *http.ServeMux) (*Dify, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewDify(DifyConfig{BaseURL: srv.URL + "/", APIKey: "app-key", Timeout: time.Second}), srv
}

func TestDifySubmit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workflows/run", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wf-1", body["workflow_id"])
		assert.Equal(t, "blocking", body["response_mode"])
		assert.Equal(t, "api-user", body["user"])
		assert.Equal(t, map[string]any{"querydata": "hi"}, body["inputs"])

		w.Write([]byte(`{"workflow_run_id":"run-1","task_id":"task-1","data":{"id":"run-1","status":"succeeded","outputs":{"text":"hello"}}}`))
	})
	d, _ := newDifyServer(t, mux)

	sub, err := d.Submit(context.Background(), "wf-1", map[string]any{"querydata": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "run-1", sub.RunID)
	assert.Equal(t, "task-1", sub.TaskID)
	assert.Equal(t, model.RunSucceeded, sub.Status)
	assert.Equal(t, "hello", sub.Outputs["text"])
}

func TestDifySubmitErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"server error is upstream unavailable", http.StatusBadGateway, apperr.ErrUpstreamUnavailable},
		{"client error is workflow failure", http.StatusBadRequest, apperr.ErrWorkflowFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /workflows/run", func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"code":"invalid_param"}`, tt.status)
			})
			d, _ := newDifyServer(t, mux)

			_, err := d.Submit(context.Background(), "wf-1", nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())

			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Contains(t, ae.Detail, "invalid_param")
		})
	}
}

func TestDifySubmitUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	d := NewDify(DifyConfig{BaseURL: addr, APIKey: "k", Timeout: time.Second})
	_, err := d.Submit(context.Background(), "wf-1", nil)

	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
}

func TestDifyStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /workflows/run/run-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run-1","status":"failed","outputs":null,"error":"node crashed","elapsed_time":1.2}`))
	})
	mux.HandleFunc("GET /workflows/run/run-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"run-2","status":"succeeded","outputs":"{\"text\":\"hi\"}","error":null}`))
	})
	mux.HandleFunc("GET /workflows/run/run-3", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	d, _ := newDifyServer(t, mux)

	r1, err := d.Status(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, r1.Status)
	assert.Equal(t, "node crashed", r1.Error)

	r2, err := d.Status(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, r2.Status)
	assert.Equal(t, "hi", r2.Outputs["text"])

	_, err = d.Status(context.Background(), "run-3")
	assert.Error(t, err)
}

func TestDifyStopUsesTaskID(t *testing.T) {
	hits := make(chan string, 2)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workflows/tasks/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "api-user", body["user"])
		hits <- r.PathValue("id")
		w.Write([]byte(`{"result":"success"}`))
	})
	d, _ := newDifyServer(t, mux)

	require.NoError(t, d.Stop(context.Background(), "run-1", "task-1"))
	require.NoError(t, d.Stop(context.Background(), "run-2", ""))

	assert.Equal(t, "task-1", <-hits)
	assert.Equal(t, "run-2", <-hits)
}

func TestDifyHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {})
	d, srv := newDifyServer(t, mux)
	assert.True(t, d.Health(context.Background()))

	srv.Close()
	assert.False(t, d.Health(context.Background()))
}
