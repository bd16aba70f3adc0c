package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/storage"
)

// fakeExecutor 返回固定结果并记录输入
type fakeExecutor struct {
	run     *model.WorkflowRun
	err     error
	inputs  map[string]any
	timeout time.Duration
	calls   int
}

func (f *fakeExecutor) Execute(ctx context.Context, inputs map[string]any, timeout time.Duration) (*model.WorkflowRun, error) {
	f.calls++
	f.inputs = inputs
	f.timeout = timeout
	return f.run, f.err
}

func succeededRun(id string, outputs map[string]any) *model.WorkflowRun {
	start := time.Now().Add(-time.Second)
	return &model.WorkflowRun{
		ID:         id,
		WorkflowID: "wf",
		Status:     model.RunSucceeded,
		Outputs:    outputs,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Polls:      1,
	}
}

type fakeBusiness struct {
	resp  *model.BusinessResponse
	err   error
	query model.BusinessQuery
}

func (f *fakeBusiness) Process(ctx context.Context, q model.BusinessQuery) (*model.BusinessResponse, error) {
	f.query = q
	return f.resp, f.err
}

func newChatService(t *testing.T, exec *fakeExecutor, biz *fakeBusiness, selected string, store storage.RunStore) *ChatService {
	t.Helper()
	tr := adapter.NewTranslator(adapter.DefaultChunkRunes)
	backends := map[string]ChatBackend{
		"workflow":     NewWorkflowChatBackend(exec, tr, NewRecorder(store)),
		"business_api": NewBusinessChatBackend(biz, tr),
	}
	s, err := NewChatService(adapter.NewNormalizer("default"), tr, backends, selected)
	require.NoError(t, err)
	return s
}

func hiRequest(stream bool) model.ChatRequest {
	return model.ChatRequest{
		Model:    "m",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
		Stream:   stream,
	}
}

func TestChatServiceWorkflowBackend(t *testing.T) {
	store := storage.NewMemoryStorage(10)
	exec := &fakeExecutor{run: succeededRun("run-1", map[string]any{"text": "hello"})}
	s := newChatService(t, exec, &fakeBusiness{}, "workflow", store)

	resp, err := s.Complete(context.Background(), hiRequest(false))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, map[string]any{"querydata": "hi"}, exec.inputs)
	assert.Equal(t, "workflow", s.Backend())

	rec, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec.Content)
	assert.Equal(t, model.RunKindChat, rec.Kind)
	assert.InDelta(t, 1.0, rec.ProcessingTime, 0.01)
}

func TestChatServiceStream(t *testing.T) {
	exec := &fakeExecutor{run: succeededRun("run-1", map[string]any{"text": "hello"})}
	s := newChatService(t, exec, &fakeBusiness{}, "workflow", nil)

	resp, stream, err := s.Stream(context.Background(), hiRequest(true))
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)

	var got string
	var last model.StreamChunk
	for c := range stream.All() {
		got += c.Content
		last = c
	}
	assert.Equal(t, "hello", got)
	assert.Equal(t, "stop", last.FinishReason)
}

func TestChatServiceWorkflowFailures(t *testing.T) {
	tests := []struct {
		name string
		exec *fakeExecutor
		want error
	}{
		{"failed run", &fakeExecutor{run: &model.WorkflowRun{ID: "r", Status: model.RunFailed, Error: "bad"}}, apperr.ErrWorkflowFailed},
		{"timed out", &fakeExecutor{run: &model.WorkflowRun{ID: "r", Status: model.RunTimedOut}}, apperr.ErrWorkflowTimeout},
		{"network", &fakeExecutor{err: apperr.Network(errors.New("reset"), "poll")}, apperr.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage(10)
			s := newChatService(t, tt.exec, &fakeBusiness{}, "workflow", store)

			resp, err := s.Complete(context.Background(), hiRequest(false))
			assert.Nil(t, resp)
			assert.True(t, errors.Is(err, tt.want), "%v", err)

			if tt.exec.run != nil {
				rec, err := store.GetRun("r")
				require.NoError(t, err)
				assert.NotEmpty(t, rec.Error)
			}
		})
	}
}

func TestChatServiceMalformedNeverCallsBackend(t *testing.T) {
	exec := &fakeExecutor{}
	s := newChatService(t, exec, &fakeBusiness{}, "workflow", nil)

	_, err := s.Complete(context.Background(), model.ChatRequest{Model: "m"})
	assert.True(t, errors.Is(err, apperr.ErrMalformedRequest))
	assert.Equal(t, 0, exec.calls)
}

func TestChatServiceBusinessBackend(t *testing.T) {
	biz := &fakeBusiness{resp: &model.BusinessResponse{ResponseID: "resp-1", Content: []byte(`"hello"`)}}
	s := newChatService(t, &fakeExecutor{}, biz, "business_api", nil)

	resp, err := s.Complete(context.Background(), model.ChatRequest{
		Model:    "custom/my-model",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "my-model", biz.query.ModelInfo.Name)
	assert.Equal(t, model.ResponseTypeText, biz.query.ResponseType)
}

func TestNewChatServiceUnknownBackend(t *testing.T) {
	tr := adapter.NewTranslator(0)
	_, err := NewChatService(adapter.NewNormalizer(""), tr, map[string]ChatBackend{
		"workflow": NewWorkflowChatBackend(&fakeExecutor{}, tr, nil),
	}, "grpc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow")
}
