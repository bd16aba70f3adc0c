package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/config"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChat struct {
	content string
	err     error
	got     model.ChatRequest
	block   chan struct{}
}

func (f *fakeChat) Complete(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	f.got = req
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.ChatResponse{
		ResponseID:   "chatcmpl-test",
		Model:        req.Model,
		Content:      f.content,
		Timestamp:    1700000000,
		FinishReason: model.FinishReasonStop,
	}, nil
}

func (f *fakeChat) Stream(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, *adapter.ChunkStream, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp, adapter.NewChunkStream(resp.Content, adapter.DefaultChunkRunes), nil
}

type fakeImages struct {
	res *model.ImageResult
	err error
}

func (f *fakeImages) Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error) {
	return f.res, f.err
}

type fakeBackend struct {
	content string
	err     error
}

func (f *fakeBackend) Name() string { return "workflow" }

func (f *fakeBackend) Complete(ctx context.Context, q model.BusinessQuery) (*model.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.ChatResponse{Content: f.content}, nil
}

type fakeProbe bool

func (p fakeProbe) Health(ctx context.Context) bool { return bool(p) }

type fixture struct {
	chat   *fakeChat
	images *fakeImages
	store  *storage.MemoryStorage
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chat:   &fakeChat{content: "hello"},
		images: &fakeImages{},
		store:  storage.NewMemoryStorage(10),
	}
	cfg := config.Config{
		Chat:    config.ChatConfig{Backend: "workflow"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	custom := NewCustomHandler(f.chat, f.images)
	f.router = NewRouter(cfg, Handlers{
		OpenAI:   NewOpenAIHandler(custom, adapter.NewTranslator(0), []string{"my-custom-model"}),
		Business: NewBusinessHandler(&fakeBackend{content: "hello"}, []string{"my-custom-model"}),
		Runs:     NewRunHandler(f.store),
		Health:   NewHealthHandler(fakeProbe(false), "workflow"),
	})
	return f
}

func (f *fixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestChatCompletionsSync(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp openai.ChatCompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, "hi", f.chat.got.Messages[0].Content)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestChatCompletionsWithoutV1Prefix(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`, RequestIDHeader, "req-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestChatCompletionsStreaming(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/v1/chat/completions", `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var frames []string
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		if line, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			frames = append(frames, line)
		}
	}
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, "[DONE]", frames[len(frames)-1])

	var text string
	var last openai.ChatCompletionStreamResponse
	for i, frame := range frames[:len(frames)-1] {
		var chunk openai.ChatCompletionStreamResponse
		require.NoError(t, json.Unmarshal([]byte(frame), &chunk))
		if i == 0 {
			assert.Equal(t, "assistant", chunk.Choices[0].Delta.Role)
		}
		text += chunk.Choices[0].Delta.Content
		last = chunk
	}
	assert.Equal(t, "hello", text)
	assert.Equal(t, openai.FinishReasonStop, last.Choices[0].FinishReason)
	assert.Empty(t, last.Choices[0].Delta.Content)
}

func TestChatCompletionsErrorEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		wantCode int
		wantType string
	}{
		{"malformed body", nil, `{"messages":`, http.StatusBadRequest, "invalid_request_error"},
		{"workflow failed", apperr.WorkflowFailed("run-9", "node crashed"), "", http.StatusBadGateway, "upstream_error"},
		{"workflow timeout", apperr.WorkflowTimeout("run-9"), "", http.StatusGatewayTimeout, "upstream_error"},
		{"upstream unavailable", apperr.UpstreamUnavailable(errors.New("refused"), "submit"), "", http.StatusServiceUnavailable, "upstream_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.chat.err = tt.err
			body := tt.body
			if body == "" {
				body = `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
			}

			w := f.do(http.MethodPost, "/v1/chat/completions", body)
			assert.Equal(t, tt.wantCode, w.Code)

			var env openai.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantType, env.Error.Type)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestChatStreamingErrorIsJSON(t *testing.T) {
	f := newFixture(t)
	f.chat.err = apperr.WorkflowTimeout("run-1")

	w := f.do(http.MethodPost, "/v1/chat/completions", `{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "run-1", w.Header().Get("X-Workflow-Run-ID"))
	assert.NotContains(t, w.Body.String(), "data:")
}

func TestImageGenerations(t *testing.T) {
	f := newFixture(t)
	f.images.res = &model.ImageResult{
		Created: 1700000000,
		Images:  []model.ImageData{{URL: "https://img/1.png"}},
		Source:  model.ImageSourcePlaceholder,
	}

	w := f.do(http.MethodPost, "/v1/images/generations", `{"prompt":"a cat"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Image-Source"))
	assert.NotContains(t, w.Body.String(), "placeholder")
	for name := range w.Header() {
		assert.NotContains(t, strings.ToLower(w.Header().Get(name)), "placeholder", name)
	}

	var resp openai.ImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://img/1.png", resp.Data[0].URL)
}

func TestImageGenerationsErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/images/generations", `{"n":2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.images.err = apperr.ImageGeneration(errors.New("all providers failed"))
	w = f.do(http.MethodPost, "/images/generations", `{"prompt":"a cat"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "image_generation_failed")
}

func TestModels(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Object string         `json:"object"`
		Data   []openai.Model `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, "list", list.Object)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "my-custom-model", list.Data[0].ID)

	w = f.do(http.MethodGet, "/models", "")
	assert.JSONEq(t, `{"models":["my-custom-model"]}`, w.Body.String())
}

func TestBusinessProcess(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/process", `{"query":"hi","model_info":{"name":"m"},"response_type":"text"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.BusinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Regexp(t, `^resp-[0-9a-f]{10}$`, resp.ResponseID)
	text, err := resp.ContentText()
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	w = f.do(http.MethodPost, "/api/process", `{"query":"hi","model_info":{"name":"m"},"response_type":"json"}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.JSONEq(t, `{"message":"hello","type":"dify_workflow_response"}`, string(resp.Content))

	w = f.do(http.MethodPost, "/api/process", `{"model_info":{"name":"m"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBusinessProcessFailureAnswers200(t *testing.T) {
	h := NewBusinessHandler(&fakeBackend{err: apperr.WorkflowTimeout("run-1")}, nil)
	router := gin.New()
	router.POST("/api/process", h.Process)

	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader(`{"query":"hi","model_info":{"name":"m"}}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp model.BusinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	text, err := resp.ContentText()
	require.NoError(t, err)
	assert.Contains(t, text, "workflow_timeout")
}

func TestRuns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveRun(&model.RunRecord{
		ID:        "run-1",
		Kind:      model.RunKindChat,
		Status:    model.RunSucceeded,
		StartedAt: time.Now(),
	}))

	w := f.do(http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = f.do(http.MethodGet, "/api/runs/run-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/runs/missing", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/runs?limit=zero", "").Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = f.do(http.MethodGet, "/health?deep=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/v1/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`)

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "adapter_requests_total")
}
