package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/workflow"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// WorkflowExecutor 执行一次工作流直到终态
type WorkflowExecutor interface {
	Execute(ctx context.Context, inputs map[string]any, timeout time.Duration) (*model.WorkflowRun, error)
}

// BusinessProcessor 业务 API 客户端
type BusinessProcessor interface {
	Process(ctx context.Context, q model.BusinessQuery) (*model.BusinessResponse, error)
}

// ChatBackend 聊天后端，按名称静态注册
type ChatBackend interface {
	Name() string
	Complete(ctx context.Context, q model.BusinessQuery) (*model.ChatResponse, error)
}

// WorkflowChatBackend 查询 -> 工作流 -> 响应
type WorkflowChatBackend struct {
	executor   WorkflowExecutor
	translator *adapter.Translator
	recorder   *Recorder
}

func NewWorkflowChatBackend(executor WorkflowExecutor, translator *adapter.Translator, recorder *Recorder) *WorkflowChatBackend {
	return &WorkflowChatBackend{executor: executor, translator: translator, recorder: recorder}
}

func (b *WorkflowChatBackend) Name() string { return "workflow" }

func (b *WorkflowChatBackend) Complete(ctx context.Context, q model.BusinessQuery) (*model.ChatResponse, error) {
	run, err := b.executor.Execute(ctx, workflow.ChatInputs(q), 0)
	if err != nil {
		b.recorder.Record(model.RunKindChat, q.Query, run, "", err)
		return nil, err
	}

	resp, err := b.translator.FromRun(run, q.ModelInfo.Name)
	if err != nil {
		b.recorder.Record(model.RunKindChat, q.Query, run, "", err)
		return nil, err
	}
	b.recorder.Record(model.RunKindChat, q.Query, run, resp.Content, nil)
	return resp, nil
}

// BusinessChatBackend 查询 -> 业务 API -> 响应
type BusinessChatBackend struct {
	client     BusinessProcessor
	translator *adapter.Translator
}

func NewBusinessChatBackend(client BusinessProcessor, translator *adapter.Translator) *BusinessChatBackend {
	return &BusinessChatBackend{client: client, translator: translator}
}

func (b *BusinessChatBackend) Name() string { return "business_api" }

func (b *BusinessChatBackend) Complete(ctx context.Context, q model.BusinessQuery) (*model.ChatResponse, error) {
	q.ResponseType = model.ResponseTypeText
	resp, err := b.client.Process(ctx, q)
	if err != nil {
		return nil, err
	}
	return b.translator.FromBusiness(resp, q.ModelInfo.Name)
}

type ChatService struct {
	normalizer *adapter.Normalizer
	translator *adapter.Translator
	backend    ChatBackend
}

// NewChatService 从静态后端表中选出 selected
func NewChatService(normalizer *adapter.Normalizer, translator *adapter.Translator, backends map[string]ChatBackend, selected string) (*ChatService, error) {
	backend, ok := backends[selected]
	if !ok {
		names := make([]string, 0, len(backends))
		for name := range backends {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown chat backend %q (available: %s)", selected, strings.Join(names, ", "))
	}
	logger.Infof("聊天后端: %s", backend.Name())
	return &ChatService{
		normalizer: normalizer,
		translator: translator,
		backend:    backend,
	}, nil
}

func (s *ChatService) Backend() string {
	return s.backend.Name()
}

func (s *ChatService) Translator() *adapter.Translator {
	return s.translator
}

// Complete 规范化请求并调用后端，返回完整回答
func (s *ChatService) Complete(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	q, err := s.normalizer.Normalize(req)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logger.Fields{
		"model":   q.ModelInfo.Name,
		"backend": s.backend.Name(),
	}).Debugf("chat query: %d chars", len(q.Query))

	resp, err := s.backend.Complete(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream 等待完整回答后返回分片序列
func (s *ChatService) Stream(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, *adapter.ChunkStream, error) {
	resp, err := s.Complete(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return resp, s.translator.Stream(resp), nil
}
