package main

import (
	"fmt"
	"net/http"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/business"
	"github.com/slw-proton/litellm-adpter-dify/internal/config"
	"github.com/slw-proton/litellm-adpter-dify/internal/handler"
	"github.com/slw-proton/litellm-adpter-dify/internal/service"
	"github.com/slw-proton/litellm-adpter-dify/internal/storage"
	"github.com/slw-proton/litellm-adpter-dify/internal/workflow"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// app 组装好的依赖
type app struct {
	cfg      config.Config
	store    storage.RunStore
	dify     *workflow.Dify
	workflow *service.WorkflowChatBackend
	chat     *service.ChatService
	images   *service.ImageService
	custom   *handler.CustomHandler
}

func newApp(cfg config.Config) (*app, error) {
	store, err := storage.New(cfg.Storage.Type, cfg.Storage.DataDir, cfg.Storage.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	recorder := service.NewRecorder(store)

	pollOpts := workflow.Options{
		Timeout:         cfg.Workflow.Timeout,
		PollInterval:    cfg.Workflow.PollInterval,
		MaxPollAttempts: cfg.Workflow.MaxPollAttempts,
	}

	// 聊天工作流
	dify := workflow.NewDify(difyConfig(cfg, cfg.Dify.APIKey))
	chatClient := workflow.NewClient("chat", cfg.Dify.WorkflowID, dify, pollOpts, nil)

	translator := adapter.NewTranslator(cfg.Chat.StreamChunkRunes)
	workflowBackend := service.NewWorkflowChatBackend(chatClient, translator, recorder)
	businessBackend := service.NewBusinessChatBackend(business.NewClient(business.Config{
		BaseURL: cfg.Business.BaseURL,
		APIKey:  cfg.Business.APIKey,
		Timeout: cfg.Business.Timeout,
	}), translator)

	chat, err := service.NewChatService(
		adapter.NewNormalizer(cfg.Chat.DefaultModel),
		translator,
		map[string]service.ChatBackend{
			workflowBackend.Name(): workflowBackend,
			businessBackend.Name(): businessBackend,
		},
		cfg.Chat.Backend,
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	images := service.NewImageService(cfg, imageProviders(cfg, pollOpts, recorder), recorder)

	return &app{
		cfg:      cfg,
		store:    store,
		dify:     dify,
		workflow: workflowBackend,
		chat:     chat,
		images:   images,
		custom:   handler.NewCustomHandler(chat, images),
	}, nil
}

// imageProviders 图片工作流优先，LiteLLM 作为可选的第二来源
func imageProviders(cfg config.Config, pollOpts workflow.Options, recorder *service.Recorder) []service.ImageProvider {
	var providers []service.ImageProvider

	if cfg.Image.APIKey != "" {
		imageOpts := pollOpts
		imageOpts.Timeout = cfg.Image.Timeout
		remote := workflow.NewDify(difyConfig(cfg, cfg.Image.APIKey))
		client := workflow.NewClient("image", cfg.Image.WorkflowID, remote, imageOpts, nil)
		providers = append(providers, service.NewWorkflowImageProvider(client, workflow.ImageCredentials{
			APIKey:  cfg.Image.LLMAPIKey,
			BaseURL: cfg.Image.LLMBaseURL,
		}, cfg.Image.Timeout, recorder))
	} else {
		logger.Warn("DIFY_PPT_IMAGE_API_KEY 未配置，跳过图片工作流")
	}

	if cfg.Image.LiteLLMEnabled {
		providers = append(providers, service.NewLiteLLMImageProvider(service.LiteLLMConfig{
			BaseURL: cfg.Image.LLMBaseURL,
			APIKey:  cfg.Image.LLMAPIKey,
			Model:   cfg.Image.LiteLLMModel,
			Timeout: cfg.Image.Timeout,
		}))
	}
	return providers
}

func difyConfig(cfg config.Config, apiKey string) workflow.DifyConfig {
	return workflow.DifyConfig{
		BaseURL:      cfg.Dify.BaseURL,
		APIKey:       apiKey,
		ResponseMode: cfg.Dify.ResponseMode,
		User:         cfg.Dify.User,
		Timeout:      cfg.Dify.RequestTimeout,
	}
}

func (a *app) router() http.Handler {
	return handler.NewRouter(a.cfg, handler.Handlers{
		OpenAI:   handler.NewOpenAIHandler(a.custom, a.chat.Translator(), a.cfg.Chat.Models),
		Business: handler.NewBusinessHandler(a.workflow, a.cfg.Chat.Models),
		Runs:     handler.NewRunHandler(a.store),
		Health:   handler.NewHealthHandler(a.dify, a.chat.Backend()),
	})
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Errorf("关闭存储失败: %v", err)
	}
}
