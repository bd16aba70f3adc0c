package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/config"
	"github.com/slw-proton/litellm-adpter-dify/internal/metrics"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/workflow"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// ImageProvider 一个真实的图片来源
type ImageProvider interface {
	Source() model.ImageSource
	Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error)
}

// WorkflowImageProvider 通过图片工作流生成
type WorkflowImageProvider struct {
	executor WorkflowExecutor
	creds    workflow.ImageCredentials
	timeout  time.Duration
	recorder *Recorder
}

func NewWorkflowImageProvider(executor WorkflowExecutor, creds workflow.ImageCredentials, timeout time.Duration, recorder *Recorder) *WorkflowImageProvider {
	return &WorkflowImageProvider{executor: executor, creds: creds, timeout: timeout, recorder: recorder}
}

func (p *WorkflowImageProvider) Source() model.ImageSource { return model.ImageSourceWorkflow }

func (p *WorkflowImageProvider) Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error) {
	run, err := p.executor.Execute(ctx, workflow.ImageInputs(req, p.creds), p.timeout)
	if err != nil {
		p.recorder.Record(model.RunKindImage, req.Prompt, run, "", err)
		return nil, err
	}
	if err := adapter.RunError(run); err != nil {
		p.recorder.Record(model.RunKindImage, req.Prompt, run, "", err)
		return nil, err
	}

	content, err := workflow.OutputText(run)
	if err != nil {
		p.recorder.Record(model.RunKindImage, req.Prompt, run, "", err)
		return nil, err
	}
	p.recorder.Record(model.RunKindImage, req.Prompt, run, content, nil)

	images := normalizeImages(extractImages(content), req.ResponseFormat, req.N)
	if len(images) == 0 {
		e := apperr.New(apperr.KindWorkflowFailed, "workflow content contains no %s images", req.ResponseFormat)
		e.RunID = run.ID
		return nil, e
	}
	return &model.ImageResult{
		Format: req.ResponseFormat,
		Images: images,
		Source: model.ImageSourceWorkflow,
		RunID:  run.ID,
	}, nil
}

// ImageService 依次尝试各个图片来源，全部失败后按环境策略决定是否使用占位图
type ImageService struct {
	providers       []ImageProvider
	fallbackAllowed bool
	mockBaseURL     string
	defaultModel    string
	recorder        *Recorder
	now             func() time.Time
}

// NewImageService 回退策略在这里一次性确定：生产环境永远不使用占位图
func NewImageService(cfg config.Config, providers []ImageProvider, recorder *Recorder) *ImageService {
	s := &ImageService{
		providers:       providers,
		fallbackAllowed: cfg.FallbackAllowed(),
		mockBaseURL:     cfg.Image.MockBaseURL,
		defaultModel:    cfg.Image.LiteLLMModel,
		recorder:        recorder,
		now:             time.Now,
	}
	if cfg.IsProduction() && cfg.Image.FallbackEnabled {
		logger.Warnf("生产环境 (%s) 忽略 IMAGE_MOCK_FALLBACK_ENABLED", cfg.Environment)
	}
	return s
}

func (s *ImageService) Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error) {
	req = req.WithDefaults()
	if req.Prompt == "" {
		return nil, apperr.MalformedRequest("prompt must not be empty")
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	var errs []error
	for _, p := range s.providers {
		res, err := p.Generate(ctx, req)
		if err == nil {
			res.Created = s.now().Unix()
			res.Model = req.Model
			metrics.ImageResultsTotal.WithLabelValues(string(res.Source)).Inc()
			logger.WithFields(logger.Fields{
				"source": res.Source,
				"count":  len(res.Images),
				"format": res.Format,
			}).Info("图片生成成功")
			return res, nil
		}
		logger.WithFields(logger.Fields{"source": p.Source()}).Errorf("图片生成失败: %v", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Source(), err))
	}

	cause := errors.Join(errs...)
	if cause == nil {
		cause = errors.New("no image provider configured")
	}

	if !s.fallbackAllowed {
		metrics.ImageResultsTotal.WithLabelValues("error").Inc()
		return nil, apperr.ImageGeneration(cause)
	}

	logger.Warnf("使用占位图回退: n=%d format=%s", req.N, req.ResponseFormat)
	var ae *apperr.Error
	if errors.As(cause, &ae) {
		s.recorder.MarkPlaceholder(ae.RunID)
	}
	metrics.ImageResultsTotal.WithLabelValues(string(model.ImageSourcePlaceholder)).Inc()
	return &model.ImageResult{
		Created: s.now().Unix(),
		Model:   req.Model,
		Format:  req.ResponseFormat,
		Images:  placeholderImages(req, s.mockBaseURL),
		Source:  model.ImageSourcePlaceholder,
	}, nil
}
