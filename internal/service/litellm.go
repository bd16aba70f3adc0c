package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/utils"
)

// LiteLLMImageProvider 通过 OpenAI 兼容的图片接口（LiteLLM 代理）生成
type LiteLLMImageProvider struct {
	client *openai.Client
	model  string
}

type LiteLLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewLiteLLMImageProvider(cfg LiteLLMConfig) *LiteLLMImageProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = utils.NewHTTPClient(cfg.Timeout)
	return &LiteLLMImageProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (p *LiteLLMImageProvider) Source() model.ImageSource { return model.ImageSourceLiteLLM }

func (p *LiteLLMImageProvider) Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error) {
	modelName := p.model
	if req.Model != "" {
		modelName = req.Model
	}

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          modelName,
		N:              req.N,
		Size:           req.Size,
		ResponseFormat: string(req.ResponseFormat),
	})
	if err != nil {
		return nil, apperr.Network(err, "litellm image generation with %s", modelName)
	}

	images := make([]model.ImageData, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, model.ImageData{URL: d.URL, B64JSON: d.B64JSON})
	}
	images = limitImages(images, req.ResponseFormat, req.N)
	if len(images) == 0 {
		return nil, apperr.Network(fmt.Errorf("empty data"), "litellm returned no %s images", req.ResponseFormat)
	}

	return &model.ImageResult{
		Format: req.ResponseFormat,
		Images: images,
		Source: model.ImageSourceLiteLLM,
	}, nil
}
