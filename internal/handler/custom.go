package handler

import (
	"context"
	"fmt"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/metrics"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

type Modality string

const (
	ModalityChat  Modality = "chat"
	ModalityImage Modality = "image"
)

type Mode string

const (
	ModeSync      Mode = "sync"
	ModeAsync     Mode = "async"
	ModeStreaming Mode = "streaming"
)

// Call 一次已解析的入站调用
type Call struct {
	Modality Modality
	Mode     Mode
	Chat     *model.ChatRequest
	Image    *model.ImageRequest
}

// Result 按调用类型填充其中一部分
//
// streaming: Chat + Chunks；async: 只有 Pending，结果送达后关闭
type Result struct {
	Chat    *model.ChatResponse
	Chunks  *adapter.ChunkStream
	Image   *model.ImageResult
	Pending <-chan Outcome
}

type Outcome struct {
	Result *Result
	Err    error
}

// ChatCompleter 聊天编排（service.ChatService）
type ChatCompleter interface {
	Complete(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
	Stream(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, *adapter.ChunkStream, error)
}

// ImageGenerator 图片编排（service.ImageService）
type ImageGenerator interface {
	Generate(ctx context.Context, req model.ImageRequest) (*model.ImageResult, error)
}

type routeKey struct {
	modality Modality
	mode     Mode
}

type route func(ctx context.Context, call Call) (*Result, error)

// CustomHandler 入站调用的唯一入口，按 (modality, mode) 查表分发
type CustomHandler struct {
	chat   ChatCompleter
	images ImageGenerator
	routes map[routeKey]route
}

func NewCustomHandler(chat ChatCompleter, images ImageGenerator) *CustomHandler {
	h := &CustomHandler{chat: chat, images: images}
	h.routes = map[routeKey]route{
		{ModalityChat, ModeSync}:      h.chatSync,
		{ModalityChat, ModeStreaming}: h.chatStreaming,
		{ModalityChat, ModeAsync}:     h.async(h.chatSync),
		{ModalityImage, ModeSync}:     h.imageSync,
		{ModalityImage, ModeAsync}:    h.async(h.imageSync),
	}
	return h
}

// Handle 分发调用；所有错误都是 *apperr.Error
func (h *CustomHandler) Handle(ctx context.Context, call Call) (*Result, error) {
	r, ok := h.routes[routeKey{call.Modality, call.Mode}]
	if !ok {
		err := apperr.MalformedRequest("%s requests do not support %s mode", call.Modality, call.Mode)
		h.observe(call, err)
		return nil, err
	}

	res, err := r(ctx, call)
	if call.Mode != ModeAsync {
		h.observe(call, err)
	}
	return res, err
}

func (h *CustomHandler) chatSync(ctx context.Context, call Call) (*Result, error) {
	if call.Chat == nil {
		return nil, apperr.MalformedRequest("missing chat request")
	}
	resp, err := h.chat.Complete(ctx, *call.Chat)
	if err != nil {
		return nil, err
	}
	return &Result{Chat: resp}, nil
}

// chatStreaming 后端不支持增量输出，等完整结果后再切片
func (h *CustomHandler) chatStreaming(ctx context.Context, call Call) (*Result, error) {
	if call.Chat == nil {
		return nil, apperr.MalformedRequest("missing chat request")
	}
	resp, chunks, err := h.chat.Stream(ctx, *call.Chat)
	if err != nil {
		return nil, err
	}
	return &Result{Chat: resp, Chunks: chunks}, nil
}

func (h *CustomHandler) imageSync(ctx context.Context, call Call) (*Result, error) {
	if call.Image == nil {
		return nil, apperr.MalformedRequest("missing image request")
	}
	res, err := h.images.Generate(ctx, *call.Image)
	if err != nil {
		return nil, err
	}
	return &Result{Image: res}, nil
}

// async 在后台执行同步路由，脱离调用方的取消信号
func (h *CustomHandler) async(sync route) route {
	return func(ctx context.Context, call Call) (*Result, error) {
		out := make(chan Outcome, 1)
		bg := context.WithoutCancel(ctx)
		go func() {
			defer close(out)
			defer func() {
				if p := recover(); p != nil {
					err := apperr.New(apperr.KindInternal, "async %s call panicked: %v", call.Modality, p)
					logger.Errorf("异步调用异常: %v", p)
					h.observe(call, err)
					out <- Outcome{Err: err}
				}
			}()
			res, err := sync(bg, call)
			h.observe(call, err)
			out <- Outcome{Result: res, Err: err}
		}()
		return &Result{Pending: out}, nil
	}
}

func (h *CustomHandler) observe(call Call, err error) {
	status := "ok"
	if err != nil {
		status = string(apperr.KindOf(err))
	}
	metrics.RequestsTotal.WithLabelValues(string(call.Modality), string(call.Mode), status).Inc()
	if err != nil {
		logger.WithFields(logger.Fields{
			"modality": call.Modality,
			"mode":     call.Mode,
			"kind":     status,
		}).Warnf("请求失败: %v", err)
	}
}

// Wait 阻塞等待异步结果
func Wait(ctx context.Context, res *Result) (*Result, error) {
	if res == nil || res.Pending == nil {
		return res, nil
	}
	select {
	case o, ok := <-res.Pending:
		if !ok {
			return nil, fmt.Errorf("async result already consumed")
		}
		return o.Result, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
