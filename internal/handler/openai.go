package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sashabaranov/go-openai"

	"github.com/slw-proton/litellm-adpter-dify/internal/adapter"
	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/utils"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// OpenAIHandler OpenAI 兼容接口
type OpenAIHandler struct {
	custom     *CustomHandler
	translator *adapter.Translator
	models     []string
	started    int64
}

func NewOpenAIHandler(custom *CustomHandler, translator *adapter.Translator, models []string) *OpenAIHandler {
	return &OpenAIHandler{
		custom:     custom,
		translator: translator,
		models:     models,
		started:    time.Now().Unix(),
	}
}

func (h *OpenAIHandler) ChatCompletions(c *gin.Context) {
	var body openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.MalformedRequest("invalid chat completion body: %v", err))
		return
	}
	req := adapter.FromOpenAI(body)

	mode := ModeSync
	if req.Stream {
		mode = ModeStreaming
	}
	res, err := h.custom.Handle(c.Request.Context(), Call{Modality: ModalityChat, Mode: mode, Chat: &req})
	if err != nil {
		writeError(c, err)
		return
	}

	if mode == ModeSync {
		c.JSON(http.StatusOK, h.translator.ToOpenAI(res.Chat))
		return
	}

	sse := utils.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)
	for chunk := range res.Chunks.All() {
		if err := sse.WriteJSON(adapter.ToStreamResponse(res.Chat, chunk)); err != nil {
			logger.Warnf("写入流式分片失败: %v", err)
			return
		}
	}
	if err := sse.Close(); err != nil {
		logger.Warnf("写入结束帧失败: %v", err)
	}
}

func (h *OpenAIHandler) ImageGenerations(c *gin.Context) {
	var req model.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.MalformedRequest("invalid image generation body: %v", err))
		return
	}

	res, err := h.custom.Handle(c.Request.Context(), Call{Modality: ModalityImage, Mode: ModeSync, Image: &req})
	if err != nil {
		writeError(c, err)
		return
	}

	img := res.Image
	data := make([]openai.ImageResponseDataInner, 0, len(img.Images))
	for _, d := range img.Images {
		data = append(data, openai.ImageResponseDataInner{URL: d.URL, B64JSON: d.B64JSON})
	}
	c.JSON(http.StatusOK, openai.ImageResponse{Created: img.Created, Data: data})
}

func (h *OpenAIHandler) Models(c *gin.Context) {
	list := make([]openai.Model, 0, len(h.models))
	for _, id := range h.models {
		list = append(list, openai.Model{
			ID:        id,
			Object:    "model",
			CreatedAt: h.started,
			OwnedBy:   "custom",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": list})
}

// writeError 统一的 OpenAI 错误响应
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	apiErr := &openai.APIError{
		Message: err.Error(),
		Type:    apperr.ErrorType(kind),
		Code:    string(kind),
	}

	fields := logger.Fields{"kind": kind, "path": c.FullPath()}
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.RunID != "" {
		fields["run_id"] = ae.RunID
		c.Header("X-Workflow-Run-ID", ae.RunID)
	}
	logger.WithFields(fields).Errorf("请求处理失败: %v", err)

	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), openai.ErrorResponse{Error: apiErr})
}
