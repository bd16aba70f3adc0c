package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/service"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// BusinessHandler 业务 API 服务端：/api/process 直接驱动聊天工作流
type BusinessHandler struct {
	backend service.ChatBackend
	models  []string
	now     func() time.Time
}

func NewBusinessHandler(backend service.ChatBackend, models []string) *BusinessHandler {
	return &BusinessHandler{backend: backend, models: models, now: time.Now}
}

// Process 失败时仍返回 200，错误信息放在 content 中
func (h *BusinessHandler) Process(c *gin.Context) {
	start := h.now()

	var q model.BusinessQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.WithFields(logger.Fields{
		"model":         q.ModelInfo.Name,
		"response_type": q.ResponseType,
	}).Infof("业务请求: %d chars", len(q.Query))

	var text string
	resp, err := h.backend.Complete(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("业务请求处理失败: %v", err)
		text = "工作流执行失败: " + err.Error()
	} else {
		text = resp.Content
	}

	content, err := encodeContent(text, q.ResponseType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, model.BusinessResponse{
		ResponseID:     newResponseID(),
		Content:        content,
		Timestamp:      start.Unix(),
		ProcessingTime: h.now().Sub(start).Seconds(),
	})
}

func (h *BusinessHandler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.models})
}

// encodeContent json 类型包一层 {"message","type"}，否则原样作为字符串
func encodeContent(text string, rt model.ResponseType) (json.RawMessage, error) {
	if rt == model.ResponseTypeJSON {
		return json.Marshal(map[string]string{
			"message": text,
			"type":    "dify_workflow_response",
		})
	}
	return json.Marshal(text)
}

func newResponseID() string {
	return "resp-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
