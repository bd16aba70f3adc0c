package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/workflow"
)

// Translator 把终态结果转换为 OpenAI 兼容的响应
type Translator struct {
	chunkRunes int
	now        func() time.Time
}

func NewTranslator(chunkRunes int) *Translator {
	return &Translator{chunkRunes: chunkRunes, now: time.Now}
}

// FromRun 只有 SUCCEEDED 产生响应，其他终态都转换为对应的错误
func (t *Translator) FromRun(run *model.WorkflowRun, modelName string) (*model.ChatResponse, error) {
	if err := RunError(run); err != nil {
		return nil, err
	}
	content, err := workflow.OutputText(run)
	if err != nil {
		return nil, err
	}
	return &model.ChatResponse{
		ResponseID:     NewCompletionID(),
		Model:          modelName,
		Content:        content,
		Timestamp:      t.now().Unix(),
		ProcessingTime: run.FinishedAt.Sub(run.StartedAt),
		FinishReason:   model.FinishReasonStop,
		RunID:          run.ID,
	}, nil
}

// FromBusiness 业务 API 的响应转换
func (t *Translator) FromBusiness(resp *model.BusinessResponse, modelName string) (*model.ChatResponse, error) {
	content, err := resp.ContentText()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNetwork, err, "business api returned unreadable content")
	}
	id := resp.ResponseID
	if id == "" {
		id = NewCompletionID()
	}
	ts := resp.Timestamp
	if ts == 0 {
		ts = t.now().Unix()
	}
	return &model.ChatResponse{
		ResponseID:     id,
		Model:          modelName,
		Content:        content,
		Timestamp:      ts,
		ProcessingTime: time.Duration(resp.ProcessingTime * float64(time.Second)),
		FinishReason:   model.FinishReasonStop,
	}, nil
}

// RunError 非成功终态对应的错误；SUCCEEDED 返回 nil
func RunError(run *model.WorkflowRun) error {
	switch run.Status {
	case model.RunSucceeded:
		return nil
	case model.RunFailed:
		return apperr.WorkflowFailed(run.ID, run.Error)
	case model.RunStopped:
		e := apperr.WorkflowFailed(run.ID, run.Error)
		e.Message = "workflow run was stopped"
		return e
	case model.RunTimedOut:
		return apperr.WorkflowTimeout(run.ID)
	default:
		return fmt.Errorf("run %s is not terminal: %s", run.ID, run.Status)
	}
}

// ToOpenAI 非流式响应
func (t *Translator) ToOpenAI(resp *model.ChatResponse) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      resp.ResponseID,
		Object:  "chat.completion",
		Created: resp.Timestamp,
		Model:   resp.Model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: resp.Content,
				},
				FinishReason: openai.FinishReason(resp.FinishReason),
			},
		},
		Usage: estimateUsage(resp.Content),
	}
}

// Stream 流式模拟：结果已完整，切片后逐个输出
func (t *Translator) Stream(resp *model.ChatResponse) *ChunkStream {
	return NewChunkStream(resp.Content, t.chunkRunes)
}

// ToStreamResponse 单个分片转换为 chat.completion.chunk
func ToStreamResponse(resp *model.ChatResponse, chunk model.StreamChunk) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      resp.ResponseID,
		Object:  "chat.completion.chunk",
		Created: resp.Timestamp,
		Model:   resp.Model,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index: 0,
				Delta: openai.ChatCompletionStreamChoiceDelta{
					Role:    string(chunk.Role),
					Content: chunk.Content,
				},
				FinishReason: openai.FinishReason(chunk.FinishReason),
			},
		},
	}
}

func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// estimateUsage 引擎不返回 token 数，按空白分词粗略估算
func estimateUsage(content string) openai.Usage {
	n := len(strings.Fields(content))
	return openai.Usage{CompletionTokens: n, TotalTokens: n}
}
