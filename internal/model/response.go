package model

import "time"

const FinishReasonStop = "stop"

// ChatResponse 一次请求的最终回答，构造后不再修改
type ChatResponse struct {
	ResponseID     string        `json:"response_id"`
	Model          string        `json:"model"`
	Content        string        `json:"content"`
	Timestamp      int64         `json:"timestamp"`
	ProcessingTime time.Duration `json:"processing_time"`
	FinishReason   string        `json:"finish_reason"`
	RunID          string        `json:"run_id,omitempty"`
}

// StreamChunk 流式模拟输出的一个分片
type StreamChunk struct {
	Index        int    `json:"index"`
	Role         Role   `json:"role,omitempty"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64JSON string `json:"b64_json,omitempty"`
}

// ImageSource 标识图片结果来自哪里；placeholder 只用于测试与观测，不出现在响应体中
type ImageSource string

const (
	ImageSourceWorkflow    ImageSource = "workflow"
	ImageSourceLiteLLM     ImageSource = "litellm"
	ImageSourcePlaceholder ImageSource = "placeholder"
)

type ImageResult struct {
	Created int64
	Model   string
	Format  ImageFormat
	Images  []ImageData
	Source  ImageSource
	RunID   string
}

// Placeholder 是否为回退生成的占位图
func (r *ImageResult) Placeholder() bool {
	return r.Source == ImageSourcePlaceholder
}
