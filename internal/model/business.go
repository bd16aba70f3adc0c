package model

import (
	"encoding/json"
	"fmt"
)

type ResponseType string

const (
	ResponseTypeText ResponseType = "text"
	ResponseTypeJSON ResponseType = "json"
)

type ModelInfo struct {
	Name string `json:"name" binding:"required"`
}

// BusinessQuery 业务 API 的查询结构（POST /api/process 请求体）
type BusinessQuery struct {
	Query        string       `json:"query" binding:"required"`
	ModelInfo    ModelInfo    `json:"model_info"`
	ResponseType ResponseType `json:"response_type"`
	Stream       bool         `json:"stream"`
	Temperature  *float32     `json:"temperature,omitempty"`
	MaxTokens    int          `json:"max_tokens,omitempty"`

	// System 对话中的 system 提示词，不进入业务 API 请求体
	System string `json:"-"`
}

// BusinessResponse 业务 API 的响应结构
type BusinessResponse struct {
	ResponseID     string          `json:"response_id"`
	Content        json.RawMessage `json:"content"`
	Timestamp      int64           `json:"timestamp"`
	ProcessingTime float64         `json:"processing_time"`
}

// ContentText 返回文本内容；content 为对象时按 JSON 文本返回
func (r *BusinessResponse) ContentText() (string, error) {
	if len(r.Content) == 0 || string(r.Content) == "null" {
		return "", nil
	}
	if r.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(r.Content, &s); err != nil {
			return "", fmt.Errorf("decode content: %w", err)
		}
		return s, nil
	}
	return string(r.Content), nil
}
