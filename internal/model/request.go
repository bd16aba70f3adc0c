package model

// Role 消息角色，取值固定
type Role string

const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

// Valid 判断角色是否在允许的集合内
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant, RoleTool, RoleFunction:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 入站的 OpenAI 风格聊天请求（已脱离 wire 格式）
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float32  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

// ImageFormat 图片返回格式
type ImageFormat string

const (
	ImageFormatURL     ImageFormat = "url"
	ImageFormatB64JSON ImageFormat = "b64_json"
)

const (
	DefaultImageSize   = "1024x1024"
	DefaultImageCount  = 1
	DefaultImageFormat = ImageFormatURL
)

type ImageRequest struct {
	Model          string      `json:"model,omitempty"`
	Prompt         string      `json:"prompt" binding:"required"`
	N              int         `json:"n,omitempty"`
	Size           string      `json:"size,omitempty"`
	ResponseFormat ImageFormat `json:"response_format,omitempty"`
}

// WithDefaults 补齐 n / size / response_format 的默认值
func (r ImageRequest) WithDefaults() ImageRequest {
	if r.N < 1 {
		r.N = DefaultImageCount
	}
	if r.Size == "" {
		r.Size = DefaultImageSize
	}
	if r.ResponseFormat != ImageFormatB64JSON {
		r.ResponseFormat = DefaultImageFormat
	}
	return r
}
