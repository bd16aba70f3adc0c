package adapter

import (
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

// Normalizer 把 OpenAI 风格的聊天请求转换为业务查询
//
// 查询取最后一条 user 消息；没有 user 消息时取最后一条消息。
// system / developer 消息按顺序拼接后单独放在 BusinessQuery.System
type Normalizer struct {
	DefaultModel string
}

func NewNormalizer(defaultModel string) *Normalizer {
	return &Normalizer{DefaultModel: defaultModel}
}

func (n *Normalizer) Normalize(req model.ChatRequest) (model.BusinessQuery, error) {
	if len(req.Messages) == 0 {
		return model.BusinessQuery{}, apperr.MalformedRequest("messages must not be empty")
	}

	var (
		system   []string
		query    string
		hasUser  bool
		lastIdx  = len(req.Messages) - 1
		lastRole model.Role
	)
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			return model.BusinessQuery{}, apperr.MalformedRequest("messages[%d]: unknown role %q", i, m.Role)
		}
		switch m.Role {
		case model.RoleSystem, model.RoleDeveloper:
			if m.Content != "" {
				system = append(system, m.Content)
			}
		case model.RoleUser:
			query = m.Content
			hasUser = true
		}
	}
	if !hasUser {
		query = req.Messages[lastIdx].Content
		lastRole = req.Messages[lastIdx].Role
	}

	q := model.BusinessQuery{
		Query:        query,
		ModelInfo:    model.ModelInfo{Name: n.modelName(req.Model)},
		ResponseType: model.ResponseTypeText,
		Stream:       req.Stream,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
	// 只有 system 消息时查询本身就是 system 内容，不再重复携带
	if lastRole != model.RoleSystem && lastRole != model.RoleDeveloper {
		q.System = strings.Join(system, "\n\n")
	}
	return q, nil
}

// modelName 去掉 provider 前缀，如 custom/my-model -> my-model
func (n *Normalizer) modelName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return n.DefaultModel
	}
	return name
}

// FromOpenAI go-openai 的请求结构转换为内部 ChatRequest；多段内容只保留文本部分
func FromOpenAI(req openai.ChatCompletionRequest) model.ChatRequest {
	out := model.ChatRequest{
		Model:     req.Model,
		Messages:  make([]model.Message, 0, len(req.Messages)),
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
	}
	if req.MaxCompletionTokens > 0 && out.MaxTokens == 0 {
		out.MaxTokens = req.MaxCompletionTokens
	}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	for _, m := range req.Messages {
		content := m.Content
		if content == "" && len(m.MultiContent) > 0 {
			var parts []string
			for _, p := range m.MultiContent {
				if p.Type == openai.ChatMessagePartTypeText {
					parts = append(parts, p.Text)
				}
			}
			content = strings.Join(parts, "\n")
		}
		out.Messages = append(out.Messages, model.Message{Role: model.Role(m.Role), Content: content})
	}
	return out
}
