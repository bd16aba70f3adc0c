package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

// 工作流输入变量名
const (
	InputQuery           = "querydata"
	InputSystem          = "system"
	InputPrompt          = "prompt"
	InputSize            = "size"
	InputN               = "n"
	InputResponseFormat  = "response_format"
	InputLLMImageAPIKey  = "llm_image_api_key"
	InputLLMImageBaseURL = "llm_image_base_url"
)

// ChatInputs 聊天查询转换为工作流输入
func ChatInputs(q model.BusinessQuery) map[string]any {
	inputs := map[string]any{InputQuery: q.Query}
	if q.System != "" {
		inputs[InputSystem] = q.System
	}
	return inputs
}

// ImageCredentials 由图片工作流转交给下游图片模型的凭据
type ImageCredentials struct {
	APIKey  string
	BaseURL string
}

// ImageInputs 图片请求转换为工作流输入
func ImageInputs(req model.ImageRequest, creds ImageCredentials) map[string]any {
	req = req.WithDefaults()
	inputs := map[string]any{
		InputPrompt:         req.Prompt,
		InputSize:           req.Size,
		InputN:              req.N,
		InputResponseFormat: string(req.ResponseFormat),
	}
	if creds.APIKey != "" {
		inputs[InputLLMImageAPIKey] = creds.APIKey
	}
	if creds.BaseURL != "" {
		inputs[InputLLMImageBaseURL] = creds.BaseURL
	}
	return inputs
}

// OutputText 从成功的运行中取出文本：text 优先，其次 querydata，否则整个 outputs 的 JSON
func OutputText(run *model.WorkflowRun) (string, error) {
	if run.Status != model.RunSucceeded {
		return "", fmt.Errorf("run %s is %s, not succeeded", run.ID, run.Status)
	}
	if len(run.Outputs) == 0 {
		return "", &apperr.Error{
			Kind:    apperr.KindWorkflowFailed,
			Message: "workflow returned no outputs",
			RunID:   run.ID,
		}
	}
	for _, key := range []string{"text", "querydata"} {
		if v, ok := run.Outputs[key]; ok {
			return stringify(v)
		}
	}
	return stringify(run.Outputs)
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("encode outputs: %w", err)
		}
		return string(b), nil
	}
}

// decodeOutputs 兼容对象和 JSON 字符串两种 outputs 形式
func decodeOutputs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m
	}
	return map[string]any{"text": s}
}
