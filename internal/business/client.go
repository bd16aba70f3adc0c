package business

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/utils"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

const ProcessPath = "/api/process"

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client 调用业务 API 的 /api/process
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(endpoint, ProcessPath) {
		endpoint += ProcessPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		httpClient: utils.NewHTTPClient(cfg.Timeout),
	}
}

func (c *Client) Process(ctx context.Context, q model.BusinessQuery) (*model.BusinessResponse, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	logger.Debugf("调用业务API: %s model=%s", c.endpoint, q.ModelInfo.Name)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if utils.IsUnreachable(err) {
			return nil, apperr.UpstreamUnavailable(err, "business api unreachable")
		}
		return nil, apperr.Network(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if resp.StatusCode >= http.StatusInternalServerError {
			e := apperr.UpstreamUnavailable(nil, "business api answered %d", resp.StatusCode)
			e.Detail = string(body)
			return nil, e
		}
		// 客户端请求已通过校验，4xx 视为上游失败
		return nil, &apperr.Error{
			Kind:    apperr.KindWorkflowFailed,
			Message: fmt.Sprintf("business api rejected the query with %d", resp.StatusCode),
			Detail:  string(body),
		}
	}

	var out model.BusinessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Network(err, "failed to decode response")
	}
	return &out, nil
}
