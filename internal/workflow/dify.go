package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/utils"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

const maxErrorBody = 2048

type DifyConfig struct {
	BaseURL      string
	APIKey       string
	ResponseMode string
	User         string
	Timeout      time.Duration
}

// Dify 基于 Dify workflow API 的 Remote 实现
type Dify struct {
	cfg        DifyConfig
	httpClient *http.Client
}

func NewDify(cfg DifyConfig) *Dify {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ResponseMode == "" {
		cfg.ResponseMode = "blocking"
	}
	if cfg.User == "" {
		cfg.User = "api-user"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dify{
		cfg:        cfg,
		httpClient: utils.NewHTTPClient(cfg.Timeout),
	}
}

type runRequest struct {
	WorkflowID   string         `json:"workflow_id,omitempty"`
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type runDetail struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Outputs json.RawMessage `json:"outputs"`
	Error   *string         `json:"error"`
}

type runResponse struct {
	WorkflowRunID string     `json:"workflow_run_id"`
	TaskID        string     `json:"task_id"`
	Data          *runDetail `json:"data"`
}

type stopRequest struct {
	User string `json:"user"`
}

func (d *Dify) Submit(ctx context.Context, workflowID string, inputs map[string]any) (*Submission, error) {
	body := runRequest{
		WorkflowID:   workflowID,
		Inputs:       inputs,
		ResponseMode: d.cfg.ResponseMode,
		User:         d.cfg.User,
	}

	var resp runResponse
	status, raw, err := d.do(ctx, http.MethodPost, "/workflows/run", body, &resp)
	if err != nil {
		if utils.IsUnreachable(err) {
			return nil, apperr.UpstreamUnavailable(err, "workflow engine unreachable")
		}
		return nil, apperr.Network(err, "submit workflow %s", workflowID)
	}
	if status >= http.StatusInternalServerError {
		e := apperr.UpstreamUnavailable(nil, "workflow engine answered %d", status)
		e.Detail = raw
		return nil, e
	}
	if status >= http.StatusBadRequest {
		e := apperr.WorkflowFailed("", raw)
		e.Message = fmt.Sprintf("workflow engine rejected the run with %d", status)
		return nil, e
	}

	sub := &Submission{RunID: resp.WorkflowRunID, TaskID: resp.TaskID}
	if resp.Data != nil {
		if sub.RunID == "" {
			sub.RunID = resp.Data.ID
		}
		sub.Status = mapEngineStatus(resp.Data.Status)
		sub.Outputs = decodeOutputs(resp.Data.Outputs)
		if resp.Data.Error != nil {
			sub.Error = *resp.Data.Error
		}
	} else {
		sub.Status = mapEngineStatus("")
	}
	return sub, nil
}

func (d *Dify) Status(ctx context.Context, runID string) (*StatusReport, error) {
	var detail runDetail
	status, raw, err := d.do(ctx, http.MethodGet, "/workflows/run/"+url.PathEscape(runID), nil, &detail)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status query answered %d: %s", status, raw)
	}

	report := &StatusReport{
		Status:  mapEngineStatus(detail.Status),
		Outputs: decodeOutputs(detail.Outputs),
	}
	if detail.Error != nil {
		report.Error = *detail.Error
	}
	return report, nil
}

func (d *Dify) Stop(ctx context.Context, runID, taskID string) error {
	id := taskID
	if id == "" {
		id = runID
	}
	status, raw, err := d.do(ctx, http.MethodPost, "/workflows/tasks/"+url.PathEscape(id)+"/stop", stopRequest{User: d.cfg.User}, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("stop answered %d: %s", status, raw)
	}
	logger.Infof("已停止工作流任务: %s", id)
	return nil
}

// Health 探测引擎是否可达
func (d *Dify) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	status, _, err := d.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		logger.Warnf("Dify 健康检查失败: %v", err)
		return false
	}
	return status == http.StatusOK
}

// do 发送请求；2xx 时解码到 out，否则返回截断后的响应体
func (d *Dify) do(ctx context.Context, method, path string, in, out any) (int, string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.cfg.BaseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return resp.StatusCode, string(data), nil
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, "", nil
}
