package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slw-proton/litellm-adpter-dify/internal/apperr"
	"github.com/slw-proton/litellm-adpter-dify/internal/metrics"
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// Submission 提交后引擎返回的信息；blocking 模式下可能已经是终态
type Submission struct {
	RunID   string
	TaskID  string
	Status  model.RunStatus
	Outputs map[string]any
	Error   string
}

// StatusReport 一次状态查询的结果
type StatusReport struct {
	Status  model.RunStatus
	Outputs map[string]any
	Error   string
}

// Remote 远端工作流引擎
type Remote interface {
	Submit(ctx context.Context, workflowID string, inputs map[string]any) (*Submission, error)
	Status(ctx context.Context, runID string) (*StatusReport, error)
	// Stop taskID 为空时由实现自行决定用 runID
	Stop(ctx context.Context, runID, taskID string) error
}

type Options struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	// StopTimeout 超时后停止调用的最长等待
	StopTimeout time.Duration
}

// Client 把一次工作流运行驱动到终态，对调用方隐藏轮询协议
type Client struct {
	name       string
	workflowID string
	remote     Remote
	clock      clockwork.Clock
	opts       Options
}

func NewClient(name, workflowID string, remote Remote, opts Options, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.MaxPollAttempts < 1 {
		opts.MaxPollAttempts = 1
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &Client{
		name:       name,
		workflowID: workflowID,
		remote:     remote,
		clock:      clock,
		opts:       opts,
	}
}

// Execute 提交并轮询到终态。timeout<=0 时使用默认超时
//
// 所有终态（含 FAILED、STOPPED、TIMED_OUT）都以 run 返回、error 为 nil；
// 只有提交失败或状态查询重试耗尽才返回错误。截止时间从提交前开始计算，
// 提交本身超过截止时间返回 workflow_timeout
func (c *Client) Execute(ctx context.Context, inputs map[string]any, timeout time.Duration) (*model.WorkflowRun, error) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	deadline := c.clock.Now().Add(timeout)
	run, err := c.submitBefore(ctx, inputs, deadline)
	if err != nil {
		return nil, err
	}
	return c.PollUntilTerminal(ctx, run, deadline)
}

// Submit 启动一次运行，只受 ctx 约束
func (c *Client) Submit(ctx context.Context, inputs map[string]any) (*model.WorkflowRun, error) {
	return c.submit(ctx, inputs, c.clock.Now())
}

func (c *Client) submitBefore(ctx context.Context, inputs map[string]any, deadline time.Time) (*model.WorkflowRun, error) {
	started := c.clock.Now()
	submitCtx, cancel := context.WithTimeout(ctx, deadline.Sub(started))
	defer cancel()

	run, err := c.submit(submitCtx, inputs, started)
	if err != nil && ctx.Err() == nil && errors.Is(submitCtx.Err(), context.DeadlineExceeded) {
		metrics.WorkflowRunsTotal.WithLabelValues(c.name, "submit_timeout").Inc()
		logger.WithFields(logger.Fields{"workflow": c.name}).Warnf("提交工作流超过截止时间: %v", err)
		return nil, apperr.Wrap(apperr.KindWorkflowTimeout, err, "workflow %s was not accepted before the deadline", c.workflowID)
	}
	return run, err
}

func (c *Client) submit(ctx context.Context, inputs map[string]any, started time.Time) (*model.WorkflowRun, error) {
	sub, err := c.remote.Submit(ctx, c.workflowID, inputs)
	if err != nil {
		metrics.WorkflowRunsTotal.WithLabelValues(c.name, "submit_error").Inc()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Network(err, "submit workflow %s", c.workflowID)
	}
	if sub.RunID == "" {
		metrics.WorkflowRunsTotal.WithLabelValues(c.name, "submit_error").Inc()
		return nil, apperr.New(apperr.KindWorkflowFailed, "engine returned no run id for workflow %s", c.workflowID)
	}

	run := &model.WorkflowRun{
		ID:         sub.RunID,
		TaskID:     sub.TaskID,
		WorkflowID: c.workflowID,
		Status:     model.RunPending,
		StartedAt:  started,
	}
	c.apply(run, sub.Status, sub.Outputs, sub.Error)

	logger.WithFields(logger.Fields{
		"workflow": c.name,
		"run_id":   run.ID,
		"task_id":  run.TaskID,
		"status":   run.Status,
	}).Info("工作流已提交")
	return run, nil
}

// PollUntilTerminal 按固定间隔查询状态，直到终态或截止时间
//
// 截止时间到达时发出一次停止调用（不等待结果）并返回 TIMED_OUT。
// 连续 MaxPollAttempts 次查询失败返回 network_error，此时不发停止调用
func (c *Client) PollUntilTerminal(ctx context.Context, run *model.WorkflowRun, deadline time.Time) (*model.WorkflowRun, error) {
	log := logger.WithFields(logger.Fields{"workflow": c.name, "run_id": run.ID})
	if run.Status.Terminal() {
		c.finish(run)
		return run, nil
	}

	failures := 0
	for {
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return c.timeout(ctx, run), nil
		}
		wait := c.opts.PollInterval
		if remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			log.Warnf("调用方已取消，放弃轮询: %v", ctx.Err())
			c.stop(ctx, run)
			return run, fmt.Errorf("poll run %s: %w", run.ID, ctx.Err())
		case <-c.clock.After(wait):
		}

		remaining = deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			return c.timeout(ctx, run), nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, remaining)
		report, err := c.remote.Status(pollCtx, run.ID)
		cancel()
		if err != nil {
			failures++
			metrics.WorkflowPollsTotal.WithLabelValues(c.name, "error").Inc()
			log.Warnf("查询工作流状态失败 (%d/%d): %v", failures, c.opts.MaxPollAttempts, err)
			if failures >= c.opts.MaxPollAttempts {
				metrics.WorkflowRunsTotal.WithLabelValues(c.name, "poll_error").Inc()
				e := apperr.Network(err, "status query failed %d times in a row", failures)
				e.RunID = run.ID
				return run, e
			}
			continue
		}

		failures = 0
		run.Polls++
		metrics.WorkflowPollsTotal.WithLabelValues(c.name, "ok").Inc()
		c.apply(run, report.Status, report.Outputs, report.Error)
		log.Debugf("第 %d 次轮询: status=%s", run.Polls, run.Status)

		if run.Status.Terminal() {
			c.finish(run)
			return run, nil
		}
	}
}

// apply 推进状态，只有在进入对应终态时才记录 outputs / error
func (c *Client) apply(run *model.WorkflowRun, observed model.RunStatus, outputs map[string]any, errText string) {
	next, err := transition(run.Status, observed)
	if err != nil {
		logger.WithFields(logger.Fields{"run_id": run.ID}).Warnf("忽略状态迁移: %v", err)
		return
	}
	run.Status = next
	switch next {
	case model.RunSucceeded:
		run.Outputs = outputs
	case model.RunFailed:
		run.Error = errText
	}
}

func (c *Client) timeout(ctx context.Context, run *model.WorkflowRun) *model.WorkflowRun {
	next, err := expire(run.Status)
	if err != nil {
		return run
	}
	run.Status = next
	c.finish(run)
	logger.WithFields(logger.Fields{
		"workflow": c.name,
		"run_id":   run.ID,
		"polls":    run.Polls,
	}).Warn("工作流超时，发送停止请求")
	c.stop(ctx, run)
	return run
}

// stop 尽力而为的停止调用，失败只记日志
func (c *Client) stop(ctx context.Context, run *model.WorkflowRun) {
	runID, taskID := run.ID, run.TaskID
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StopTimeout)
	go func() {
		defer cancel()
		if err := c.remote.Stop(stopCtx, runID, taskID); err != nil {
			metrics.WorkflowStopCallsTotal.WithLabelValues("error").Inc()
			logger.WithFields(logger.Fields{"run_id": runID}).Warnf("停止工作流失败: %v", err)
			return
		}
		metrics.WorkflowStopCallsTotal.WithLabelValues("ok").Inc()
	}()
}

func (c *Client) finish(run *model.WorkflowRun) {
	run.FinishedAt = c.clock.Now()
	metrics.WorkflowRunsTotal.WithLabelValues(c.name, string(run.Status)).Inc()
	metrics.WorkflowDuration.WithLabelValues(c.name).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
}
