package model

import "time"

// RunStatus 工作流运行状态
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	RunStopped   RunStatus = "STOPPED"
	RunTimedOut  RunStatus = "TIMED_OUT"
)

// Terminal 终态之后不再发生任何状态迁移
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunStopped, RunTimedOut:
		return true
	}
	return false
}

// WorkflowRun 一次远端工作流执行。Outputs 仅在 SUCCEEDED 时有值，Error 仅在 FAILED 时有值
type WorkflowRun struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id,omitempty"`
	WorkflowID string         `json:"workflow_id"`
	Status     RunStatus      `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
	Polls      int            `json:"polls"`
}

// RunKind 运行记录的用途
type RunKind string

const (
	RunKindChat  RunKind = "chat"
	RunKindImage RunKind = "image"
)

// RunRecord 归档的运行记录，仅用于诊断
type RunRecord struct {
	ID             string    `json:"id"`
	WorkflowID     string    `json:"workflow_id"`
	Kind           RunKind   `json:"kind"`
	Query          string    `json:"query"`
	Status         RunStatus `json:"status"`
	Content        string    `json:"content,omitempty"`
	Error          string    `json:"error,omitempty"`
	Placeholder    bool      `json:"placeholder,omitempty"`
	Polls          int       `json:"polls"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	ProcessingTime float64   `json:"processing_time"`
}
