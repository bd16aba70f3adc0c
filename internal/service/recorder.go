package service

import (
	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/internal/storage"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// Recorder 把结束的运行写入归档，写入失败只记日志
type Recorder struct {
	store storage.RunStore
}

func NewRecorder(store storage.RunStore) *Recorder {
	if store == nil {
		store = storage.NopStorage{}
	}
	return &Recorder{store: store}
}

func (r *Recorder) Store() storage.RunStore {
	return r.store
}

// Record run 为 nil（提交失败）时不记录
func (r *Recorder) Record(kind model.RunKind, query string, run *model.WorkflowRun, content string, runErr error) {
	if r == nil || run == nil {
		return
	}
	rec := &model.RunRecord{
		ID:         run.ID,
		WorkflowID: run.WorkflowID,
		Kind:       kind,
		Query:      query,
		Status:     run.Status,
		Content:    content,
		Error:      run.Error,
		Polls:      run.Polls,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if !run.FinishedAt.IsZero() {
		rec.ProcessingTime = run.FinishedAt.Sub(run.StartedAt).Seconds()
	}
	if runErr != nil && rec.Error == "" {
		rec.Error = runErr.Error()
	}
	if err := r.store.SaveRun(rec); err != nil {
		logger.Warnf("保存运行记录失败 %s: %v", run.ID, err)
	}
}

// MarkPlaceholder 标记该运行的结果被占位图替代
func (r *Recorder) MarkPlaceholder(runID string) {
	if r == nil || runID == "" {
		return
	}
	rec, err := r.store.GetRun(runID)
	if err != nil {
		return
	}
	rec.Placeholder = true
	if err := r.store.SaveRun(rec); err != nil {
		logger.Warnf("更新运行记录失败 %s: %v", runID, err)
	}
}
