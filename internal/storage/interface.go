package storage

import (
	"fmt"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

// RunStore 工作流运行记录归档，只用于诊断
type RunStore interface {
	// 记录管理
	SaveRun(record *model.RunRecord) error
	GetRun(runID string) (*model.RunRecord, error)
	// ListRuns 按开始时间倒序，limit<=0 表示全部
	ListRuns(limit int) ([]*model.RunRecord, error)
	DeleteRun(runID string) error

	// 存储管理
	Init() error
	Close() error
	Backup() error
}

const (
	TypeMemory = "memory"
	TypeDisk   = "disk"
	TypeNone   = "none"
)

// New 按类型创建并初始化存储
func New(storageType, dataDir string, cacheSize int) (RunStore, error) {
	var s RunStore
	switch storageType {
	case TypeMemory, "":
		s = NewMemoryStorage(cacheSize)
	case TypeDisk:
		s = NewDiskStorage(dataDir, cacheSize)
	case TypeNone:
		s = NopStorage{}
	default:
		return nil, fmt.Errorf("%w: unknown storage type %q", ErrStorageInit, storageType)
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}
