package storage

import (
	"sort"
	"sync"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
)

// MemoryStorage 进程内保存最近 capacity 条记录，超出时淘汰最早写入的
type MemoryStorage struct {
	runs     map[string]*model.RunRecord
	order    []string
	capacity int
	mu       sync.RWMutex
}

func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemoryStorage{
		runs:     make(map[string]*model.RunRecord),
		capacity: capacity,
	}
}

func (m *MemoryStorage) Init() error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

func (m *MemoryStorage) Backup() error {
	return nil
}

func (m *MemoryStorage) SaveRun(record *model.RunRecord) error {
	if record == nil || record.ID == "" {
		return ErrInvalidData
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[record.ID]; !exists {
		m.order = append(m.order, record.ID)
	}
	cp := *record
	m.runs[record.ID] = &cp

	for len(m.order) > m.capacity {
		delete(m.runs, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *MemoryStorage) GetRun(runID string) (*model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.runs[runID]
	if !exists {
		return nil, ErrRunNotFound
	}
	cp := *record
	return &cp, nil
}

func (m *MemoryStorage) ListRuns(limit int) ([]*model.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]*model.RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		records = append(records, &cp)
	}
	sortNewestFirst(records)

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryStorage) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[runID]; !exists {
		return ErrRunNotFound
	}
	delete(m.runs, runID)
	for i, id := range m.order {
		if id == runID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func sortNewestFirst(records []*model.RunRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
}

// NopStorage storage.type=none 时使用，不保存任何记录
type NopStorage struct{}

func (NopStorage) Init() error                              { return nil }
func (NopStorage) Close() error                             { return nil }
func (NopStorage) Backup() error                            { return nil }
func (NopStorage) SaveRun(*model.RunRecord) error           { return nil }
func (NopStorage) GetRun(string) (*model.RunRecord, error)  { return nil, ErrRunNotFound }
func (NopStorage) ListRuns(int) ([]*model.RunRecord, error) { return []*model.RunRecord{}, nil }
func (NopStorage) DeleteRun(string) error                   { return ErrRunNotFound }
