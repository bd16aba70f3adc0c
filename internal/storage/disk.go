package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/slw-proton/litellm-adpter-dify/internal/model"
	"github.com/slw-proton/litellm-adpter-dify/pkg/logger"
)

// DiskStorage 每条记录一个文件：{dataDir}/runs/{id}.json，runs.json 为索引
type DiskStorage struct {
	dataDir   string
	mu        sync.RWMutex
	cache     map[string]*model.RunRecord
	cacheSize int
	index     map[string]*RunIndex
}

type RunIndex struct {
	ID         string          `json:"id"`
	Kind       model.RunKind   `json:"kind"`
	Status     model.RunStatus `json:"status"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

func NewDiskStorage(dataDir string, cacheSize int) *DiskStorage {
	if cacheSize <= 0 {
		cacheSize = 100
	}
	return &DiskStorage{
		dataDir:   dataDir,
		cache:     make(map[string]*model.RunRecord),
		cacheSize: cacheSize,
		index:     make(map[string]*RunIndex),
	}
}

func (d *DiskStorage) Init() error {
	if err := d.createDirectories(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	if err := d.loadIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	logger.Infof("Disk run storage initialized: %s (%d runs)", d.dataDir, len(d.index))
	return nil
}

func (d *DiskStorage) createDirectories() error {
	dirs := []string{
		d.dataDir,
		filepath.Join(d.dataDir, "runs"),
		filepath.Join(d.dataDir, "backup"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) indexPath() string {
	return filepath.Join(d.dataDir, "runs.json")
}

func (d *DiskStorage) runPath(runID string) string {
	return filepath.Join(d.dataDir, "runs", runID+".json")
}

func (d *DiskStorage) loadIndex() error {
	if _, err := os.Stat(d.indexPath()); os.IsNotExist(err) {
		return d.saveIndex()
	}

	data, err := os.ReadFile(d.indexPath())
	if err != nil {
		return err
	}

	var entries []*RunIndex
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	for _, e := range entries {
		d.index[e.ID] = e
	}
	return nil
}

// saveIndex 调用方需持有写锁（Init 除外）
func (d *DiskStorage) saveIndex() error {
	entries := make([]*RunIndex, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})

	return writeJSONFile(d.indexPath(), entries)
}

func (d *DiskStorage) loadRunFromFile(runID string) (*model.RunRecord, error) {
	data, err := os.ReadFile(d.runPath(runID))
	if err != nil {
		return nil, err
	}

	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &record, nil
}

// writeJSONFile 先写临时文件再 rename，避免留下半截文件
func writeJSONFile(path string, v any) error {
	tempPath := path + ".tmp"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

func (d *DiskStorage) SaveRun(record *model.RunRecord) error {
	if record == nil || record.ID == "" || filepath.Base(record.ID) != record.ID {
		return ErrInvalidData
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := writeJSONFile(d.runPath(record.ID), record); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.index[record.ID] = &RunIndex{
		ID:         record.ID,
		Kind:       record.Kind,
		Status:     record.Status,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
	}
	if err := d.saveIndex(); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	cp := *record
	d.cache[record.ID] = &cp
	d.evictCache()

	return nil
}

func (d *DiskStorage) GetRun(runID string) (*model.RunRecord, error) {
	if filepath.Base(runID) != runID {
		return nil, ErrRunNotFound
	}

	d.mu.RLock()
	if record, exists := d.cache[runID]; exists {
		cp := *record
		d.mu.RUnlock()
		return &cp, nil
	}
	d.mu.RUnlock()

	record, err := d.loadRunFromFile(runID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	cp := *record
	d.cache[runID] = &cp
	d.evictCache()
	d.mu.Unlock()

	return record, nil
}

func (d *DiskStorage) ListRuns(limit int) ([]*model.RunRecord, error) {
	d.mu.RLock()
	ids := make([]*RunIndex, 0, len(d.index))
	for _, e := range d.index {
		ids = append(ids, e)
	}
	d.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return ids[i].StartedAt.After(ids[j].StartedAt)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	records := make([]*model.RunRecord, 0, len(ids))
	for _, e := range ids {
		record, err := d.GetRun(e.ID)
		if err != nil {
			logger.Errorf("Failed to load run %s: %v", e.ID, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (d *DiskStorage) DeleteRun(runID string) error {
	if filepath.Base(runID) != runID {
		return ErrRunNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(d.runPath(runID)); os.IsNotExist(err) {
		return ErrRunNotFound
	}

	if err := os.Remove(d.runPath(runID)); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	delete(d.cache, runID)
	delete(d.index, runID)

	return d.saveIndex()
}

// evictCache 超出容量时淘汰最早结束的记录
func (d *DiskStorage) evictCache() {
	if len(d.cache) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		id         string
		finishedAt time.Time
	}

	var entries []cacheEntry
	for id, record := range d.cache {
		entries = append(entries, cacheEntry{
			id:         id,
			finishedAt: record.FinishedAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].finishedAt.Before(entries[j].finishedAt)
	})

	toEvict := len(d.cache) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.cache, entries[i].id)
	}
}

func (d *DiskStorage) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string]*model.RunRecord)
	return nil
}

func (d *DiskStorage) Backup() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	backupDir := filepath.Join(d.dataDir, "backup", fmt.Sprintf("backup_%d", time.Now().UnixNano()))
	dstDir := filepath.Join(backupDir, "runs")

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.copyDir(filepath.Join(d.dataDir, "runs"), dstDir); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	if err := d.copyFile(d.indexPath(), filepath.Join(backupDir, "runs.json")); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	logger.Infof("Backup completed: %s", backupDir)
	return nil
}

func (d *DiskStorage) copyDir(src, dst string) error {
	files, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		if err := d.copyFile(filepath.Join(src, file.Name()), filepath.Join(dst, file.Name())); err != nil {
			return err
		}
	}

	return nil
}

func (d *DiskStorage) copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}
