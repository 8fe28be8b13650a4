package localstore

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store is the client's persistent fallback state: a small SQLite file
// holding the session keys, the last successfully fetched task list, and
// the queue of writes made while the server was unreachable.
type Store struct {
	db *gorm.DB
}

// Entry is a simple key/value row (token, user profile).
type Entry struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TaskRow caches one task document in list order.
type TaskRow struct {
	ID       string `gorm:"primaryKey"`
	Position int    `gorm:"index"`
	Data     []byte
}

// PendingOp is a write that has not reached the server yet. Ops replay
// in insertion order.
type PendingOp struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Kind      string `gorm:"not null"`
	TaskID    string `gorm:"index"`
	Payload   []byte
	CreatedAt time.Time
}

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := db.AutoMigrate(&Entry{}, &TaskRow{}, &PendingOp{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local store: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(key string) (string, bool, error) {
	var entry Entry
	err := s.db.First(&entry, "key = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.Value, true, nil
}

func (s *Store) Set(key, value string) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&Entry{Key: key, Value: value}).Error
}

func (s *Store) Delete(key string) error {
	return s.db.Delete(&Entry{}, "key = ?", key).Error
}

// Tasks returns the cached task documents in list order.
func (s *Store) Tasks() ([][]byte, error) {
	var rows []TaskRow
	if err := s.db.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	docs := make([][]byte, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.Data)
	}
	return docs, nil
}

// SaveTasks replaces the whole cached list, mirroring how the browser
// client rewrote its serialized task array on every change.
func (s *Store) SaveTasks(docs map[string][]byte, order []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&TaskRow{}).Error; err != nil {
			return err
		}

		for position, id := range order {
			row := TaskRow{ID: id, Position: position, Data: docs[id]}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ClearTasks() error {
	return s.db.Where("1 = 1").Delete(&TaskRow{}).Error
}

func (s *Store) AppendPending(kind, taskID string, payload []byte) error {
	return s.db.Create(&PendingOp{
		Kind:      kind,
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}).Error
}

func (s *Store) PendingOps() ([]PendingOp, error) {
	var ops []PendingOp
	err := s.db.Order("id ASC").Find(&ops).Error
	return ops, err
}

func (s *Store) DeletePending(id uint) error {
	return s.db.Delete(&PendingOp{}, id).Error
}

func (s *Store) ClearPending() error {
	return s.db.Where("1 = 1").Delete(&PendingOp{}).Error
}

// RemapPendingTaskID rewrites queued ops after a locally created task
// gets its server-assigned ID during replay.
func (s *Store) RemapPendingTaskID(oldID, newID string) error {
	return s.db.Model(&PendingOp{}).
		Where("task_id = ?", oldID).
		Update("task_id", newID).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
