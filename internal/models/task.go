package models

import (
	"time"

	"github.com/gofrs/uuid"
)

const (
	StatusPending    = "Pending"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// ValidStatus reports whether s is one of the closed task status set.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Task struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description"`
	Status      string    `json:"status" gorm:"not null;default:'Pending'"`
	DueDate     time.Time `json:"dueDate" gorm:"not null"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Subtasks []Subtask `json:"subtasks" gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE"`
}

type Subtask struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID      uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Title       string    `json:"title" gorm:"not null"`
	IsCompleted bool      `json:"isCompleted" gorm:"not null;default:false"`
}
