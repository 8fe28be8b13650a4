package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"smart-task-manager/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskService interface {
	ListTasks(db *gorm.DB, userID uuid.UUID) ([]models.Task, error)
	GetTask(db *gorm.DB, userID, id uuid.UUID) (models.Task, error)
	CreateTask(db *gorm.DB, userID uuid.UUID, input TaskInput) (models.Task, error)
	UpdateTask(db *gorm.DB, userID, id uuid.UUID, update TaskUpdate) (models.Task, error)
	DeleteTask(db *gorm.DB, userID, id uuid.UUID) error
}

// TaskInput carries a validated create request.
type TaskInput struct {
	Title       string
	Description string
	Status      string
	DueDate     time.Time
	Subtasks    []string
}

// TaskUpdate carries a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	DueDate     *time.Time
	Subtasks    *[]models.Subtask
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(title) > 100 {
		return "", fmt.Errorf("%w: title cannot be more than 100 characters", ErrValidation)
	}
	return title, nil
}

func validateDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if len(description) > 500 {
		return "", fmt.Errorf("%w: description cannot be more than 500 characters", ErrValidation)
	}
	return description, nil
}

func (s *TaskServiceImpl) ListTasks(db *gorm.DB, userID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := db.Preload("Subtasks").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}

// GetTask hides existence from non-owners: a task owned by someone else
// reads as not found.
func (s *TaskServiceImpl) GetTask(db *gorm.DB, userID, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := db.Preload("Subtasks").First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrNotFound
		}
		return models.Task{}, err
	}

	if task.UserID != userID {
		return models.Task{}, ErrNotFound
	}

	return task, nil
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, userID uuid.UUID, input TaskInput) (models.Task, error) {
	title, err := validateTitle(input.Title)
	if err != nil {
		return models.Task{}, err
	}

	description, err := validateDescription(input.Description)
	if err != nil {
		return models.Task{}, err
	}

	status := input.Status
	if status == "" {
		status = models.StatusPending
	}
	if !models.ValidStatus(status) {
		return models.Task{}, fmt.Errorf("%w: status must be one of: Pending, In Progress, Completed", ErrValidation)
	}

	if input.DueDate.IsZero() {
		return models.Task{}, fmt.Errorf("%w: due date is required", ErrValidation)
	}

	task := models.Task{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      userID,
		Title:       title,
		Description: description,
		Status:      status,
		DueDate:     input.DueDate,
	}

	for _, subtaskTitle := range input.Subtasks {
		subtaskTitle = strings.TrimSpace(subtaskTitle)
		if subtaskTitle == "" {
			continue
		}
		task.Subtasks = append(task.Subtasks, models.Subtask{
			ID:     uuid.Must(uuid.NewV4()),
			TaskID: task.ID,
			Title:  subtaskTitle,
		})
	}

	if err := db.Create(&task).Error; err != nil {
		return models.Task{}, err
	}

	return task, nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, userID, id uuid.UUID, update TaskUpdate) (models.Task, error) {
	var task models.Task
	err := db.Preload("Subtasks").First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Task{}, ErrNotFound
		}
		return models.Task{}, err
	}

	if task.UserID != userID {
		return models.Task{}, ErrForbidden
	}

	if update.Title != nil {
		title, err := validateTitle(*update.Title)
		if err != nil {
			return models.Task{}, err
		}
		task.Title = title
	}

	if update.Description != nil {
		description, err := validateDescription(*update.Description)
		if err != nil {
			return models.Task{}, err
		}
		task.Description = description
	}

	if update.Status != nil {
		if !models.ValidStatus(*update.Status) {
			return models.Task{}, fmt.Errorf("%w: status must be one of: Pending, In Progress, Completed", ErrValidation)
		}
		task.Status = *update.Status
	}

	if update.DueDate != nil {
		if update.DueDate.IsZero() {
			return models.Task{}, fmt.Errorf("%w: due date must be a valid date", ErrValidation)
		}
		task.DueDate = *update.DueDate
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if update.Subtasks != nil {
			if err := tx.Where("task_id = ?", task.ID).Delete(&models.Subtask{}).Error; err != nil {
				return err
			}

			subtasks := make([]models.Subtask, 0, len(*update.Subtasks))
			for _, subtask := range *update.Subtasks {
				if subtask.ID == uuid.Nil {
					subtask.ID = uuid.Must(uuid.NewV4())
				}
				subtask.TaskID = task.ID
				subtasks = append(subtasks, subtask)
			}
			task.Subtasks = subtasks

			if len(subtasks) > 0 {
				if err := tx.Create(&subtasks).Error; err != nil {
					return err
				}
			}
		}

		return tx.Omit("Subtasks").Save(&task).Error
	})
	if err != nil {
		return models.Task{}, err
	}

	return task, nil
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, userID, id uuid.UUID) error {
	var task models.Task
	err := db.First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if task.UserID != userID {
		return ErrForbidden
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Subtask{}).Error; err != nil {
			return err
		}
		return tx.Delete(&task).Error
	})
}
