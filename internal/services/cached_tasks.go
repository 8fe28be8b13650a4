package services

import (
	"fmt"
	"time"

	"smart-task-manager/internal/cache"
	"smart-task-manager/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	taskListTTL = 10 * time.Minute
	taskItemTTL = 30 * time.Minute
)

// CachedTaskService decorates a TaskService with a Redis read-through
// cache. Cache failures are treated as misses; the database is the source
// of truth and every write invalidates the owner's cached entries.
type CachedTaskService struct {
	taskService TaskService
	cache       *cache.RedisCache
}

func NewCachedTaskService(taskService TaskService, cacheInstance *cache.RedisCache) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
	}
}

func userTasksKey(userID uuid.UUID) string {
	return fmt.Sprintf("user_tasks:%s", userID.String())
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id.String())
}

func (s *CachedTaskService) ListTasks(db *gorm.DB, userID uuid.UUID) ([]models.Task, error) {
	var cached []models.Task
	if err := s.cache.Get(userTasksKey(userID), &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.taskService.ListTasks(db, userID)
	if err != nil {
		return tasks, err
	}

	s.cache.Set(userTasksKey(userID), tasks, taskListTTL)

	return tasks, nil
}

func (s *CachedTaskService) GetTask(db *gorm.DB, userID, id uuid.UUID) (models.Task, error) {
	var cached models.Task
	if err := s.cache.Get(taskKey(id), &cached); err == nil {
		// Cached entries are shared storage; the ownership check still
		// applies on every read.
		if cached.UserID != userID {
			return models.Task{}, ErrNotFound
		}
		return cached, nil
	}

	task, err := s.taskService.GetTask(db, userID, id)
	if err != nil {
		return task, err
	}

	s.cache.Set(taskKey(id), task, taskItemTTL)

	return task, nil
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, userID uuid.UUID, input TaskInput) (models.Task, error) {
	task, err := s.taskService.CreateTask(db, userID, input)
	if err != nil {
		return task, err
	}

	s.cache.Set(taskKey(task.ID), task, taskItemTTL)
	s.cache.Delete(userTasksKey(userID))

	return task, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, userID, id uuid.UUID, update TaskUpdate) (models.Task, error) {
	task, err := s.taskService.UpdateTask(db, userID, id, update)
	if err != nil {
		return task, err
	}

	s.cache.Set(taskKey(id), task, taskItemTTL)
	s.cache.Delete(userTasksKey(userID))

	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, userID, id uuid.UUID) error {
	if err := s.taskService.DeleteTask(db, userID, id); err != nil {
		return err
	}

	s.cache.Delete(taskKey(id))
	s.cache.Delete(userTasksKey(userID))

	return nil
}

func (s *CachedTaskService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}
