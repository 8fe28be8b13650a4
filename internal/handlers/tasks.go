package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"smart-task-manager/internal/middleware"
	"smart-task-manager/internal/models"
	"smart-task-manager/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
	logger      *zap.Logger
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{db: db, taskService: taskService, logger: logger}
}

type CreateTaskRequest struct {
	Title       string         `json:"title" binding:"required,max=100"`
	Description string         `json:"description" binding:"max=500"`
	Status      string         `json:"status"`
	DueDate     string         `json:"dueDate" binding:"required"`
	Subtasks    []SubtaskInput `json:"subtasks"`
}

type UpdateTaskRequest struct {
	Title       *string         `json:"title" binding:"omitempty,max=100"`
	Description *string         `json:"description" binding:"omitempty,max=500"`
	Status      *string         `json:"status"`
	DueDate     *string         `json:"dueDate"`
	Subtasks    *[]SubtaskInput `json:"subtasks"`
}

type SubtaskInput struct {
	ID          string `json:"id"`
	Title       string `json:"title" binding:"required"`
	IsCompleted bool   `json:"isCompleted"`
}

// parseDueDate accepts RFC 3339 timestamps and bare dates, the two shapes
// clients send.
func parseDueDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("please provide a valid date in ISO format")
}

func (h *TaskHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized"})
		return
	}

	tasks, err := h.taskService.ListTasks(h.db, userID)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	if tasks == nil {
		tasks = []models.Task{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(tasks),
		"tasks":   tasks,
	})
}

func (h *TaskHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized"})
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Validation failed",
			"errors":  err.Error(),
		})
		return
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	input := services.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		DueDate:     dueDate,
	}
	for _, subtask := range req.Subtasks {
		input.Subtasks = append(input.Subtasks, subtask.Title)
	}

	task, err := h.taskService.CreateTask(h.db, userID, input)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"task":    task,
	})
}

func (h *TaskHandler) Update(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized"})
		return
	}

	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Task not found"})
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Validation failed",
			"errors":  err.Error(),
		})
		return
	}

	update := services.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	}

	if req.DueDate != nil {
		dueDate, err := parseDueDate(*req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		update.DueDate = &dueDate
	}

	if req.Subtasks != nil {
		subtasks := make([]models.Subtask, 0, len(*req.Subtasks))
		for _, input := range *req.Subtasks {
			subtask := models.Subtask{
				Title:       input.Title,
				IsCompleted: input.IsCompleted,
			}
			if id, err := uuid.FromString(input.ID); err == nil {
				subtask.ID = id
			}
			subtasks = append(subtasks, subtask)
		}
		update.Subtasks = &subtasks
	}

	task, err := h.taskService.UpdateTask(h.db, userID, taskID, update)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"task":    task,
	})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Not authorized"})
		return
	}

	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Task not found"})
		return
	}

	if err := h.taskService.DeleteTask(h.db, userID, taskID); err != nil {
		h.handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task deleted successfully",
	})
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Task not found",
		})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "Not authorized to access this task",
		})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": err.Error(),
		})
	default:
		h.logger.Error("task request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to process task request",
		})
	}
}
