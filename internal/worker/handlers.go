package worker

import (
	"context"

	"smart-task-manager/internal/services"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterDefaultHandlers wires the job types the API server produces.
func RegisterDefaultHandlers(w *Worker, db *gorm.DB, logger *zap.Logger) {
	w.RegisterHandler(JobTypeTaskReminder, TaskReminderHandler(logger))
	w.RegisterHandler(JobTypeTokenCleanup, TokenCleanupHandler(db, logger))
}

// TaskReminderHandler surfaces an upcoming due date. Delivery is a log
// line for now; an email or push channel plugs in here.
func TaskReminderHandler(logger *zap.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		taskID, _ := job.Payload["task_id"].(string)
		title, _ := job.Payload["title"].(string)
		dueDate, _ := job.Payload["due_date"].(string)

		logger.Info("task due soon",
			zap.String("task_id", taskID),
			zap.String("title", title),
			zap.String("due_date", dueDate),
		)
		return nil
	}
}

func TokenCleanupHandler(db *gorm.DB, logger *zap.Logger) JobHandler {
	return func(ctx context.Context, job *Job) error {
		purged, err := services.PurgeExpiredTokens(db.WithContext(ctx))
		if err != nil {
			return err
		}

		if purged > 0 {
			logger.Info("purged expired refresh tokens", zap.Int64("count", purged))
		}
		return nil
	}
}
