package worker

import (
	"context"
	"fmt"
	"time"

	"smart-task-manager/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler produces the recurring jobs: a token cleanup sweep and
// reminders for tasks coming due. It is the producer counterpart to the
// Worker's consumer loop.
type Scheduler struct {
	queue  *JobQueue
	db     *gorm.DB
	logger *zap.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

const (
	cleanupInterval  = time.Hour
	reminderInterval = 15 * time.Minute
	reminderWindow   = 24 * time.Hour
)

func NewScheduler(queue *JobQueue, db *gorm.DB, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		queue:  queue,
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	cleanupTicker := time.NewTicker(cleanupInterval)
	reminderTicker := time.NewTicker(reminderInterval)
	defer cleanupTicker.Stop()
	defer reminderTicker.Stop()

	s.enqueueCleanup()
	s.enqueueReminders()

	for {
		select {
		case <-s.stopCh:
			return
		case <-cleanupTicker.C:
			s.enqueueCleanup()
		case <-reminderTicker.C:
			s.enqueueReminders()
		}
	}
}

func (s *Scheduler) enqueueCleanup() {
	if err := s.queue.Enqueue(DefaultQueue, JobTypeTokenCleanup, nil); err != nil {
		s.logger.Warn("failed to enqueue token cleanup", zap.Error(err))
	}
}

// enqueueReminders schedules a reminder for every incomplete task due
// within the next day. A task gets at most one reminder per due date:
// a marker key claims the task before its job is queued, so repeated
// scans of the same window do not stack duplicates.
func (s *Scheduler) enqueueReminders() {
	var tasks []models.Task
	now := time.Now()
	err := s.db.
		Where("due_date BETWEEN ? AND ?", now, now.Add(reminderWindow)).
		Where("status <> ?", models.StatusCompleted).
		Find(&tasks).Error
	if err != nil {
		s.logger.Warn("failed to scan for due tasks", zap.Error(err))
		return
	}

	queued := 0
	for _, task := range tasks {
		claimed, err := s.claimReminder(task)
		if err != nil {
			s.logger.Warn("failed to claim reminder",
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !claimed {
			continue
		}

		payload := map[string]interface{}{
			"task_id":  task.ID.String(),
			"title":    task.Title,
			"due_date": task.DueDate.Format(time.RFC3339),
		}
		if err := s.queue.Enqueue(ReminderQueue, JobTypeTaskReminder, payload); err != nil {
			s.logger.Warn("failed to enqueue reminder",
				zap.String("task_id", task.ID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Debug("queued task reminders", zap.Int("count", queued))
	}
}

// claimReminder marks the task+due-date pair as reminded. Changing the
// due date yields a fresh key, so a rescheduled task is reminded again.
func (s *Scheduler) claimReminder(task models.Task) (bool, error) {
	key := fmt.Sprintf("reminder_sent:%s:%d", task.ID.String(), task.DueDate.Unix())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return s.queue.client.SetNX(ctx, key, 1, reminderWindow).Result()
}
