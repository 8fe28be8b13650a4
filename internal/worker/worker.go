package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobType string

const (
	// JobTypeTaskReminder fires ahead of a task's due date.
	JobTypeTaskReminder JobType = "task_reminder"
	// JobTypeTokenCleanup purges expired refresh tokens.
	JobTypeTokenCleanup JobType = "token_cleanup"
)

const (
	DefaultQueue   = "default"
	ReminderQueue  = "reminders"
	retryQueue     = "retry_queue"
	deadQueue      = "dead_queue"
	defaultTimeout = 30 * time.Second
)

type Job struct {
	ID        string                 `json:"id"`
	Type      JobType                `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	Attempts  int                    `json:"attempts"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
	ProcessAt time.Time              `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

// Worker pulls jobs off Redis lists and dispatches them to registered
// handlers. Failed jobs retry with exponential backoff until MaxTries,
// then land on the dead queue.
type Worker struct {
	client   *redis.Client
	logger   *zap.Logger
	handlers map[JobType]JobHandler
	queues   []string
	mu       sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type WorkerConfig struct {
	RedisClient *redis.Client
	Logger      *zap.Logger
	Queues      []string
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	queues := config.Queues
	if len(queues) == 0 {
		queues = []string{DefaultQueue, ReminderQueue}
	}

	// Failed jobs wait on the retry queue; it must always have a consumer
	// or retries never run.
	hasRetry := false
	for _, q := range queues {
		if q == retryQueue {
			hasRetry = true
			break
		}
	}
	if !hasRetry {
		queues = append(queues, retryQueue)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		client:   config.RedisClient,
		logger:   logger,
		handlers: make(map[JobType]JobHandler),
		queues:   queues,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	w.logger.Info("starting worker", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}
}

func (w *Worker) Stop() {
	w.logger.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(); err != nil {
				w.logger.Error("job processing error", zap.Error(err))
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) processNextJob() error {
	result, err := w.client.BLPop(w.ctx, 5*time.Second, w.queues...).Result()
	if err != nil {
		if err == redis.Nil || w.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	queue := result[0]
	jobData := result[1]

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if time.Now().Before(job.ProcessAt) {
		// Not due yet: put it back and pause so a lone delayed job does
		// not turn the loop into a pop/push spin.
		if err := w.enqueueJob(queue, &job); err != nil {
			return err
		}

		select {
		case <-w.ctx.Done():
		case <-time.After(time.Second):
		}
		return nil
	}

	return w.executeJob(&job)
}

func (w *Worker) executeJob(job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	ctx, cancel := context.WithTimeout(w.ctx, defaultTimeout)
	defer cancel()

	err := handler(ctx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			w.logger.Warn("job failed, retrying",
				zap.String("job_id", job.ID),
				zap.Int("attempt", job.Attempts),
				zap.Error(err),
			)
			return w.retryJob(job)
		}

		w.logger.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.Error(err),
		)
		return w.moveToDeadQueue(job, err)
	}

	w.logger.Debug("job completed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	return nil
}

func (w *Worker) retryJob(job *Job) error {
	delay := time.Duration(1<<job.Attempts) * time.Minute
	job.ProcessAt = time.Now().Add(delay)

	return w.enqueueJob(retryQueue, job)
}

func (w *Worker) enqueueJob(queue string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return w.client.RPush(w.ctx, queue, jobData).Err()
}

func (w *Worker) moveToDeadQueue(job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(w.ctx, deadQueue, deadJobData).Err()
}

// JobQueue is the producer side, used by the API server to schedule work.
type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(queue string, jobType JobType, payload map[string]interface{}) error {
	return q.EnqueueAt(queue, jobType, payload, time.Now())
}

func (q *JobQueue) EnqueueAt(queue string, jobType JobType, payload map[string]interface{}, processAt time.Time) error {
	job := &Job{
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		Type:      jobType,
		Payload:   payload,
		Attempts:  0,
		MaxTries:  3,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return q.client.RPush(ctx, queue, jobData).Err()
}

func (q *JobQueue) GetQueueSize(queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}
