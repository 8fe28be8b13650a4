package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smart-task-manager/internal/client/localstore"

	"github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
)

// ErrNotCached is returned when an offline write targets a task the
// local cache has never seen.
var ErrNotCached = errors.New("task not in local cache")

// TaskInput is the payload for creating a task.
type TaskInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	DueDate     string    `json:"dueDate"`
	Subtasks    []Subtask `json:"subtasks,omitempty"`
}

// TaskUpdate carries a partial update. Nil fields are left untouched.
type TaskUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	DueDate     *string    `json:"dueDate,omitempty"`
	Subtasks    *[]Subtask `json:"subtasks,omitempty"`
}

// TaskClient reads and writes tasks remote-first, keeping the local
// cache as a mirror. When the server is unreachable, reads serve the
// mirror and writes apply to it while queueing for later replay.
type TaskClient struct {
	api    *API
	store  *localstore.Store
	logger *zap.Logger
	newID  func() string
}

func NewTaskClient(api *API, store *localstore.Store, logger *zap.Logger) (*TaskClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize id generator: %w", err)
	}

	return &TaskClient{
		api:    api,
		store:  store,
		logger: logger,
		newID:  func() string { return "task-" + gen() },
	}, nil
}

// IsLocalID reports whether id was minted client-side and has not yet
// been replaced by a server-assigned one.
func IsLocalID(id string) bool {
	return len(id) > 5 && id[:5] == "task-"
}

type listResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Tasks   []Task `json:"tasks"`
}

type taskResponse struct {
	Success bool `json:"success"`
	Task    Task `json:"task"`
}

// List returns the user's tasks, server order. If the server is
// unreachable it serves the last cached list instead.
func (t *TaskClient) List(ctx context.Context) ([]Task, error) {
	var resp listResponse
	err := t.api.Get(ctx, "/api/tasks", &resp)
	if err == nil {
		if resp.Tasks == nil {
			resp.Tasks = []Task{}
		}
		t.cacheList(resp.Tasks)
		return resp.Tasks, nil
	}

	if errors.Is(err, ErrUnreachable) {
		t.logger.Debug("task list fetch failed, serving cache", zap.Error(err))
		return t.cachedTasks()
	}
	return nil, err
}

func (t *TaskClient) Create(ctx context.Context, input TaskInput) (Task, error) {
	var resp taskResponse
	err := t.api.Post(ctx, "/api/tasks", input, &resp)
	if err == nil {
		t.mutateCache(func(tasks []Task) []Task {
			return append([]Task{resp.Task}, tasks...)
		})
		return resp.Task, nil
	}

	if !errors.Is(err, ErrUnreachable) {
		return Task{}, err
	}

	// Offline: mint a local task now and queue the create for replay.
	// Subtasks keep empty ids until the server assigns real ones.
	task := Task{
		ID:          t.newID(),
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		CreatedAt:   time.Now(),
		Subtasks:    append([]Subtask{}, input.Subtasks...),
	}
	if task.Status == "" {
		task.Status = "Pending"
	}
	if due, perr := parseClientDate(input.DueDate); perr == nil {
		task.DueDate = due
	}

	payload, merr := json.Marshal(input)
	if merr != nil {
		return Task{}, merr
	}
	if qerr := t.store.AppendPending(localstore.OpCreate, task.ID, payload); qerr != nil {
		return Task{}, qerr
	}

	t.mutateCache(func(tasks []Task) []Task {
		return append([]Task{task}, tasks...)
	})

	t.logger.Info("created task offline", zap.String("task_id", task.ID))
	return task, nil
}

func (t *TaskClient) Update(ctx context.Context, id string, update TaskUpdate) (Task, error) {
	if !IsLocalID(id) {
		var resp taskResponse
		err := t.api.Put(ctx, "/api/tasks/"+id, update, &resp)
		if err == nil {
			t.mutateCache(func(tasks []Task) []Task {
				for i := range tasks {
					if tasks[i].ID == id {
						tasks[i] = resp.Task
					}
				}
				return tasks
			})
			return resp.Task, nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return Task{}, err
		}
	}

	// Offline, or the task only exists locally: patch the cached copy.
	updated, found := t.applyUpdateLocally(id, update)
	if !found {
		return Task{}, ErrNotCached
	}

	payload, merr := json.Marshal(update)
	if merr != nil {
		return Task{}, merr
	}
	if qerr := t.store.AppendPending(localstore.OpUpdate, id, payload); qerr != nil {
		return Task{}, qerr
	}

	t.logger.Info("updated task offline", zap.String("task_id", id))
	return updated, nil
}

func (t *TaskClient) Delete(ctx context.Context, id string) error {
	if !IsLocalID(id) {
		err := t.api.Delete(ctx, "/api/tasks/"+id, nil)
		if err == nil {
			t.removeFromCache(id)
			return nil
		}
		if !errors.Is(err, ErrUnreachable) {
			return err
		}
	}

	t.removeFromCache(id)
	if err := t.store.AppendPending(localstore.OpDelete, id, nil); err != nil {
		return err
	}

	t.logger.Info("deleted task offline", zap.String("task_id", id))
	return nil
}

// Sync replays queued offline writes in order. It stops at the first
// transport failure so order is preserved for the next attempt; writes
// the server actively rejects are dropped with a warning, since
// retrying them can never succeed. Returns the number of ops replayed.
func (t *TaskClient) Sync(ctx context.Context) (int, error) {
	ops, err := t.store.PendingOps()
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, op := range ops {
		if err := t.replayOp(ctx, op); err != nil {
			if errors.Is(err, ErrUnreachable) {
				return replayed, err
			}

			t.logger.Warn("server rejected queued write, dropping",
				zap.String("kind", op.Kind),
				zap.String("task_id", op.TaskID),
				zap.Error(err),
			)
		}

		if err := t.store.DeletePending(op.ID); err != nil {
			return replayed, err
		}
		replayed++
	}

	// Refresh the mirror so local edits converge with server state.
	if replayed > 0 {
		if _, err := t.List(ctx); err != nil && !errors.Is(err, ErrUnreachable) {
			t.logger.Warn("post-sync refresh failed", zap.Error(err))
		}
	}
	return replayed, nil
}

func (t *TaskClient) replayOp(ctx context.Context, op localstore.PendingOp) error {
	switch op.Kind {
	case localstore.OpCreate:
		var input TaskInput
		if err := json.Unmarshal(op.Payload, &input); err != nil {
			return err
		}

		var resp taskResponse
		if err := t.api.Post(ctx, "/api/tasks", input, &resp); err != nil {
			return err
		}

		// Later queued ops may still reference the local id.
		if err := t.store.RemapPendingTaskID(op.TaskID, resp.Task.ID); err != nil {
			return err
		}
		t.mutateCache(func(tasks []Task) []Task {
			for i := range tasks {
				if tasks[i].ID == op.TaskID {
					tasks[i] = resp.Task
				}
			}
			return tasks
		})
		return nil

	case localstore.OpUpdate:
		if IsLocalID(op.TaskID) {
			// The create that would have produced a server id was
			// dropped; nothing to update.
			return fmt.Errorf("update targets unsynced local task %s", op.TaskID)
		}
		var resp taskResponse
		return t.api.Put(ctx, "/api/tasks/"+op.TaskID, json.RawMessage(op.Payload), &resp)

	case localstore.OpDelete:
		if IsLocalID(op.TaskID) {
			return nil
		}
		err := t.api.Delete(ctx, "/api/tasks/"+op.TaskID, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			// Already gone; the delete achieved its goal.
			return nil
		}
		return err

	default:
		return fmt.Errorf("unknown pending op kind %q", op.Kind)
	}
}

func (t *TaskClient) PendingCount() (int, error) {
	ops, err := t.store.PendingOps()
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (t *TaskClient) cachedTasks() ([]Task, error) {
	docs, err := t.store.Tasks()
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		var task Task
		if err := json.Unmarshal(doc, &task); err != nil {
			t.logger.Warn("corrupt cached task, skipping", zap.Error(err))
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (t *TaskClient) cacheList(tasks []Task) {
	docs := make(map[string][]byte, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, task := range tasks {
		data, err := json.Marshal(task)
		if err != nil {
			continue
		}
		docs[task.ID] = data
		order = append(order, task.ID)
	}

	if err := t.store.SaveTasks(docs, order); err != nil {
		t.logger.Warn("failed to cache task list", zap.Error(err))
	}
}

func (t *TaskClient) mutateCache(fn func([]Task) []Task) {
	tasks, err := t.cachedTasks()
	if err != nil {
		t.logger.Warn("failed to read task cache", zap.Error(err))
		return
	}
	t.cacheList(fn(tasks))
}

func (t *TaskClient) removeFromCache(id string) {
	t.mutateCache(func(tasks []Task) []Task {
		kept := tasks[:0]
		for _, task := range tasks {
			if task.ID != id {
				kept = append(kept, task)
			}
		}
		return kept
	})
}

func (t *TaskClient) applyUpdateLocally(id string, update TaskUpdate) (Task, bool) {
	var updated Task
	found := false

	t.mutateCache(func(tasks []Task) []Task {
		for i := range tasks {
			if tasks[i].ID != id {
				continue
			}

			if update.Title != nil {
				tasks[i].Title = *update.Title
			}
			if update.Description != nil {
				tasks[i].Description = *update.Description
			}
			if update.Status != nil {
				tasks[i].Status = *update.Status
			}
			if update.DueDate != nil {
				if due, err := parseClientDate(*update.DueDate); err == nil {
					tasks[i].DueDate = due
				}
			}
			if update.Subtasks != nil {
				tasks[i].Subtasks = *update.Subtasks
			}

			updated = tasks[i]
			found = true
		}
		return tasks
	})

	return updated, found
}

func parseClientDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
