package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"smart-task-manager/internal/client/localstore"
)

func testStore(t *testing.T) *localstore.Store {
	t.Helper()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// deadServerURL returns a base URL nothing listens on.
func deadServerURL(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

// fakeBackend is an in-memory stand-in for the task server.
type fakeBackend struct {
	mu      sync.Mutex
	tasks   []Task
	nextID  int
	updates map[string]TaskUpdate
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{updates: make(map[string]TaskUpdate)}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"token":         "test-token",
			"refresh_token": "test-refresh",
			"user":          Profile{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		})
	})

	mux.HandleFunc("GET /api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"user":    Profile{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		})
	})

	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"count":   len(b.tasks),
			"tasks":   b.tasks,
		})
	})

	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		var input TaskInput
		json.NewDecoder(r.Body).Decode(&input)

		b.mu.Lock()
		b.nextID++
		subtasks := make([]Subtask, 0, len(input.Subtasks))
		for i, st := range input.Subtasks {
			subtasks = append(subtasks, Subtask{
				ID:          fmt.Sprintf("sub-%d-%d", b.nextID, i+1),
				Title:       st.Title,
				IsCompleted: st.IsCompleted,
			})
		}
		task := Task{
			ID:        fmt.Sprintf("srv-%d", b.nextID),
			Title:     input.Title,
			Status:    "Pending",
			CreatedAt: time.Now(),
			Subtasks:  subtasks,
		}
		b.tasks = append([]Task{task}, b.tasks...)
		b.mu.Unlock()

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"task":    task,
		})
	})

	mux.HandleFunc("PUT /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var update TaskUpdate
		json.NewDecoder(r.Body).Decode(&update)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.updates[id] = update
		for i := range b.tasks {
			if b.tasks[i].ID == id {
				if update.Title != nil {
					b.tasks[i].Title = *update.Title
				}
				if update.Status != nil {
					b.tasks[i].Status = *update.Status
				}
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"success": true,
					"task":    b.tasks[i],
				})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Task not found",
		})
	})

	mux.HandleFunc("DELETE /api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.tasks {
			if b.tasks[i].ID == id {
				b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"success": true,
					"message": "Task deleted successfully",
				})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"success": false,
			"message": "Task not found",
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTaskClient(t *testing.T, baseURL string, store *localstore.Store) *TaskClient {
	t.Helper()

	tc, err := NewTaskClient(NewAPI(baseURL), store, nil)
	if err != nil {
		t.Fatalf("NewTaskClient() error = %v", err)
	}
	return tc
}

func TestListFallsBackToCacheWhenUnreachable(t *testing.T) {
	backend := newFakeBackend()
	backend.tasks = []Task{
		{ID: "srv-1", Title: "one", Status: "Pending"},
		{ID: "srv-2", Title: "two", Status: "Completed"},
	}
	server := httptest.NewServer(backend.handler())
	store := testStore(t)
	tc := newTaskClient(t, server.URL, store)

	ctx := context.Background()
	tasks, err := tc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("len(tasks) = %d, want 2", len(tasks))
	}

	server.Close()

	cached, err := tc.List(ctx)
	if err != nil {
		t.Fatalf("List() after outage: error = %v", err)
	}
	if len(cached) != 2 || cached[0].ID != "srv-1" {
		t.Errorf("cached list = %+v", cached)
	}
}

func TestServerRejectionsAreNotMaskedByCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Failed to process task request",
		})
	}))
	defer server.Close()

	tc := newTaskClient(t, server.URL, testStore(t))

	_, err := tc.List(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("List() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.Status)
	}
}

func TestOfflineCreateQueuesAndSyncReplays(t *testing.T) {
	store := testStore(t)
	offline := newTaskClient(t, deadServerURL(t), store)

	ctx := context.Background()
	task, err := offline.Create(ctx, TaskInput{Title: "offline task", DueDate: "2026-09-15"})
	if err != nil {
		t.Fatalf("Create() offline: error = %v", err)
	}
	if !IsLocalID(task.ID) {
		t.Errorf("offline create id = %q, want local id", task.ID)
	}
	if task.Status != "Pending" {
		t.Errorf("offline default status = %q", task.Status)
	}

	if count, _ := offline.PendingCount(); count != 1 {
		t.Fatalf("pending = %d, want 1", count)
	}

	// The server comes back; a client over the same store pushes the queue.
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	online := newTaskClient(t, server.URL, store)
	replayed, err := online.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if replayed != 1 {
		t.Errorf("replayed = %d, want 1", replayed)
	}

	if count, _ := online.PendingCount(); count != 0 {
		t.Errorf("pending after sync = %d, want 0", count)
	}

	tasks, err := online.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || IsLocalID(tasks[0].ID) {
		t.Errorf("post-sync tasks = %+v, want one server-assigned task", tasks)
	}
}

func TestCreateCarriesSubtasks(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	tc := newTaskClient(t, server.URL, testStore(t))

	input := TaskInput{
		Title:   "plan launch",
		DueDate: "2026-09-15",
		Subtasks: []Subtask{
			{Title: "write announcement"},
			{Title: "schedule post"},
		},
	}
	task, err := tc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// The subtasks go out in the create payload, no follow-up update.
	if len(task.Subtasks) != 2 {
		t.Fatalf("len(subtasks) = %d, want 2", len(task.Subtasks))
	}
	if task.Subtasks[0].Title != "write announcement" || task.Subtasks[0].ID == "" {
		t.Errorf("subtask = %+v, want server-assigned id and title intact", task.Subtasks[0])
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.updates) != 0 {
		t.Errorf("create issued %d update calls, want 0", len(backend.updates))
	}
}

func TestOfflineCreateMirrorsSubtasks(t *testing.T) {
	store := testStore(t)
	offline := newTaskClient(t, deadServerURL(t), store)

	ctx := context.Background()
	input := TaskInput{
		Title:    "pack for trip",
		DueDate:  "2026-09-15",
		Subtasks: []Subtask{{Title: "book taxi"}},
	}
	task, err := offline.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create() offline: error = %v", err)
	}
	if len(task.Subtasks) != 1 || task.Subtasks[0].Title != "book taxi" {
		t.Fatalf("offline subtasks = %+v", task.Subtasks)
	}

	// The replayed create must carry them to the server too.
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	online := newTaskClient(t, server.URL, store)
	if _, err := online.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	tasks, err := online.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || len(tasks[0].Subtasks) != 1 {
		t.Fatalf("post-sync tasks = %+v, want one task with its subtask", tasks)
	}
	if tasks[0].Subtasks[0].ID == "" {
		t.Error("synced subtask should have a server-assigned id")
	}
}

func TestSyncRemapsLocalIDsAcrossOps(t *testing.T) {
	store := testStore(t)
	offline := newTaskClient(t, deadServerURL(t), store)

	ctx := context.Background()
	task, err := offline.Create(ctx, TaskInput{Title: "draft", DueDate: "2026-09-15"})
	if err != nil {
		t.Fatal(err)
	}

	title := "final"
	if _, err := offline.Update(ctx, task.ID, TaskUpdate{Title: &title}); err != nil {
		t.Fatalf("Update() offline: error = %v", err)
	}

	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	online := newTaskClient(t, server.URL, store)
	replayed, err := online.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if replayed != 2 {
		t.Errorf("replayed = %d, want 2", replayed)
	}

	// The queued update must have targeted the server-assigned ID.
	backend.mu.Lock()
	update, ok := backend.updates["srv-1"]
	backend.mu.Unlock()
	if !ok {
		t.Fatal("update was not remapped to the server id")
	}
	if update.Title == nil || *update.Title != "final" {
		t.Errorf("replayed update = %+v", update)
	}
}

func TestOfflineCreateThenDeleteCancelsOut(t *testing.T) {
	store := testStore(t)
	offline := newTaskClient(t, deadServerURL(t), store)

	ctx := context.Background()
	task, err := offline.Create(ctx, TaskInput{Title: "ephemeral", DueDate: "2026-09-15"})
	if err != nil {
		t.Fatal(err)
	}
	if err := offline.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete() offline: error = %v", err)
	}

	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	// The create replays first and the remapped delete removes it again.
	online := newTaskClient(t, server.URL, store)
	if _, err := online.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	tasks, err := online.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks after sync = %+v, want none", tasks)
	}
}

func TestSessionProfileFallsBackWhenUnreachable(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.handler())
	store := testStore(t)

	api := NewAPI(server.URL)
	session := NewSessionManager(api, store, nil)

	ctx := context.Background()
	if _, err := session.Login(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	server.Close()

	profile, err := session.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile() after outage: error = %v", err)
	}
	if profile.Email != "alice@example.com" {
		t.Errorf("cached profile = %+v", profile)
	}

	if !session.Current().Authenticated() {
		t.Error("outage must not sign the user out")
	}
}

func TestSessionClearsOnTokenRejection(t *testing.T) {
	store := testStore(t)
	store.Set("token", "stale-token")
	store.Set("user", `{"id":"u1","name":"Alice","email":"alice@example.com"}`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Not authorized, token is invalid or expired",
		})
	}))
	defer server.Close()

	api := NewAPI(server.URL)
	session := NewSessionManager(api, store, nil)

	notified := false
	cancel := session.Subscribe(func(s Session) { notified = true })
	defer cancel()

	if _, err := session.Profile(context.Background()); err == nil {
		t.Fatal("Profile() should surface the 401")
	}

	if session.Current().Authenticated() {
		t.Error("session should be cleared after token rejection")
	}
	if !notified {
		t.Error("subscribers should hear about the sign-out")
	}
}

func TestSessionSurvivesUnrelated401(t *testing.T) {
	store := testStore(t)
	store.Set("token", "good-token")
	store.Set("user", `{"id":"u1","name":"Alice","email":"alice@example.com"}`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"message": "Upstream quota exceeded",
		})
	}))
	defer server.Close()

	api := NewAPI(server.URL)
	session := NewSessionManager(api, store, nil)

	if _, err := session.Profile(context.Background()); err == nil {
		t.Fatal("Profile() should surface the 401")
	}

	if !session.Current().Authenticated() {
		t.Error("a 401 that does not implicate the token must not sign the user out")
	}
}

func TestLogoutClearsLocalStateEvenOffline(t *testing.T) {
	store := testStore(t)
	store.Set("token", "token")
	store.Set("refresh_token", "refresh")
	store.Set("user", `{"id":"u1","name":"Alice","email":"alice@example.com"}`)

	api := NewAPI(deadServerURL(t))
	session := NewSessionManager(api, store, nil)

	if err := session.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if session.Current().Authenticated() {
		t.Error("logout must clear local state even when the server is down")
	}
}
