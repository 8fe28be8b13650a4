package services

import (
	"errors"
	"testing"
	"time"

	"smart-task-manager/internal/cache"

	"github.com/alicebob/miniredis/v2"
)

func testCache(t *testing.T) *cache.RedisCache {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	config := cache.DefaultCacheConfig()
	config.Addr = mr.Addr()
	redisCache := cache.NewRedisCache(config)
	t.Cleanup(func() { redisCache.Close() })

	return redisCache
}

func TestCachedListServedFromCache(t *testing.T) {
	db := testDB(t)
	svc := NewCachedTaskService(NewTaskService(), testCache(t))
	alice := mustCreateUser(t, db, "alice@example.com")

	task, err := svc.CreateTask(db, alice, TaskInput{Title: "cached", DueDate: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	// First list populates the cache.
	if _, err := svc.ListTasks(db, alice); err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}

	// Remove the row behind the cache's back; the cached list still
	// serves it, proving the second read never hit the database.
	if err := db.Exec("DELETE FROM tasks WHERE id = ?", task.ID).Error; err != nil {
		t.Fatal(err)
	}

	tasks, err := svc.ListTasks(db, alice)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(tasks) = %d, want 1 from cache", len(tasks))
	}
}

func TestCachedWritesInvalidateList(t *testing.T) {
	db := testDB(t)
	svc := NewCachedTaskService(NewTaskService(), testCache(t))
	alice := mustCreateUser(t, db, "alice@example.com")

	first, err := svc.CreateTask(db, alice, TaskInput{Title: "first", DueDate: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ListTasks(db, alice); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteTask(db, alice, first.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}

	tasks, err := svc.ListTasks(db, alice)
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("len(tasks) = %d, want 0 after invalidation", len(tasks))
	}
}

func TestCachedGetChecksOwnership(t *testing.T) {
	db := testDB(t)
	svc := NewCachedTaskService(NewTaskService(), testCache(t))
	alice := mustCreateUser(t, db, "alice@example.com")
	bob := mustCreateUser(t, db, "bob@example.com")

	task, err := svc.CreateTask(db, alice, TaskInput{Title: "private", DueDate: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}

	// Warm the item cache as the owner.
	if _, err := svc.GetTask(db, alice, task.ID); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}

	// A cache hit must not leak another user's task.
	if _, err := svc.GetTask(db, bob, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTask() as non-owner: error = %v, want ErrNotFound", err)
	}
}

func TestCachedServiceSurvivesRedisOutage(t *testing.T) {
	db := testDB(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	config := cache.DefaultCacheConfig()
	config.Addr = mr.Addr()
	config.MaxRetries = 0
	config.DialTimeout = 100 * time.Millisecond
	config.ReadTimeout = 100 * time.Millisecond
	config.WriteTimeout = 100 * time.Millisecond
	redisCache := cache.NewRedisCache(config)
	t.Cleanup(func() { redisCache.Close() })

	svc := NewCachedTaskService(NewTaskService(), redisCache)
	alice := mustCreateUser(t, db, "alice@example.com")

	mr.Close()

	// Every operation falls through to the database.
	task, err := svc.CreateTask(db, alice, TaskInput{Title: "no redis", DueDate: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("CreateTask() with redis down: error = %v", err)
	}

	tasks, err := svc.ListTasks(db, alice)
	if err != nil {
		t.Fatalf("ListTasks() with redis down: error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("unexpected tasks with redis down: %+v", tasks)
	}
}
