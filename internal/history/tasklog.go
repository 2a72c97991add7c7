package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-service/internal/models"
)

// DefaultRetention is how long a task entry survives without updates.
const DefaultRetention = 7 * 24 * time.Hour

// TaskEntry is one task in the durable history.
type TaskEntry struct {
	DeviceID    string      `json:"device_id"`
	RobotID     string      `json:"robot_id"`
	Task        models.Task `json:"task"`
	FirstSeen   time.Time   `json:"first_seen"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Repository persists task entries across restarts.
type Repository interface {
	LoadTasks(ctx context.Context) ([]TaskEntry, error)
	UpsertTask(ctx context.Context, e TaskEntry) error
	PruneTasks(ctx context.Context, before time.Time) error
}

type robotTasks map[string]TaskEntry

// TaskLog accumulates every assigned task, keyed by device, robot and task id.
type TaskLog struct {
	repo      Repository
	retention time.Duration
	mu        sync.RWMutex
	devices   map[string]map[string]robotTasks
}

func NewTaskLog(repo Repository, retention time.Duration) *TaskLog {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &TaskLog{
		repo:      repo,
		retention: retention,
		devices:   make(map[string]map[string]robotTasks),
	}
}

// Load fills the in-memory view from the repository.
func (l *TaskLog) Load(ctx context.Context) error {
	entries, err := l.repo.LoadTasks(ctx)
	if err != nil {
		return fmt.Errorf("load task history: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range entries {
		l.put(e)
	}
	return nil
}

func (l *TaskLog) put(e TaskEntry) {
	robots, ok := l.devices[e.DeviceID]
	if !ok {
		robots = make(map[string]robotTasks)
		l.devices[e.DeviceID] = robots
	}
	tasks, ok := robots[e.RobotID]
	if !ok {
		tasks = make(robotTasks)
		robots[e.RobotID] = tasks
	}
	tasks[e.Task.ID] = e
}

// Record merges task into the log, keeping the first-seen time of an
// existing entry, then prunes entries older than the retention window.
func (l *TaskLog) Record(ctx context.Context, deviceID, robotID string, task models.Task, now time.Time) (TaskEntry, error) {
	if task.ID == "" {
		return TaskEntry{}, fmt.Errorf("task without id")
	}

	l.mu.Lock()
	entry := TaskEntry{
		DeviceID:    deviceID,
		RobotID:     robotID,
		Task:        task.Clone(),
		FirstSeen:   now,
		LastUpdated: now,
	}
	if prev, ok := l.devices[deviceID][robotID][task.ID]; ok {
		entry.FirstSeen = prev.FirstSeen
	}
	l.put(entry)
	cutoff := now.Add(-l.retention)
	l.pruneLocked(cutoff)
	l.mu.Unlock()

	if err := l.repo.UpsertTask(ctx, entry); err != nil {
		return entry, fmt.Errorf("persist task %s: %w", task.ID, err)
	}
	if err := l.repo.PruneTasks(ctx, cutoff); err != nil {
		return entry, fmt.Errorf("prune task history: %w", err)
	}
	return entry, nil
}

func (l *TaskLog) pruneLocked(cutoff time.Time) {
	for deviceID, robots := range l.devices {
		for robotID, tasks := range robots {
			for id, e := range tasks {
				if e.LastUpdated.Before(cutoff) {
					delete(tasks, id)
				}
			}
			if len(tasks) == 0 {
				delete(robots, robotID)
			}
		}
		if len(robots) == 0 {
			delete(l.devices, deviceID)
		}
	}
}

// Device lists a device's entries, most recently updated first.
func (l *TaskLog) Device(deviceID string) []TaskEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []TaskEntry
	for _, tasks := range l.devices[deviceID] {
		for _, e := range tasks {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

// MemoryRepository keeps entries in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	entries map[string]TaskEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]TaskEntry)}
}

func memoryKey(e TaskEntry) string {
	return e.DeviceID + "/" + e.RobotID + "/" + e.Task.ID
}

func (m *MemoryRepository) LoadTasks(_ context.Context) ([]TaskEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryRepository) UpsertTask(_ context.Context, e TaskEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[memoryKey(e)] = e
	return nil
}

func (m *MemoryRepository) PruneTasks(_ context.Context, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.LastUpdated.Before(before) {
			delete(m.entries, k)
		}
	}
	return nil
}
