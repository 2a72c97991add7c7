package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-service/internal/history"
	"fleet-service/internal/models"
)

// TaskRepository stores the durable task history.
type TaskRepository struct {
	conn Conn
}

func NewTaskRepository(conn Conn) *TaskRepository {
	return &TaskRepository{conn: conn}
}

// LoadTasks returns every stored entry, oldest first.
func (r *TaskRepository) LoadTasks(ctx context.Context) ([]history.TaskEntry, error) {
	query := `
	SELECT device_id, robot_id, task, first_seen, last_updated
	FROM task_history
	ORDER BY first_seen`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var entries []history.TaskEntry
	for rows.Next() {
		var e history.TaskEntry
		var raw []byte
		if err := rows.Scan(&e.DeviceID, &e.RobotID, &raw, &e.FirstSeen, &e.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan task history: %w", err)
		}
		var t models.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("failed to decode task %s/%s: %w", e.DeviceID, e.RobotID, err)
		}
		e.Task = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task history: %w", err)
	}
	return entries, nil
}

// UpsertTask inserts e or replaces the stored task, keeping first_seen.
func (r *TaskRepository) UpsertTask(ctx context.Context, e history.TaskEntry) error {
	raw, err := json.Marshal(e.Task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", e.Task.ID, err)
	}

	query := `
	INSERT INTO task_history (device_id, robot_id, task_id, task, first_seen, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (device_id, robot_id, task_id)
	DO UPDATE SET task = EXCLUDED.task, last_updated = EXCLUDED.last_updated`

	if _, err := r.conn.Exec(ctx, query, e.DeviceID, e.RobotID, e.Task.ID, raw, e.FirstSeen, e.LastUpdated); err != nil {
		return fmt.Errorf("failed to upsert task %s: %w", e.Task.ID, err)
	}
	return nil
}

// PruneTasks deletes entries not updated since before.
func (r *TaskRepository) PruneTasks(ctx context.Context, before time.Time) error {
	if _, err := r.conn.Exec(ctx, `DELETE FROM task_history WHERE last_updated < $1`, before); err != nil {
		return fmt.Errorf("failed to prune task history: %w", err)
	}
	return nil
}

var _ history.Repository = (*TaskRepository)(nil)
