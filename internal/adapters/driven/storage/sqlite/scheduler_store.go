package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
)

var (
	taskColumns   = []string{"id", "name", "interval_seconds", "enabled", "last_run", "next_run", "last_success", "last_error"}
	resultColumns = []string{"task_id", "started_at", "ended_at", "success", "error", "processed", "run_ids", "skipped"}
)

// upsertTask rewrites every mutable column when the id already exists.
const upsertTask = `ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, interval_seconds = excluded.interval_seconds, enabled = excluded.enabled,
	last_run = excluded.last_run, next_run = excluded.next_run,
	last_success = excluded.last_success, last_error = excluded.last_error`

// newestPerTask ranks each task's results newest first.
const newestPerTask = `id IN (SELECT id FROM (
	SELECT id, ROW_NUMBER() OVER (PARTITION BY task_id ORDER BY started_at DESC, id DESC) AS rank
	FROM task_results) WHERE rank > ?)`

type schedulerStore struct {
	store *Store
}

var _ driven.SchedulerStore = (*schedulerStore)(nil)

func (s *schedulerStore) GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error) {
	rows, err := query(ctx, s.store.db, sq.Select(taskColumns...).From("scheduled_tasks").Where(sq.Eq{"id": taskID}))
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", taskID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanTask(rows)
}

func (s *schedulerStore) ListTasks(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := query(ctx, s.store.db, sq.Select(taskColumns...).From("scheduled_tasks").OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("querying scheduled tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.ScheduledTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (s *schedulerStore) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil {
		return domain.ErrInvalidInput
	}
	b := sq.Insert("scheduled_tasks").Columns(taskColumns...).
		Values(task.ID, task.Name, int64(task.Interval/time.Second), boolToInt(task.Enabled),
			formatNullableTime(task.LastRun), formatNullableTime(task.NextRun),
			formatNullableTime(task.LastSuccess), nullString(task.LastError)).
		Suffix(upsertTask)
	if err := exec(ctx, s.store.db, b); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

func (s *schedulerStore) RecordResult(ctx context.Context, result *domain.TaskResult) error {
	if result == nil {
		return domain.ErrInvalidInput
	}
	runIDs, err := json.Marshal(nonNilStrings(result.RunIDs))
	if err != nil {
		return fmt.Errorf("encoding run ids: %w", err)
	}
	skipped, err := json.Marshal(nonNilStrings(result.Skipped))
	if err != nil {
		return fmt.Errorf("encoding skipped cities: %w", err)
	}
	b := sq.Insert("task_results").Columns(resultColumns...).
		Values(result.TaskID, formatTime(result.StartedAt), formatTime(result.EndedAt),
			boolToInt(result.Success), nullString(result.Error), result.Processed,
			string(runIDs), string(skipped))
	if err := exec(ctx, s.store.db, b); err != nil {
		return fmt.Errorf("recording %s result: %w", result.TaskID, err)
	}
	return nil
}

func (s *schedulerStore) GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	b := sq.Select(resultColumns...).From("task_results").
		Where(sq.Eq{"task_id": taskID}).
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := query(ctx, s.store.db, b)
	if err != nil {
		return nil, fmt.Errorf("querying %s history: %w", taskID, err)
	}
	defer rows.Close()

	results := []domain.TaskResult{}
	for rows.Next() {
		r, err := scanTaskResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *schedulerStore) PruneHistory(ctx context.Context, keep int) error {
	if err := exec(ctx, s.store.db, sq.Delete("task_results").Where(sq.Expr(newestPerTask, keep))); err != nil {
		return fmt.Errorf("pruning task history: %w", err)
	}
	return nil
}

func scanTask(row scanner) (*domain.ScheduledTask, error) {
	var (
		task                              domain.ScheduledTask
		seconds                           int64
		enabled                           int
		lastRun, nextRun, lastOK, lastErr sql.NullString
	)
	if err := row.Scan(&task.ID, &task.Name, &seconds, &enabled, &lastRun, &nextRun, &lastOK, &lastErr); err != nil {
		return nil, fmt.Errorf("scanning scheduled task: %w", err)
	}
	task.Interval = time.Duration(seconds) * time.Second
	task.Enabled = enabled == 1
	task.LastRun = parseNullableTime(lastRun)
	task.NextRun = parseNullableTime(nextRun)
	task.LastSuccess = parseNullableTime(lastOK)
	task.LastError = lastErr.String
	return &task, nil
}

func scanTaskResult(row scanner) (*domain.TaskResult, error) {
	var (
		r               domain.TaskResult
		started, ended  string
		success         int
		errMsg          sql.NullString
		runIDs, skipped string
	)
	if err := row.Scan(&r.TaskID, &started, &ended, &success, &errMsg, &r.Processed, &runIDs, &skipped); err != nil {
		return nil, fmt.Errorf("scanning task result: %w", err)
	}
	r.StartedAt = parseNullableTime(sql.NullString{String: started, Valid: true})
	r.EndedAt = parseNullableTime(sql.NullString{String: ended, Valid: true})
	r.Success = success == 1
	r.Error = errMsg.String
	if err := errors.Join(
		json.Unmarshal([]byte(runIDs), &r.RunIDs),
		json.Unmarshal([]byte(skipped), &r.Skipped),
	); err != nil {
		return nil, fmt.Errorf("decoding task result lists: %w", err)
	}
	return &r, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
