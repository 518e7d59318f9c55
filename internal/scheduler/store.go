package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// JobKind определяет, как считается следующий запуск
type JobKind string

const (
	KindCron     JobKind = "cron"     // spec — cron-выражение
	KindInterval JobKind = "interval" // spec — длительность ("10m")
	KindDate     JobKind = "date"     // одноразовый, spec пустой
)

// Job — строка в таблице джоб. Kind и Spec задают расписание,
// Handler — имя зарегистрированного обработчика, Payload — его аргументы.
type Job struct {
	ID        string
	Kind      JobKind
	Spec      string
	Handler   string
	Payload   json.RawMessage
	NextRun   int64
	LastRun   *int64
	CreatedAt int64
}

// JobStore — персистентное состояние планировщика: джобы переживают
// рестарт процесса
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) (*JobStore, error) {
	const create = `
	CREATE TABLE IF NOT EXISTS scheduler_jobs (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		spec       TEXT NOT NULL DEFAULT '',
		handler    TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '',
		next_run   INTEGER NOT NULL,
		last_run   INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scheduler_jobs_next_run ON scheduler_jobs(next_run);`
	if _, err := db.Exec(create); err != nil {
		return nil, fmt.Errorf("создание таблицы джоб: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Upsert перезаписывает джобу по id — повторная постановка с тем же id
// заменяет расписание, а не плодит дубликаты
func (s *JobStore) Upsert(ctx context.Context, j *Job) error {
	if j.CreatedAt == 0 {
		j.CreatedAt = time.Now().Unix()
	}
	const query = `
	INSERT INTO scheduler_jobs (id, kind, spec, handler, payload, next_run, last_run, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kind = excluded.kind,
		spec = excluded.spec,
		handler = excluded.handler,
		payload = excluded.payload,
		next_run = excluded.next_run`
	_, err := s.db.ExecContext(ctx, query,
		j.ID, string(j.Kind), j.Spec, j.Handler, string(j.Payload),
		j.NextRun, j.LastRun, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("запись джобы %s: %w", j.ID, err)
	}
	return nil
}

func (s *JobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduler_jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("удаление джобы %s: %w", id, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, spec, handler, payload, next_run, last_run, created_at
		 FROM scheduler_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Due возвращает джобы, чей next_run уже наступил
func (s *JobStore) Due(ctx context.Context, now int64, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, spec, handler, payload, next_run, last_run, created_at
		 FROM scheduler_jobs WHERE next_run <= ? ORDER BY next_run ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("выборка due джоб: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Advance фиксирует запуск и переносит next_run
func (s *JobStore) Advance(ctx context.Context, id string, lastRun, nextRun int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_jobs SET last_run = ?, next_run = ? WHERE id = ?`,
		lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("перенос джобы %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var kind, payload string
	if err := row.Scan(&j.ID, &kind, &j.Spec, &j.Handler, &payload,
		&j.NextRun, &j.LastRun, &j.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("чтение джобы: %w", err)
	}
	j.Kind = JobKind(kind)
	if payload != "" {
		j.Payload = json.RawMessage(payload)
	}
	return &j, nil
}
