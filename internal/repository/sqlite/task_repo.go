package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"
	repo "taskAssistant/internal/repository"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const taskColumns = `id, user_id, text, raw_text, status, due_at, created_at, updated_at,
	last_modified, source, source_agent, recurrence, notes, person_id, all_day,
	calendar_id, calendar_event_id, calendar_event_etag, google_updated_at`

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	start := time.Now()

	now := nowEpoch()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.LastModified = now
	if t.Status == "" {
		t.Status = task.StatusOpen
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (user_id, text, raw_text, status, due_at, created_at, updated_at,
			last_modified, source, source_agent, recurrence, notes, person_id, all_day,
			calendar_id, calendar_event_id, calendar_event_etag, google_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		t.UserID, t.Text, t.RawText, t.Status, t.DueAt, t.CreatedAt, t.UpdatedAt,
		t.LastModified, t.Source, t.SourceAgent, t.Recurrence, t.Notes, t.PersonID, boolToInt(t.AllDay),
		t.Link.CalendarID, t.Link.EventID, t.Link.Etag, t.Link.GoogleUpdatedAt,
	)
	if err != nil {
		if isConstraintErr(err) {
			return repo.ErrDuplicateLink
		}
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rowid задачи: %w", err)
	}
	t.ID = id

	warnSlow("create_task", start)
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?;`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err)
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

// UpdateTask читает строку, применяет опции и пишет обратно одной транзакцией.
// touchWatermark=false — для служебных записей (линк после push, правки из
// pull): вотермарка не двигается, и строка не выглядит локально изменённой.
func (s *Store) UpdateTask(ctx context.Context, id int64, touchWatermark bool, options ...task.TaskOption) (bool, error) {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?;`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("чтение задачи перед обновлением: %w", err)
	}

	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}

	now := nowEpoch()
	t.UpdatedAt = now
	if touchWatermark {
		t.LastModified = now
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET text = ?, raw_text = ?, status = ?, due_at = ?, updated_at = ?,
			last_modified = ?, source = ?, source_agent = ?, recurrence = ?,
			notes = ?, person_id = ?, all_day = ?,
			calendar_id = ?, calendar_event_id = ?, calendar_event_etag = ?, google_updated_at = ?
		WHERE id = ?;`,
		t.Text, t.RawText, t.Status, t.DueAt, t.UpdatedAt,
		t.LastModified, t.Source, t.SourceAgent, t.Recurrence,
		t.Notes, t.PersonID, boolToInt(t.AllDay),
		t.Link.CalendarID, t.Link.EventID, t.Link.Etag, t.Link.GoogleUpdatedAt,
		t.ID,
	)
	if err != nil {
		if isConstraintErr(err) {
			logger.Warn("Repository: Конфликт календарной связки",
				zap.Int64("task_id", id),
				zap.String("event_id", t.Link.EventID))
			return false, repo.ErrDuplicateLink
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return false, fmt.Errorf("обновление задачи: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("фиксация обновления: %w", err)
	}

	warnSlow("update_task", start)
	return true, nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) (bool, error) {
	start := time.Now()

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить задачу", err)
		return false, fmt.Errorf("удаление задачи: %w", err)
	}
	n, _ := res.RowsAffected()

	warnSlow("delete_task", start)
	return n > 0, nil
}

// ListTasks — задачи пользователя; status=nil означает любой статус
func (s *Store) ListTasks(ctx context.Context, userID int64, status *task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY (due_at IS NULL), due_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return s.queryTasks(ctx, query, args...)
}

// ListUpcoming — открытые задачи с дедлайном в окне [dueFrom; dueTo]
func (s *Store) ListUpcoming(ctx context.Context, userID int64, dueFrom, dueTo int64, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND status = ? AND due_at IS NOT NULL AND due_at >= ? AND due_at <= ?
		ORDER BY due_at ASC, id ASC`
	args := []any{userID, task.StatusOpen, dueFrom, dueTo}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// ListOverdue — открытые задачи с дедлайном в прошлом
func (s *Store) ListOverdue(ctx context.Context, userID int64, before int64, limit int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = ? AND status = ? AND due_at IS NOT NULL AND due_at < ?
		ORDER BY due_at ASC, id ASC`
	args := []any{userID, task.StatusOpen, before}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, query, args...)
}

// ListModifiedSince — задачи с last_modified > ts; питает исходящую синхронизацию
func (s *Store) ListModifiedSince(ctx context.Context, userID int64, ts int64) ([]*task.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND last_modified > ?
		ORDER BY last_modified ASC, id ASC`,
		userID, ts)
}

// ListMissingCalendarLink — открытые задачи, ни разу не отправленные в календарь
func (s *Store) ListMissingCalendarLink(ctx context.Context, userID int64) ([]*task.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND status = ? AND calendar_event_id = ''
		ORDER BY id ASC`,
		userID, task.StatusOpen)
}

// GetTaskByCalendarEvent — обратный поиск локальной задачи по событию;
// им pull находит уже существующую пару
func (s *Store) GetTaskByCalendarEvent(ctx context.Context, userID int64, calendarID, eventID string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND calendar_id = ? AND calendar_event_id = ?;`,
		userID, calendarID, eventID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("поиск по событию календаря: %w", err)
	}
	return t, nil
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение строки задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход строк задач: %w", err)
	}

	warnSlow("query_tasks", start)
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (*task.Task, error) {
	var (
		t       task.Task
		rawText sql.NullString
		source  sql.NullString
		agent   sql.NullString
		allDay  int
	)
	err := r.Scan(
		&t.ID, &t.UserID, &t.Text, &rawText, &t.Status, &t.DueAt,
		&t.CreatedAt, &t.UpdatedAt, &t.LastModified,
		&source, &agent, &t.Recurrence, &t.Notes, &t.PersonID, &allDay,
		&t.Link.CalendarID, &t.Link.EventID, &t.Link.Etag, &t.Link.GoogleUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RawText = rawText.String
	t.Source = source.String
	t.SourceAgent = agent.String
	t.AllDay = allDay != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
