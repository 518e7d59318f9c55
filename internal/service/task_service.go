package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"
	"taskAssistant/internal/repository"

	"go.uber.org/zap"
)

// здесь происходит проверка ошибок бизнес-логики; все пользовательские
// правки идут с touchWatermark=true — они двигают водяной знак
// синхронизации, служебные записи линка его не трогают

const defaultListLimit = 50

type TaskService struct {
	repo  TaskRepository
	hooks SyncHooks
}

func NewTaskService(repo TaskRepository, hooks SyncHooks) TaskService {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return TaskService{
		repo:  repo,
		hooks: hooks,
	}
}

func (s *TaskService) CreateNewTask(ctx context.Context, userID int64, text, rawText string, dueAt *int64, options ...task.TaskOption) (*task.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewValidationError("text", "пустой текст задачи")
	}
	if rawText == "" {
		rawText = text
	}

	t := &task.Task{
		UserID:  userID,
		Text:    text,
		RawText: rawText,
		Status:  task.StatusOpen,
		DueAt:   dueAt,
		Source:  "api",
	}
	for _, opt := range options {
		opt(t)
	}

	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("создание задачи: %w", err)
	}

	logger.Info("Service: Задача создана",
		zap.Int64("task_id", t.ID), zap.Int64("user_id", userID))
	s.hooks.OnTaskCreated(userID, t)
	return t, nil
}

func (s *TaskService) GetTaskByID(ctx context.Context, id int64) (*task.Task, error) {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.Int64("target_id", id))
			return nil, NewNotFound("задача", id)
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID int64, status *task.Status, limit, offset int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	tasks, err := s.repo.ListTasks(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// Agenda — сегодняшние задачи плюс просроченные, в одном ответе
func (s *TaskService) Agenda(ctx context.Context, userID int64, loc *time.Location) (today, overdue []*task.Task, err error) {
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	today, err = s.repo.ListUpcoming(ctx, userID, now.Unix(), dayStart.AddDate(0, 0, 1).Unix(), defaultListLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("задачи на сегодня: %w", err)
	}
	overdue, err = s.repo.ListOverdue(ctx, userID, now.Unix(), defaultListLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("просроченные задачи: %w", err)
	}
	return today, overdue, nil
}

func (s *TaskService) UpdateTaskByID(ctx context.Context, id int64, options ...task.TaskOption) (*task.Task, error) {
	if len(options) == 0 {
		return nil, NewValidationError("options", "нечего обновлять")
	}
	ok, err := s.repo.UpdateTask(ctx, id, true, options...)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateLink) {
			return nil, NewConflict("задача", id, "событие календаря уже привязано к другой задаче")
		}
		return nil, fmt.Errorf("обновление задачи: %w", err)
	}
	if !ok {
		logger.Info("Service: Задача не найдена", zap.Int64("target_id", id))
		return nil, NewNotFound("задача", id)
	}

	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("чтение после обновления: %w", err)
	}
	s.hooks.OnTaskUpdated(t.UserID, t)
	return t, nil
}

// CompleteTask переводит задачу в done
func (s *TaskService) CompleteTask(ctx context.Context, id int64) (*task.Task, error) {
	t, err := s.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == task.StatusDone {
		return t, nil
	}
	return s.UpdateTaskByID(ctx, id, task.WithStatus(task.StatusDone))
}

// DeleteTaskByID удаляет задачу. Снимок снимается до удаления строки,
// хук зовётся после: удалённое событие календаря чистится по снимку,
// а отказ удалённой стороны локальное удаление уже не откатит.
func (s *TaskService) DeleteTaskByID(ctx context.Context, id int64) error {
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFound("задача", id)
		}
		return fmt.Errorf("получение задачи: %w", err)
	}

	ok, err := s.repo.DeleteTask(ctx, id)
	if err != nil {
		return fmt.Errorf("удаление задачи: %w", err)
	}
	if !ok {
		return NewNotFound("задача", id)
	}

	logger.Info("Service: Задача удалена",
		zap.Int64("task_id", id), zap.Int64("user_id", t.UserID))
	s.hooks.OnTaskDeleted(t.UserID, t)
	return nil
}
