package worker

import (
	"context"
	"fmt"
	"time"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"

	"go.uber.org/zap"
)

type TaskSource interface {
	ListUpcoming(ctx context.Context, userID int64, dueFrom, dueTo int64, limit int) ([]*task.Task, error)
}

type Reminders interface {
	ScheduleTaskReminder(ctx context.Context, userID, taskID int64, runAt time.Time) error
}

// ReminderWorker — страховочный цикл: периодически проходит по
// открытым задачам ближайших суток и переставляет им напоминания.
// Постановка по id идемпотентна, поэтому дубликаты не плодятся, а
// напоминания, потерянные из-за сбоя хука, восстанавливаются.
type ReminderWorker struct {
	repo      TaskSource
	reminders Reminders
	userID    int64
	lead      time.Duration
	interval  time.Duration
	batchSize int
}

func NewReminderWorker(repo TaskSource, reminders Reminders, userID int64, lead time.Duration, interval *time.Duration, batchSize *int) *ReminderWorker {
	var intervalToSet time.Duration
	if interval == nil {
		intervalToSet = 5 * time.Minute
	} else {
		intervalToSet = *interval
	}

	var batchToSet int
	if batchSize == nil {
		batchToSet = 100
	} else {
		batchToSet = *batchSize
	}
	return &ReminderWorker{
		repo:      repo,
		reminders: reminders,
		userID:    userID,
		lead:      lead,
		interval:  intervalToSet,
		batchSize: batchToSet,
	}
}

func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: Фоновая сверка напоминаний", zap.Time("started_at", time.Now()))
			w.Check(ctx)
		case <-ctx.Done():
			logger.Info("Worker: Фоновая сверка останавливается")
			return
		}
	}
}

func (w *ReminderWorker) Check(ctx context.Context) {
	start := time.Now()

	tasks, err := w.upcomingTasks(ctx)
	if err != nil {
		logger.Warn("Worker: ошибка получения задач", zap.Error(err))
		return
	}

	scheduled := 0
	now := time.Now()

	for _, t := range tasks {
		if t.Status != task.StatusOpen || t.DueAt == nil || t.AllDay {
			continue
		}
		runAt := time.Unix(*t.DueAt, 0).Add(-w.lead)
		if !runAt.After(now) {
			continue
		}
		if err := w.reminders.ScheduleTaskReminder(ctx, t.UserID, t.ID, runAt); err != nil {
			logger.Warn("Worker: Ошибка постановки напоминания", zap.Error(err))
			continue
		}
		scheduled++

		if scheduled >= w.batchSize {
			break
		}
	}
	logger.Info(
		"Worker: Завершение сверки напоминаний",
		zap.Duration("ms", time.Since(start)),
		zap.Int("checked", len(tasks)),
		zap.Int("scheduled", scheduled),
	)
}

func (w *ReminderWorker) upcomingTasks(ctx context.Context) ([]*task.Task, error) {
	now := time.Now()
	tasks, err := w.repo.ListUpcoming(ctx, w.userID, now.Unix(), now.Add(24*time.Hour).Unix(), w.batchSize)
	if err != nil {
		return nil, fmt.Errorf("получение ближайших задач: %w", err)
	}
	return tasks, nil
}
