package calsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"

	"go.uber.org/zap"
)

// таймаут одного фонового push-а в календарь
const pushTimeout = 30 * time.Second

// окно, за которое backfill перепроверяет локальные правки
const reconcileWindow = 24 * time.Hour

// Calendar — то, что оркестратору нужно от адаптера календаря
type Calendar interface {
	IsConnected(ctx context.Context, userID int64) bool
	CreateEvent(ctx context.Context, userID int64, t *task.Task) (string, error)
	UpdateEvent(ctx context.Context, userID int64, t *task.Task) error
	DeleteEvent(ctx context.Context, userID int64, t *task.Task)
	SyncPull(ctx context.Context, userID int64) (calendar.PullResult, error)
}

// Store — срез репозитория для backfill и пересчёта напоминаний
type Store interface {
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	ListMissingCalendarLink(ctx context.Context, userID int64) ([]*task.Task, error)
	ListModifiedSince(ctx context.Context, userID int64, ts int64) ([]*task.Task, error)
}

// Reminders — постановка и снятие напоминаний по задачам
type Reminders interface {
	ScheduleTaskReminder(ctx context.Context, userID, taskID int64, runAt time.Time) error
	CancelTaskReminder(ctx context.Context, userID, taskID int64) error
}

// Orchestrator связывает локальные правки с календарём. Push-и после
// пользовательских операций уходят fire-and-forget через ограниченный
// пул: ошибка календаря логируется и никогда не роняет операцию.
type Orchestrator struct {
	cal       Calendar
	store     Store
	reminders Reminders
	lead      time.Duration

	sem chan struct{}
	wg  sync.WaitGroup
}

func New(cal Calendar, store Store, reminders Reminders, poolSize int, reminderLead time.Duration) *Orchestrator {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Orchestrator{
		cal:       cal,
		store:     store,
		reminders: reminders,
		lead:      reminderLead,
		sem:       make(chan struct{}, poolSize),
	}
}

// Close дожидается всех фоновых push-ей
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// submit запускает фоновую работу, не блокируя вызывающего
func (o *Orchestrator) submit(name string, fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Sync: Паника в фоновой задаче",
					fmt.Errorf("%v", r), zap.String("job", name))
			}
		}()
		o.sem <- struct{}{}
		defer func() { <-o.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// OnTaskCreated — хук после создания задачи пользователем
func (o *Orchestrator) OnTaskCreated(userID int64, t *task.Task) {
	snapshot := *t
	o.submit("push_create", func(ctx context.Context) {
		if !o.cal.IsConnected(ctx, userID) {
			return
		}
		if _, err := o.cal.CreateEvent(ctx, userID, &snapshot); err != nil {
			logger.Warn("Sync: Push создания не прошёл",
				zap.Int64("task_id", snapshot.ID), zap.Error(err))
		}
	})
	o.rescheduleReminder(userID, t)
}

// OnTaskUpdated — хук после правки задачи пользователем
func (o *Orchestrator) OnTaskUpdated(userID int64, t *task.Task) {
	snapshot := *t
	o.submit("push_update", func(ctx context.Context) {
		if !o.cal.IsConnected(ctx, userID) {
			return
		}
		if err := o.cal.UpdateEvent(ctx, userID, &snapshot); err != nil {
			logger.Warn("Sync: Push правки не прошёл",
				zap.Int64("task_id", snapshot.ID), zap.Error(err))
		}
	})
	o.rescheduleReminder(userID, t)
}

// OnTaskDeleted — хук после удаления задачи. Снимок задачи снимается
// до удаления строки, поэтому линк для удалённого события ещё на месте.
func (o *Orchestrator) OnTaskDeleted(userID int64, t *task.Task) {
	snapshot := *t
	o.submit("push_delete", func(ctx context.Context) {
		if !o.cal.IsConnected(ctx, userID) {
			return
		}
		o.cal.DeleteEvent(ctx, userID, &snapshot)
	})
	o.cancelReminder(userID, t.ID)
}

// Backfill досылает в календарь задачи без линка — всё, что создавалось,
// пока пользователь был не подключён, — и повторяет push правок, которые
// фоновый хук потерял: у таких задач локальная метка last_modified
// обгоняет google_updated_at из линка.
func (o *Orchestrator) Backfill(ctx context.Context, userID int64) (int, error) {
	if !o.cal.IsConnected(ctx, userID) {
		return 0, nil
	}
	tasks, err := o.store.ListMissingCalendarLink(ctx, userID)
	if err != nil {
		return 0, err
	}
	pushed := 0
	for _, t := range tasks {
		if _, err := o.cal.CreateEvent(ctx, userID, t); err != nil {
			logger.Warn("Sync: Backfill задачи не прошёл",
				zap.Int64("task_id", t.ID), zap.Error(err))
			continue
		}
		pushed++
	}

	since := time.Now().Add(-reconcileWindow).Unix()
	modified, err := o.store.ListModifiedSince(ctx, userID, since)
	if err != nil {
		return pushed, err
	}
	for _, t := range modified {
		if !t.Linked() {
			continue
		}
		if t.Link.GoogleUpdatedAt != nil && *t.Link.GoogleUpdatedAt >= t.LastModified {
			continue
		}
		if err := o.cal.UpdateEvent(ctx, userID, t); err != nil {
			logger.Warn("Sync: Повторный push правки не прошёл",
				zap.Int64("task_id", t.ID), zap.Error(err))
			continue
		}
		pushed++
	}

	if pushed > 0 {
		logger.Info("Sync: Backfill завершён",
			zap.Int64("user_id", userID), zap.Int("pushed", pushed))
	}
	return pushed, nil
}

// PullAndSchedule — один проход pull с пересчётом напоминаний для
// задач, которые pull создал или изменил
func (o *Orchestrator) PullAndSchedule(ctx context.Context, userID int64) (calendar.PullResult, error) {
	res, err := o.cal.SyncPull(ctx, userID)
	if err != nil {
		return res, err
	}
	if o.reminders == nil {
		return res, nil
	}
	for _, id := range append(append([]int64{}, res.Imported...), res.Updated...) {
		t, err := o.store.GetTask(ctx, id)
		if err != nil {
			continue
		}
		o.rescheduleReminder(userID, t)
	}
	for _, id := range res.Archived {
		o.cancelReminder(userID, id)
	}
	return res, nil
}

// rescheduleReminder ставит напоминание на due-lead для открытой
// задачи с временем; неподходящим задачам напоминание снимается.
// Задача уже внутри окна напоминания его не получает: момент due-lead
// прошёл, слать нечего.
func (o *Orchestrator) rescheduleReminder(userID int64, t *task.Task) {
	if o.reminders == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	due, hasDue := t.Due()
	if t.Status != task.StatusOpen || !hasDue || t.AllDay {
		o.cancelReminder(userID, t.ID)
		return
	}
	runAt := due.Add(-o.lead)
	if time.Until(runAt) <= 0 {
		o.cancelReminder(userID, t.ID)
		return
	}
	if err := o.reminders.ScheduleTaskReminder(ctx, userID, t.ID, runAt); err != nil {
		logger.Warn("Sync: Не удалось поставить напоминание",
			zap.Int64("task_id", t.ID), zap.Error(err))
	}
}

func (o *Orchestrator) cancelReminder(userID, taskID int64) {
	if o.reminders == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.reminders.CancelTaskReminder(ctx, userID, taskID); err != nil {
		logger.Warn("Sync: Не удалось снять напоминание",
			zap.Int64("task_id", taskID), zap.Error(err))
	}
}
