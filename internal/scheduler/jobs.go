package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/config"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"
	"taskAssistant/internal/repository"

	"go.uber.org/zap"
)

// идентификаторы системных джоб
const (
	JobPullSync        = "google_pull_sync"
	JobBackfill        = "calendar_backfill"
	JobMorningBriefing = "morning_briefing"
	JobOverdueDigest   = "overdue_digest"
	JobDailyDigest     = "daily_digest"
	JobHealthPing      = "health_ping"
	JobBackup          = "sqlite_backup"

	handlerTaskReminder = "task_reminder"
)

const digestLimit = 50

// Storage — срез хранилища для фоновых джоб
type Storage interface {
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	ListUpcoming(ctx context.Context, userID int64, dueFrom, dueTo int64, limit int) ([]*task.Task, error)
	ListOverdue(ctx context.Context, userID int64, before int64, limit int) ([]*task.Task, error)
	HealthCheck(ctx context.Context) error
	BackupTo(ctx context.Context, path string) error
}

// Syncer — оркестратор синхронизации с календарём
type Syncer interface {
	PullAndSchedule(ctx context.Context, userID int64) (calendar.PullResult, error)
	Backfill(ctx context.Context, userID int64) (int, error)
}

// Notifier доставляет текст пользователю
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Prioritizer — необязательная выжимка по списку задач для вечернего
// дайджеста; nil — дайджест уходит простым списком
type Prioritizer interface {
	Summarize(ctx context.Context, tasks []*task.Task) (string, error)
}

// Jobs — системные джобы ассистента: pull-синхронизация, брифинги,
// напоминания, health-ping и бэкап базы
type Jobs struct {
	sched       *Scheduler
	store       Storage
	sync        Syncer
	notifier    Notifier
	prioritizer Prioritizer
	cfg         *config.Config
	loc         *time.Location
}

func NewJobs(sched *Scheduler, store Storage, syncer Syncer, notifier Notifier, prioritizer Prioritizer, cfg *config.Config) *Jobs {
	return &Jobs{
		sched:       sched,
		store:       store,
		sync:        syncer,
		notifier:    notifier,
		prioritizer: prioritizer,
		cfg:         cfg,
		loc:         cfg.Location(),
	}
}

type reminderPayload struct {
	UserID int64 `json:"user_id"`
	TaskID int64 `json:"task_id"`
}

func reminderJobID(userID, taskID int64) string {
	return fmt.Sprintf("reminder:%d:%d", userID, taskID)
}

// BindSyncer развязывает цикл инициализации: оркестратору нужны
// напоминания (Jobs), а джобам — оркестратор
func (j *Jobs) BindSyncer(s Syncer) {
	j.sync = s
}

// ScheduleTaskReminder ставит одноразовое напоминание по задаче.
// Повторная постановка заменяет прежнее время.
func (j *Jobs) ScheduleTaskReminder(ctx context.Context, userID, taskID int64, runAt time.Time) error {
	return j.sched.ScheduleAt(ctx, reminderJobID(userID, taskID), runAt,
		handlerTaskReminder, reminderPayload{UserID: userID, TaskID: taskID})
}

func (j *Jobs) CancelTaskReminder(ctx context.Context, userID, taskID int64) error {
	return j.sched.Cancel(ctx, reminderJobID(userID, taskID))
}

// Register регистрирует обработчики и ставит системные джобы.
// Напоминания по задачам регистрацию переживают: их строки уже лежат
// в таблице, нужен только обработчик.
func (j *Jobs) Register(ctx context.Context) error {
	j.sched.Register(handlerTaskReminder, j.handleTaskReminder)
	j.sched.Register(JobPullSync, j.handlePullSync)
	j.sched.Register(JobBackfill, j.handleBackfill)
	j.sched.Register(JobMorningBriefing, j.handleMorningBriefing)
	j.sched.Register(JobOverdueDigest, j.handleOverdueDigest)
	j.sched.Register(JobDailyDigest, j.handleDailyDigest)
	j.sched.Register(JobHealthPing, j.handleHealthPing)
	j.sched.Register(JobBackup, j.handleBackup)

	pullEvery := time.Duration(j.cfg.Google.SyncIntervalMinutes) * time.Minute
	if pullEvery <= 0 {
		pullEvery = 10 * time.Minute
	}
	if err := j.sched.ScheduleInterval(ctx, JobPullSync, pullEvery, JobPullSync, nil); err != nil {
		return err
	}

	backfillEvery := time.Duration(j.cfg.Scheduler.BackfillMinutes) * time.Minute
	if backfillEvery <= 0 {
		backfillEvery = 15 * time.Minute
	}
	if err := j.sched.ScheduleInterval(ctx, JobBackfill, backfillEvery, JobBackfill, nil); err != nil {
		return err
	}

	if err := j.scheduleDaily(ctx, JobMorningBriefing, j.cfg.Scheduler.MorningBriefing, 8, 0); err != nil {
		return err
	}
	if err := j.scheduleDaily(ctx, JobOverdueDigest, j.cfg.Scheduler.OverdueDigest, 20, 0); err != nil {
		return err
	}
	if err := j.scheduleDaily(ctx, JobDailyDigest, j.cfg.Scheduler.DailyDigest, 21, 0); err != nil {
		return err
	}
	if err := j.sched.ScheduleCron(ctx, JobHealthPing, "0 * * * *", JobHealthPing, nil); err != nil {
		return err
	}

	if j.cfg.Backup.Enabled {
		if err := j.scheduleDaily(ctx, JobBackup, j.cfg.Backup.Time, 2, 30); err != nil {
			return err
		}
	} else {
		if err := j.sched.Cancel(ctx, JobBackup); err != nil {
			return err
		}
	}

	logger.Info("Scheduler: Системные джобы поставлены")
	return nil
}

func (j *Jobs) scheduleDaily(ctx context.Context, id, hhmm string, fallbackHour, fallbackMin int) error {
	hh, mm := config.ParseHHMM(hhmm, fallbackHour, fallbackMin)
	return j.sched.ScheduleCron(ctx, id, fmt.Sprintf("%d %d * * *", mm, hh), id, nil)
}

func (j *Jobs) handleTaskReminder(ctx context.Context, payload json.RawMessage) error {
	var p reminderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("payload напоминания: %w", err)
	}
	t, err := j.store.GetTask(ctx, p.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if t.Status != task.StatusOpen || t.DueAt == nil {
		return nil
	}
	due := time.Unix(*t.DueAt, 0).In(j.loc)
	text := fmt.Sprintf("⏰ Напоминание: %s\nСрок: %s", t.Text, due.Format("02.01 в 15:04"))
	return j.notifier.Send(ctx, p.UserID, text)
}

func (j *Jobs) handlePullSync(ctx context.Context, _ json.RawMessage) error {
	if j.sync == nil {
		return nil
	}
	_, err := j.sync.PullAndSchedule(ctx, j.cfg.OwnerUserID)
	return err
}

func (j *Jobs) handleBackfill(ctx context.Context, _ json.RawMessage) error {
	if j.sync == nil {
		return nil
	}
	_, err := j.sync.Backfill(ctx, j.cfg.OwnerUserID)
	return err
}

func (j *Jobs) handleMorningBriefing(ctx context.Context, _ json.RawMessage) error {
	from, to := dayBounds(time.Now().In(j.loc))
	tasks, err := j.store.ListUpcoming(ctx, j.cfg.OwnerUserID, from, to, digestLimit)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("🌅 Доброе утро!\n")
	if len(tasks) == 0 {
		b.WriteString("На сегодня задач нет.")
	} else {
		b.WriteString("Задачи на сегодня:\n")
		writeTaskLines(&b, tasks, j.loc)
	}
	return j.notifier.Send(ctx, j.cfg.OwnerUserID, b.String())
}

func (j *Jobs) handleOverdueDigest(ctx context.Context, _ json.RawMessage) error {
	tasks, err := j.store.ListOverdue(ctx, j.cfg.OwnerUserID, time.Now().Unix(), digestLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Просроченных задач: %d\n", len(tasks))
	writeTaskLines(&b, tasks, j.loc)
	return j.notifier.Send(ctx, j.cfg.OwnerUserID, b.String())
}

func (j *Jobs) handleDailyDigest(ctx context.Context, _ json.RawMessage) error {
	from, to := dayBounds(time.Now().In(j.loc).AddDate(0, 0, 1))
	tasks, err := j.store.ListUpcoming(ctx, j.cfg.OwnerUserID, from, to, digestLimit)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("🌙 План на завтра:\n")
	if len(tasks) == 0 {
		b.WriteString("Задач нет, можно отдыхать.")
	} else {
		writeTaskLines(&b, tasks, j.loc)
	}
	if j.prioritizer != nil && len(tasks) > 0 {
		summary, err := j.prioritizer.Summarize(ctx, tasks)
		if err != nil {
			logger.Warn("Scheduler: Выжимка дайджеста не удалась", zap.Error(err))
		} else if summary != "" {
			b.WriteString("\n\n")
			b.WriteString(summary)
		}
	}
	return j.notifier.Send(ctx, j.cfg.OwnerUserID, b.String())
}

func (j *Jobs) handleHealthPing(ctx context.Context, _ json.RawMessage) error {
	if err := j.store.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health ping: %w", err)
	}
	logger.Debug("Scheduler: Health ping ok")
	return nil
}

// handleBackup снимает копию базы и подчищает копии старше keep_days
func (j *Jobs) handleBackup(ctx context.Context, _ json.RawMessage) error {
	dir := j.cfg.Backup.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("каталог бэкапов: %w", err)
	}
	name := fmt.Sprintf("assistant-%s.db", time.Now().In(j.loc).Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := j.store.BackupTo(ctx, path); err != nil {
		return err
	}
	logger.Info("Scheduler: Бэкап записан", zap.String("path", path))

	keep := j.cfg.Backup.KeepDays
	if keep <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -keep)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("чтение каталога бэкапов: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "assistant-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				logger.Warn("Scheduler: Не удалось удалить старый бэкап",
					zap.String("file", e.Name()), zap.Error(err))
			}
		}
	}
	return nil
}

// dayBounds — границы суток [00:00, 24:00) для дня d
func dayBounds(d time.Time) (int64, int64) {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	return start.Unix(), start.AddDate(0, 0, 1).Unix()
}

func writeTaskLines(b *strings.Builder, tasks []*task.Task, loc *time.Location) {
	for i, t := range tasks {
		fmt.Fprintf(b, "%d. %s", i+1, t.Text)
		if t.DueAt != nil && !t.AllDay {
			fmt.Fprintf(b, " — %s", time.Unix(*t.DueAt, 0).In(loc).Format("15:04"))
		}
		if i != len(tasks)-1 {
			b.WriteString("\n")
		}
	}
}

// LogNotifier — доставка в лог; транспорт до мессенджера подключается
// своей реализацией Notifier
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, userID int64, text string) error {
	logger.Info("Notify: Сообщение пользователю",
		zap.Int64("user_id", userID), zap.String("text", text))
	return nil
}
