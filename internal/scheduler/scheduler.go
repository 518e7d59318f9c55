package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"taskAssistant/internal/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HandlerFunc — обработчик джобы. Payload — то, что лежало в строке джобы.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

const (
	tickInterval   = time.Second
	handlerTimeout = 5 * time.Minute
	dueBatchLimit  = 64
)

// Scheduler — долговечный планировщик поверх таблицы scheduler_jobs.
// Просроченные за время простоя запуски схлопываются в один (coalesce),
// одна и та же джоба никогда не исполняется в два потока одновременно.
type Scheduler struct {
	store  *JobStore
	loc    *time.Location
	parser cron.Parser

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	running  map[string]struct{}

	sem  chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

func New(store *JobStore, loc *time.Location, poolSize int) *Scheduler {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Scheduler{
		store: store,
		loc:   loc,
		// стандартные 5 полей: минута час день месяц деньнедели
		parser: cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		handlers: make(map[string]HandlerFunc),
		running:  make(map[string]struct{}),
		sem:      make(chan struct{}, poolSize),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
}

// Register привязывает имя обработчика к функции. Джобы с
// незарегистрированным обработчиком при срабатывании логируются и
// пропускаются, строка остаётся.
func (s *Scheduler) Register(name string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = fn
}

// ScheduleCron ставит повторяющуюся джобу по cron-выражению в таймзоне
// планировщика. Повторный вызов с тем же id заменяет расписание.
func (s *Scheduler) ScheduleCron(ctx context.Context, id, spec, handler string, payload any) error {
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("cron-выражение %q: %w", spec, err)
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, &Job{
		ID:      id,
		Kind:    KindCron,
		Spec:    spec,
		Handler: handler,
		Payload: raw,
		NextRun: sched.Next(s.now().In(s.loc)).Unix(),
	})
}

// ScheduleInterval ставит джобу с фиксированным шагом; первый запуск
// через один шаг от постановки
func (s *Scheduler) ScheduleInterval(ctx context.Context, id string, every time.Duration, handler string, payload any) error {
	if every <= 0 {
		return fmt.Errorf("неположительный интервал джобы %s", id)
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, &Job{
		ID:      id,
		Kind:    KindInterval,
		Spec:    every.String(),
		Handler: handler,
		Payload: raw,
		NextRun: s.now().Add(every).Unix(),
	})
}

// ScheduleAt ставит одноразовую джобу. Момент в прошлом не ошибка:
// джоба сработает на первом же тике.
func (s *Scheduler) ScheduleAt(ctx context.Context, id string, runAt time.Time, handler string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return s.store.Upsert(ctx, &Job{
		ID:      id,
		Kind:    KindDate,
		Handler: handler,
		Payload: raw,
		NextRun: runAt.Unix(),
	})
}

func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Start запускает цикл тиков; возвращается сразу
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		logger.Info("Scheduler: Запущен")
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop останавливает тики и дожидается запущенных обработчиков
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
	logger.Info("Scheduler: Остановлен")
}

// Tick — один проход по due-джобам; во внешнем цикле его зовёт тикер,
// в тестах можно дёргать напрямую
func (s *Scheduler) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := s.now()
	jobs, err := s.store.Due(ctx, now.Unix(), dueBatchLimit)
	if err != nil {
		logger.Error("Scheduler: Ошибка выборки джоб", err)
		return
	}
	for _, j := range jobs {
		s.dispatch(ctx, j, now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, j *Job, now time.Time) {
	s.mu.Lock()
	if _, busy := s.running[j.ID]; busy {
		s.mu.Unlock()
		return
	}
	fn, ok := s.handlers[j.Handler]
	if !ok {
		s.mu.Unlock()
		logger.Warn("Scheduler: Нет обработчика",
			zap.String("job", j.ID), zap.String("handler", j.Handler))
		return
	}
	s.running[j.ID] = struct{}{}
	s.mu.Unlock()

	// расписание двигается до запуска: пропущенные тики схлопываются,
	// а упавший обработчик не зацикливает джобу
	if err := s.advance(ctx, j, now); err != nil {
		logger.Error("Scheduler: Ошибка переноса джобы", err, zap.String("job", j.ID))
		s.unmark(j.ID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unmark(j.ID)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Scheduler: Паника в обработчике",
					fmt.Errorf("%v", r), zap.String("job", j.ID))
			}
		}()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		runCtx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()
		start := time.Now()
		if err := fn(runCtx, j.Payload); err != nil {
			logger.Error("Scheduler: Джоба завершилась с ошибкой", err,
				zap.String("job", j.ID), zap.Duration("took", time.Since(start)))
			return
		}
		logger.Debug("Scheduler: Джоба выполнена",
			zap.String("job", j.ID), zap.Duration("took", time.Since(start)))
	}()
}

func (s *Scheduler) advance(ctx context.Context, j *Job, now time.Time) error {
	switch j.Kind {
	case KindDate:
		return s.store.Delete(ctx, j.ID)
	case KindInterval:
		every, err := time.ParseDuration(j.Spec)
		if err != nil || every <= 0 {
			return fmt.Errorf("интервал джобы %s: %q", j.ID, j.Spec)
		}
		return s.store.Advance(ctx, j.ID, now.Unix(), now.Add(every).Unix())
	case KindCron:
		sched, err := s.parser.Parse(j.Spec)
		if err != nil {
			return fmt.Errorf("cron джобы %s: %w", j.ID, err)
		}
		return s.store.Advance(ctx, j.ID, now.Unix(), sched.Next(now.In(s.loc)).Unix())
	default:
		return fmt.Errorf("неизвестный вид джобы %s: %q", j.ID, j.Kind)
	}
}

func (s *Scheduler) unmark(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("сериализация payload: %w", err)
	}
	return raw, nil
}
