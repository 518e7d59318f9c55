package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskAssistant/internal/cache"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"
	"taskAssistant/internal/repository"
	"taskAssistant/internal/vault"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Provider — имя провайдера в хранилище токенов
const Provider = "google_calendar"

// Store — срез репозитория, нужный адаптеру календаря
type Store interface {
	CreateTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, id int64, touchWatermark bool, options ...task.TaskOption) (bool, error)
	GetTaskByCalendarEvent(ctx context.Context, userID int64, calendarID, eventID string) (*task.Task, error)
}

// Credentials — срез хранилища токенов: чтение и перезапись после refresh
type Credentials interface {
	Get(ctx context.Context, userID int64, provider string) (*vault.Credential, error)
	Upsert(ctx context.Context, userID int64, provider string, tok *oauth2.Token, scopes []string) error
}

// Config — параметры адаптера, собираются из конфига приложения
type Config struct {
	CalendarID   string
	Location     *time.Location
	ClientID     string
	ClientSecret string
	Scopes       []string
	WindowDays   int
}

// PullResult — итог одного прохода pull
type PullResult struct {
	Imported []int64
	Updated  []int64
	Archived []int64
}

// Client — адаптер Google Calendar: строит события из задач, пишет
// линк обратно в локальное хранилище и тянет удалённые правки.
// Все записи линка идут с touchWatermark=false, чтобы служебные
// обновления не выглядели пользовательскими правками.
type Client struct {
	store    Store
	creds    Credentials
	cfg      Config
	services *cache.TTL
	factory  APIFactory
}

type cachedAPI struct {
	api         API
	accessToken string
}

func New(store Store, creds Credentials, cfg Config) *Client {
	c := &Client{
		store:    store,
		creds:    creds,
		cfg:      cfg,
		services: cache.NewTTL(15*time.Minute, 64),
	}
	c.factory = c.googleService
	return c
}

// NewWithAPI подменяет фабрику API, сервисный кеш при этом не используется
func NewWithAPI(store Store, creds Credentials, cfg Config, factory APIFactory) *Client {
	c := New(store, creds, cfg)
	c.factory = factory
	return c
}

// IsConnected сообщает, есть ли у пользователя сохранённый токен
func (c *Client) IsConnected(ctx context.Context, userID int64) bool {
	_, err := c.creds.Get(ctx, userID, Provider)
	return err == nil
}

func (c *Client) calendarID(t *task.Task) string {
	if t != nil && t.Link.CalendarID != "" {
		return t.Link.CalendarID
	}
	return c.cfg.CalendarID
}

// CreateEvent отправляет задачу в календарь и записывает линк.
// Повторный вызов для уже слинкованной задачи уходит в UpdateEvent —
// push идемпотентен.
func (c *Client) CreateEvent(ctx context.Context, userID int64, t *task.Task) (string, error) {
	if t.Linked() {
		return t.Link.EventID, c.UpdateEvent(ctx, userID, t)
	}
	api, err := c.factory(ctx, userID)
	if err != nil {
		return "", err
	}
	calID := c.calendarID(t)
	created, err := api.Insert(ctx, calID, BuildEvent(t, c.cfg.Location))
	if err != nil {
		return "", err
	}
	link := task.Link{
		CalendarID:      calID,
		EventID:         created.Id,
		Etag:            created.Etag,
		GoogleUpdatedAt: EventUpdatedEpoch(created),
	}
	if _, err := c.store.UpdateTask(ctx, t.ID, false, task.WithLink(link)); err != nil {
		return created.Id, fmt.Errorf("запись линка задачи %d: %w", t.ID, err)
	}
	t.Link = link
	logger.Info("Calendar: Событие создано",
		zap.Int64("task_id", t.ID), zap.String("event_id", created.Id))
	return created.Id, nil
}

// UpdateEvent перезаписывает тело события целиком. Если удалённое
// событие исчезло, линк сбрасывается и событие создаётся заново.
func (c *Client) UpdateEvent(ctx context.Context, userID int64, t *task.Task) error {
	if !t.Linked() {
		_, err := c.CreateEvent(ctx, userID, t)
		return err
	}
	api, err := c.factory(ctx, userID)
	if err != nil {
		return err
	}
	patched, err := api.Patch(ctx, c.calendarID(t), t.Link.EventID, BuildEvent(t, c.cfg.Location))
	if err != nil {
		if isNotFoundErr(err) {
			logger.Warn("Calendar: Событие пропало на стороне Google, создаю заново",
				zap.Int64("task_id", t.ID), zap.String("event_id", t.Link.EventID))
			t.Link = task.Link{}
			if _, err := c.store.UpdateTask(ctx, t.ID, false, task.ClearLink()); err != nil {
				return err
			}
			_, err := c.CreateEvent(ctx, userID, t)
			return err
		}
		return err
	}
	link := t.Link
	link.Etag = patched.Etag
	link.GoogleUpdatedAt = EventUpdatedEpoch(patched)
	if _, err := c.store.UpdateTask(ctx, t.ID, false, task.WithLink(link)); err != nil {
		return fmt.Errorf("обновление линка задачи %d: %w", t.ID, err)
	}
	t.Link = link
	return nil
}

// DeleteEvent удаляет удалённое событие слинкованной задачи. Ошибка
// удалённой стороны логируется и глотается: локальная задача к этому
// моменту уже удалена, откатывать нечего.
func (c *Client) DeleteEvent(ctx context.Context, userID int64, t *task.Task) {
	if !t.Linked() {
		return
	}
	api, err := c.factory(ctx, userID)
	if err != nil {
		logger.Warn("Calendar: Нет клиента для удаления события",
			zap.Int64("task_id", t.ID), zap.Error(err))
		return
	}
	if err := api.Delete(ctx, c.calendarID(t), t.Link.EventID); err != nil && !isNotFoundErr(err) {
		logger.Warn("Calendar: Не удалось удалить событие",
			zap.Int64("task_id", t.ID), zap.String("event_id", t.Link.EventID), zap.Error(err))
		return
	}
	logger.Info("Calendar: Событие удалено",
		zap.Int64("task_id", t.ID), zap.String("event_id", t.Link.EventID))
}

// SyncPull забирает события окна ±WindowDays и сводит их с локальными
// задачами. Удалённые правки применяются только если задача не была
// изменена локально позже (водяной знак last_modified); метаданные
// линка освежаются безусловно.
func (c *Client) SyncPull(ctx context.Context, userID int64) (PullResult, error) {
	var res PullResult
	if !c.IsConnected(ctx, userID) {
		return res, nil
	}
	api, err := c.factory(ctx, userID)
	if err != nil {
		return res, err
	}

	now := time.Now().In(c.cfg.Location)
	from := now.AddDate(0, 0, -c.cfg.WindowDays)
	to := now.AddDate(0, 0, c.cfg.WindowDays)

	pageToken := ""
	for {
		page, err := api.List(ctx, c.cfg.CalendarID, from, to, pageToken)
		if err != nil {
			return res, err
		}
		for _, ev := range page.Items {
			if err := c.applyRemote(ctx, userID, ev, &res); err != nil {
				logger.Warn("Calendar: Событие не применилось",
					zap.String("event_id", ev.Id), zap.Error(err))
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	logger.Info("Calendar: Pull завершён",
		zap.Int64("user_id", userID),
		zap.Int("imported", len(res.Imported)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("archived", len(res.Archived)))
	return res, nil
}

func (c *Client) applyRemote(ctx context.Context, userID int64, ev *gcal.Event, res *PullResult) error {
	if ev == nil || ev.Id == "" {
		return nil
	}

	if ev.Status == "cancelled" {
		return c.applyCancelled(ctx, userID, ev, res)
	}

	dueEpoch, allDay, ok := EventStart(ev, c.cfg.Location)
	if !ok {
		return nil
	}
	summary := strings.TrimSpace(ev.Summary)
	if summary == "" {
		summary = "Событие"
	}
	link := task.Link{
		CalendarID:      c.cfg.CalendarID,
		EventID:         ev.Id,
		Etag:            ev.Etag,
		GoogleUpdatedAt: EventUpdatedEpoch(ev),
	}

	local, err := c.store.GetTaskByCalendarEvent(ctx, userID, c.cfg.CalendarID, ev.Id)
	if errors.Is(err, repository.ErrNotFound) {
		imported := &task.Task{
			UserID:  userID,
			Text:    summary,
			RawText: strings.TrimSpace(ev.Description),
			Status:  task.StatusOpen,
			DueAt:   &dueEpoch,
			AllDay:  allDay,
			Source:  Provider,
			Link:    link,
		}
		if err := c.store.CreateTask(ctx, imported); err != nil {
			return fmt.Errorf("импорт события %s: %w", ev.Id, err)
		}
		res.Imported = append(res.Imported, imported.ID)
		return nil
	}
	if err != nil {
		return err
	}

	// локальная правка свежее удалённой — поля не трогаем
	if link.GoogleUpdatedAt != nil && local.LastModified > *link.GoogleUpdatedAt {
		_, err := c.store.UpdateTask(ctx, local.ID, false, task.WithLink(link))
		return err
	}

	options := []task.TaskOption{task.WithLink(link)}
	changed := false
	if local.Text != summary {
		options = append(options, task.WithText(summary))
		changed = true
	}
	if local.DueAt == nil || *local.DueAt != dueEpoch {
		options = append(options, task.WithDueAt(&dueEpoch))
		changed = true
	}
	if local.AllDay != allDay {
		options = append(options, task.WithAllDay(allDay))
		changed = true
	}
	if _, err := c.store.UpdateTask(ctx, local.ID, false, options...); err != nil {
		return err
	}
	if changed {
		res.Updated = append(res.Updated, local.ID)
	}
	return nil
}

// applyCancelled: событие отменено в календаре — линк сбрасывается,
// задача уходит в архив. Переходы open/done при этом не трогаем.
func (c *Client) applyCancelled(ctx context.Context, userID int64, ev *gcal.Event, res *PullResult) error {
	local, err := c.store.GetTaskByCalendarEvent(ctx, userID, c.cfg.CalendarID, ev.Id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	options := []task.TaskOption{task.ClearLink()}
	if local.Status == task.StatusOpen {
		options = append(options, task.WithStatus(task.StatusArchived))
	}
	if _, err := c.store.UpdateTask(ctx, local.ID, false, options...); err != nil {
		return err
	}
	res.Archived = append(res.Archived, local.ID)
	logger.Info("Calendar: Событие отменено, задача в архиве",
		zap.Int64("task_id", local.ID), zap.String("event_id", ev.Id))
	return nil
}

// googleService собирает API под пользователя: берёт токен из
// хранилища, освежает его при истечении (единственный путь перезаписи
// токена) и кеширует готовый сервис, пока access token не сменился
func (c *Client) googleService(ctx context.Context, userID int64) (API, error) {
	cred, err := c.creds.Get(ctx, userID, Provider)
	if err != nil {
		return nil, fmt.Errorf("токен пользователя %d: %w", userID, err)
	}
	tok := cred.Token
	if tok == nil || tok.AccessToken == "" {
		return nil, fmt.Errorf("пустой токен пользователя %d", userID)
	}

	if !tok.Valid() && tok.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       c.cfg.Scopes,
		}
		fresh, err := conf.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("refresh токена пользователя %d: %w", userID, err)
		}
		if err := c.creds.Upsert(ctx, userID, Provider, fresh, cred.Scopes); err != nil {
			return nil, fmt.Errorf("сохранение токена пользователя %d: %w", userID, err)
		}
		logger.Info("Calendar: Токен обновлён", zap.Int64("user_id", userID))
		tok = fresh
	}

	key := fmt.Sprintf("svc:%d", userID)
	if v, ok := c.services.Get(key); ok {
		if entry, ok := v.(cachedAPI); ok && entry.accessToken == tok.AccessToken {
			return entry.api, nil
		}
	}

	svc, err := gcal.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return nil, fmt.Errorf("сервис календаря пользователя %d: %w", userID, err)
	}
	api := &googleAPI{svc: svc}
	c.services.Set(key, cachedAPI{api: api, accessToken: tok.AccessToken})
	return api, nil
}

func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "notFound") ||
		strings.Contains(msg, "410") || strings.Contains(msg, "deleted")
}
