package calendar_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/models/task"
	"taskAssistant/internal/repository"
	"taskAssistant/internal/vault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// fakeAPI — подменный клиент Google API, поведение задаётся полями-функциями
type fakeAPI struct {
	insertFn func(calendarID string, ev *gcal.Event) (*gcal.Event, error)
	patchFn  func(calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error)
	deleteFn func(calendarID, eventID string) error
	listFn   func(calendarID, pageToken string) (*gcal.Events, error)

	inserts int
	patches int
	deletes int
}

func (f *fakeAPI) Insert(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	f.inserts++
	return f.insertFn(calendarID, ev)
}

func (f *fakeAPI) Patch(ctx context.Context, calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
	f.patches++
	return f.patchFn(calendarID, eventID, ev)
}

func (f *fakeAPI) Delete(ctx context.Context, calendarID, eventID string) error {
	f.deletes++
	return f.deleteFn(calendarID, eventID)
}

func (f *fakeAPI) List(ctx context.Context, calendarID string, from, to time.Time, pageToken string) (*gcal.Events, error) {
	return f.listFn(calendarID, pageToken)
}

// fakeStore — хранилище задач в памяти, фиксирует значение watermark-флага
type fakeStore struct {
	tasks      map[int64]*task.Task
	nextID     int64
	watermarks []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[int64]*task.Task{}, nextID: 1}
}

func (s *fakeStore) add(t *task.Task) *task.Task {
	t.ID = s.nextID
	s.nextID++
	s.tasks[t.ID] = t
	return t
}

func (s *fakeStore) CreateTask(ctx context.Context, t *task.Task) error {
	s.add(t)
	return nil
}

func (s *fakeStore) UpdateTask(ctx context.Context, id int64, touchWatermark bool, options ...task.TaskOption) (bool, error) {
	s.watermarks = append(s.watermarks, touchWatermark)
	t, ok := s.tasks[id]
	if !ok {
		return false, nil
	}
	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}
	return true, nil
}

func (s *fakeStore) GetTaskByCalendarEvent(ctx context.Context, userID int64, calendarID, eventID string) (*task.Task, error) {
	for _, t := range s.tasks {
		if t.UserID == userID && t.Link.CalendarID == calendarID && t.Link.EventID == eventID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeCreds — всегда подключённый пользователь
type fakeCreds struct{}

func (fakeCreds) Get(ctx context.Context, userID int64, provider string) (*vault.Credential, error) {
	return &vault.Credential{
		UserID:   userID,
		Provider: provider,
		Token:    &oauth2.Token{AccessToken: "tok"},
	}, nil
}

func (fakeCreds) Upsert(ctx context.Context, userID int64, provider string, tok *oauth2.Token, scopes []string) error {
	return nil
}

func newTestClient(store *fakeStore, api *fakeAPI) *calendar.Client {
	cfg := calendar.Config{
		CalendarID: "primary",
		Location:   msk,
		WindowDays: 7,
	}
	return calendar.NewWithAPI(store, fakeCreds{}, cfg, func(ctx context.Context, userID int64) (calendar.API, error) {
		return api, nil
	})
}

// TestClient_CreateEvent тестирует push и запись линка без сдвига водяного знака
func TestClient_CreateEvent(t *testing.T) {
	store := newFakeStore()
	due := time.Now().Add(2 * time.Hour).Unix()
	tk := store.add(&task.Task{UserID: 1, Text: "встреча", Status: task.StatusOpen, DueAt: &due})

	api := &fakeAPI{
		insertFn: func(calendarID string, ev *gcal.Event) (*gcal.Event, error) {
			assert.Equal(t, "primary", calendarID)
			return &gcal.Event{Id: "ev-1", Etag: `"e1"`, Updated: "2026-09-01T10:00:00.000Z"}, nil
		},
	}
	client := newTestClient(store, api)

	eventID, err := client.CreateEvent(context.Background(), 1, tk)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", eventID)
	assert.Equal(t, 1, api.inserts)

	saved := store.tasks[tk.ID]
	assert.Equal(t, "ev-1", saved.Link.EventID)
	assert.Equal(t, "primary", saved.Link.CalendarID)
	require.Len(t, store.watermarks, 1)
	assert.False(t, store.watermarks[0], "запись линка не должна двигать водяной знак")
}

// TestClient_CreateEvent_Idempotent тестирует повторный push слинкованной задачи
func TestClient_CreateEvent_Idempotent(t *testing.T) {
	store := newFakeStore()
	due := time.Now().Add(2 * time.Hour).Unix()
	tk := store.add(&task.Task{
		UserID: 1, Text: "встреча", Status: task.StatusOpen, DueAt: &due,
		Link: task.Link{CalendarID: "primary", EventID: "ev-1"},
	})

	api := &fakeAPI{
		patchFn: func(calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
			assert.Equal(t, "ev-1", eventID)
			return &gcal.Event{Id: "ev-1", Etag: `"e2"`}, nil
		},
	}
	client := newTestClient(store, api)

	eventID, err := client.CreateEvent(context.Background(), 1, tk)
	require.NoError(t, err)
	assert.Equal(t, "ev-1", eventID)
	assert.Zero(t, api.inserts, "повторный push не должен создавать дубль")
	assert.Equal(t, 1, api.patches)
	assert.Equal(t, `"e2"`, store.tasks[tk.ID].Link.Etag)
}

// TestClient_UpdateEvent_Recreate тестирует пересоздание пропавшего события
func TestClient_UpdateEvent_Recreate(t *testing.T) {
	store := newFakeStore()
	due := time.Now().Add(2 * time.Hour).Unix()
	tk := store.add(&task.Task{
		UserID: 1, Text: "встреча", Status: task.StatusOpen, DueAt: &due,
		Link: task.Link{CalendarID: "primary", EventID: "ev-gone"},
	})

	api := &fakeAPI{
		patchFn: func(calendarID, eventID string, ev *gcal.Event) (*gcal.Event, error) {
			return nil, &googleapi.Error{Code: 404, Message: "notFound"}
		},
		insertFn: func(calendarID string, ev *gcal.Event) (*gcal.Event, error) {
			return &gcal.Event{Id: "ev-new", Etag: `"e1"`}, nil
		},
	}
	client := newTestClient(store, api)

	require.NoError(t, client.UpdateEvent(context.Background(), 1, tk))
	assert.Equal(t, 1, api.patches)
	assert.Equal(t, 1, api.inserts)
	assert.Equal(t, "ev-new", store.tasks[tk.ID].Link.EventID)
}

// TestClient_DeleteEvent тестирует, что ошибка удалённой стороны глотается
func TestClient_DeleteEvent(t *testing.T) {
	store := newFakeStore()
	tk := store.add(&task.Task{
		UserID: 1, Text: "встреча", Status: task.StatusOpen,
		Link: task.Link{CalendarID: "primary", EventID: "ev-1"},
	})

	api := &fakeAPI{
		deleteFn: func(calendarID, eventID string) error {
			return fmt.Errorf("503 backend error")
		},
	}
	client := newTestClient(store, api)

	client.DeleteEvent(context.Background(), 1, tk)
	assert.Equal(t, 1, api.deletes)

	// несвязанная задача — в API не ходим
	client.DeleteEvent(context.Background(), 1, &task.Task{ID: 99, UserID: 1})
	assert.Equal(t, 1, api.deletes)
}

// TestClient_SyncPull_Import тестирует импорт незнакомого события задачей
func TestClient_SyncPull_Import(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(calendarID, pageToken string) (*gcal.Events, error) {
			return &gcal.Events{Items: []*gcal.Event{{
				Id:      "ev-ext",
				Etag:    `"e1"`,
				Summary: "Стоматолог",
				Updated: "2026-09-01T10:00:00.000Z",
				Start:   &gcal.EventDateTime{DateTime: "2026-09-03T11:00:00+03:00"},
			}}}, nil
		},
	}
	client := newTestClient(store, api)

	res, err := client.SyncPull(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, res.Imported, 1)

	imported := store.tasks[res.Imported[0]]
	assert.Equal(t, "Стоматолог", imported.Text)
	assert.Equal(t, task.StatusOpen, imported.Status)
	assert.Equal(t, "google_calendar", imported.Source)
	assert.Equal(t, "ev-ext", imported.Link.EventID)
	require.NotNil(t, imported.DueAt)
	assert.Equal(t, time.Date(2026, 9, 3, 11, 0, 0, 0, msk).Unix(), *imported.DueAt)
}

// TestClient_SyncPull_Update тестирует применение удалённой правки
func TestClient_SyncPull_Update(t *testing.T) {
	store := newFakeStore()
	oldDue := time.Date(2026, 9, 3, 11, 0, 0, 0, msk).Unix()
	tk := store.add(&task.Task{
		UserID: 1, Text: "Стоматолог", Status: task.StatusOpen,
		DueAt: &oldDue, LastModified: 100,
		Link: task.Link{CalendarID: "primary", EventID: "ev-ext"},
	})

	api := &fakeAPI{
		listFn: func(calendarID, pageToken string) (*gcal.Events, error) {
			return &gcal.Events{Items: []*gcal.Event{{
				Id:      "ev-ext",
				Etag:    `"e2"`,
				Summary: "Стоматолог (перенос)",
				Updated: "2026-09-01T10:00:00.000Z",
				Start:   &gcal.EventDateTime{DateTime: "2026-09-04T12:00:00+03:00"},
			}}}, nil
		},
	}
	client := newTestClient(store, api)

	res, err := client.SyncPull(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{tk.ID}, res.Updated)

	saved := store.tasks[tk.ID]
	assert.Equal(t, "Стоматолог (перенос)", saved.Text)
	assert.Equal(t, time.Date(2026, 9, 4, 12, 0, 0, 0, msk).Unix(), *saved.DueAt)
	assert.Equal(t, `"e2"`, saved.Link.Etag)
	for _, touched := range store.watermarks {
		assert.False(t, touched)
	}
}

// TestClient_SyncPull_WatermarkGuard тестирует приоритет свежей локальной правки
func TestClient_SyncPull_WatermarkGuard(t *testing.T) {
	store := newFakeStore()
	localDue := time.Date(2026, 9, 5, 9, 0, 0, 0, msk).Unix()
	remoteUpdated := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC).Unix()
	tk := store.add(&task.Task{
		UserID: 1, Text: "Локальный текст", Status: task.StatusOpen,
		DueAt: &localDue, LastModified: remoteUpdated + 3600,
		Link: task.Link{CalendarID: "primary", EventID: "ev-ext", Etag: `"e1"`},
	})

	api := &fakeAPI{
		listFn: func(calendarID, pageToken string) (*gcal.Events, error) {
			return &gcal.Events{Items: []*gcal.Event{{
				Id:      "ev-ext",
				Etag:    `"e2"`,
				Summary: "Удалённый текст",
				Updated: "2026-09-01T10:00:00.000Z",
				Start:   &gcal.EventDateTime{DateTime: "2026-09-03T11:00:00+03:00"},
			}}}, nil
		},
	}
	client := newTestClient(store, api)

	res, err := client.SyncPull(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, res.Updated)

	saved := store.tasks[tk.ID]
	assert.Equal(t, "Локальный текст", saved.Text, "поля задачи не должны перетираться")
	assert.Equal(t, localDue, *saved.DueAt)
	assert.Equal(t, `"e2"`, saved.Link.Etag, "метаданные линка освежаются всегда")
}

// TestClient_SyncPull_Cancelled тестирует архивирование по отмене события
func TestClient_SyncPull_Cancelled(t *testing.T) {
	store := newFakeStore()
	open := store.add(&task.Task{
		UserID: 1, Text: "Отменённая", Status: task.StatusOpen,
		Link: task.Link{CalendarID: "primary", EventID: "ev-a"},
	})
	done := store.add(&task.Task{
		UserID: 1, Text: "Сделанная", Status: task.StatusDone,
		Link: task.Link{CalendarID: "primary", EventID: "ev-b"},
	})

	api := &fakeAPI{
		listFn: func(calendarID, pageToken string) (*gcal.Events, error) {
			return &gcal.Events{Items: []*gcal.Event{
				{Id: "ev-a", Status: "cancelled"},
				{Id: "ev-b", Status: "cancelled"},
				{Id: "ev-unknown", Status: "cancelled"},
			}}, nil
		},
	}
	client := newTestClient(store, api)

	res, err := client.SyncPull(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Archived, 2)

	assert.Equal(t, task.StatusArchived, store.tasks[open.ID].Status)
	assert.False(t, store.tasks[open.ID].Linked())
	assert.Equal(t, task.StatusDone, store.tasks[done.ID].Status, "статус done не трогаем")
	assert.False(t, store.tasks[done.ID].Linked())
}

// TestClient_SyncPull_Pagination тестирует обход страниц списка событий
func TestClient_SyncPull_Pagination(t *testing.T) {
	store := newFakeStore()
	api := &fakeAPI{
		listFn: func(calendarID, pageToken string) (*gcal.Events, error) {
			switch pageToken {
			case "":
				return &gcal.Events{
					Items: []*gcal.Event{{
						Id: "ev-1", Summary: "Первая",
						Start: &gcal.EventDateTime{DateTime: "2026-09-03T11:00:00+03:00"},
					}},
					NextPageToken: "page2",
				}, nil
			case "page2":
				return &gcal.Events{Items: []*gcal.Event{{
					Id: "ev-2", Summary: "Вторая",
					Start: &gcal.EventDateTime{DateTime: "2026-09-04T11:00:00+03:00"},
				}}}, nil
			default:
				return nil, fmt.Errorf("неожиданный токен страницы: %s", pageToken)
			}
		},
	}
	client := newTestClient(store, api)

	res, err := client.SyncPull(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, res.Imported, 2)
}
