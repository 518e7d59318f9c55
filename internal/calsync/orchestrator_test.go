package calsync_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/calsync"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

func epoch(v int64) *int64 { return &v }

// mockCalendar считает вызовы адаптера под мьютексом: хуки работают из горутин
type mockCalendar struct {
	mu        sync.Mutex
	connected bool
	created   []int64
	updated   []int64
	deleted   []string
	pull      calendar.PullResult
	pullErr   error
}

func (m *mockCalendar) IsConnected(ctx context.Context, userID int64) bool {
	return m.connected
}

func (m *mockCalendar) CreateEvent(ctx context.Context, userID int64, t *task.Task) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, t.ID)
	return "ev-1", nil
}

func (m *mockCalendar) UpdateEvent(ctx context.Context, userID int64, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, t.ID)
	return nil
}

func (m *mockCalendar) DeleteEvent(ctx context.Context, userID int64, t *task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, t.Link.EventID)
}

func (m *mockCalendar) SyncPull(ctx context.Context, userID int64) (calendar.PullResult, error) {
	return m.pull, m.pullErr
}

type mockStore struct {
	tasks    map[int64]*task.Task
	missing  []*task.Task
	modified []*task.Task
}

func (m *mockStore) GetTask(ctx context.Context, id int64) (*task.Task, error) {
	if t, ok := m.tasks[id]; ok {
		return t, nil
	}
	return nil, context.Canceled
}

func (m *mockStore) ListMissingCalendarLink(ctx context.Context, userID int64) ([]*task.Task, error) {
	return m.missing, nil
}

func (m *mockStore) ListModifiedSince(ctx context.Context, userID int64, ts int64) ([]*task.Task, error) {
	return m.modified, nil
}

type mockReminders struct {
	mu        sync.Mutex
	scheduled map[int64]time.Time
	cancelled []int64
}

func newMockReminders() *mockReminders {
	return &mockReminders{scheduled: map[int64]time.Time{}}
}

func (m *mockReminders) ScheduleTaskReminder(ctx context.Context, userID, taskID int64, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled[taskID] = runAt
	return nil
}

func (m *mockReminders) CancelTaskReminder(ctx context.Context, userID, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, taskID)
	return nil
}

// TestOrchestrator_Hooks тестирует fire-and-forget push по хукам
func TestOrchestrator_Hooks(t *testing.T) {
	cal := &mockCalendar{connected: true}
	rem := newMockReminders()
	o := calsync.New(cal, &mockStore{}, rem, 2, time.Hour)

	due := time.Now().Add(3 * time.Hour).Unix()
	created := &task.Task{ID: 1, UserID: 7, Text: "встреча", Status: task.StatusOpen, DueAt: &due}
	o.OnTaskCreated(7, created)
	o.OnTaskUpdated(7, created)
	o.OnTaskDeleted(7, &task.Task{ID: 2, UserID: 7, Link: task.Link{EventID: "ev-2"}})
	o.Close()

	assert.Equal(t, []int64{1}, cal.created)
	assert.Equal(t, []int64{1}, cal.updated)
	assert.Equal(t, []string{"ev-2"}, cal.deleted)

	runAt, ok := rem.scheduled[1]
	require.True(t, ok)
	assert.Equal(t, time.Unix(due, 0).Add(-time.Hour).Unix(), runAt.Unix())
	assert.Contains(t, rem.cancelled, int64(2))
}

// TestOrchestrator_NotConnected тестирует, что без токена push не уходит
func TestOrchestrator_NotConnected(t *testing.T) {
	cal := &mockCalendar{connected: false}
	o := calsync.New(cal, &mockStore{}, newMockReminders(), 2, time.Hour)

	due := time.Now().Add(3 * time.Hour).Unix()
	o.OnTaskCreated(7, &task.Task{ID: 1, UserID: 7, Status: task.StatusOpen, DueAt: &due})
	o.Close()

	assert.Empty(t, cal.created)
}

// TestOrchestrator_ReminderCancelled тестирует снятие напоминаний
// для неподходящих задач
func TestOrchestrator_ReminderCancelled(t *testing.T) {
	pastDue := time.Now().Add(-time.Hour).Unix()
	futureDue := time.Now().Add(3 * time.Hour).Unix()
	soonDue := time.Now().Add(30 * time.Minute).Unix()

	tests := []struct {
		name string
		task task.Task
	}{
		{"сделанная", task.Task{ID: 1, Status: task.StatusDone, DueAt: &futureDue}},
		{"без дедлайна", task.Task{ID: 2, Status: task.StatusOpen}},
		{"на весь день", task.Task{ID: 3, Status: task.StatusOpen, DueAt: &futureDue, AllDay: true}},
		{"просроченная", task.Task{ID: 4, Status: task.StatusOpen, DueAt: &pastDue}},
		{"внутри лид-окна", task.Task{ID: 5, Status: task.StatusOpen, DueAt: &soonDue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := &mockCalendar{connected: true}
			rem := newMockReminders()
			o := calsync.New(cal, &mockStore{}, rem, 2, time.Hour)

			o.OnTaskUpdated(7, &tt.task)
			o.Close()

			assert.Empty(t, rem.scheduled)
			assert.Contains(t, rem.cancelled, tt.task.ID)
		})
	}
}

// TestOrchestrator_Backfill тестирует досылку задач без линка
func TestOrchestrator_Backfill(t *testing.T) {
	due := time.Now().Add(time.Hour).Unix()
	store := &mockStore{missing: []*task.Task{
		{ID: 1, UserID: 7, Text: "первая", Status: task.StatusOpen, DueAt: &due},
		{ID: 2, UserID: 7, Text: "вторая", Status: task.StatusOpen, DueAt: &due},
	}}
	cal := &mockCalendar{connected: true}
	o := calsync.New(cal, store, newMockReminders(), 2, time.Hour)

	pushed, err := o.Backfill(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, pushed)
	assert.Equal(t, []int64{1, 2}, cal.created)

	// без подключения backfill — no-op
	cal2 := &mockCalendar{connected: false}
	o2 := calsync.New(cal2, store, newMockReminders(), 2, time.Hour)
	pushed, err = o2.Backfill(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, pushed)
	assert.Empty(t, cal2.created)
}

// TestOrchestrator_BackfillRetriesLostPush тестирует повторный push
// правок: задача, чей last_modified обогнал google_updated_at линка,
// досылается, а уже доехавшая — нет
func TestOrchestrator_BackfillRetriesLostPush(t *testing.T) {
	now := time.Now().Unix()
	stale := now - 600
	fresh := now + 5

	store := &mockStore{modified: []*task.Task{
		{ID: 1, UserID: 7, Text: "правка без push", LastModified: now,
			Link: task.Link{CalendarID: "primary", EventID: "ev-1", GoogleUpdatedAt: &stale}},
		{ID: 2, UserID: 7, Text: "правка доехала", LastModified: now,
			Link: task.Link{CalendarID: "primary", EventID: "ev-2", GoogleUpdatedAt: &fresh}},
		{ID: 3, UserID: 7, Text: "без линка", LastModified: now},
	}}
	cal := &mockCalendar{connected: true}
	o := calsync.New(cal, store, newMockReminders(), 2, time.Hour)

	pushed, err := o.Backfill(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed)
	assert.Equal(t, []int64{1}, cal.updated)
	assert.Empty(t, cal.created)
}

// TestOrchestrator_PullAndSchedule тестирует пересчёт напоминаний после pull
func TestOrchestrator_PullAndSchedule(t *testing.T) {
	due := time.Now().Add(2 * time.Hour).Unix()
	store := &mockStore{tasks: map[int64]*task.Task{
		10: {ID: 10, UserID: 7, Text: "импорт", Status: task.StatusOpen, DueAt: &due},
		11: {ID: 11, UserID: 7, Text: "правка", Status: task.StatusOpen, DueAt: &due},
	}}
	cal := &mockCalendar{
		connected: true,
		pull: calendar.PullResult{
			Imported: []int64{10},
			Updated:  []int64{11},
			Archived: []int64{12},
		},
	}
	rem := newMockReminders()
	o := calsync.New(cal, store, rem, 2, time.Hour)

	res, err := o.PullAndSchedule(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, cal.pull, res)

	wantRunAt := time.Unix(due, 0).Add(-time.Hour).Unix()
	require.Contains(t, rem.scheduled, int64(10))
	require.Contains(t, rem.scheduled, int64(11))
	assert.Equal(t, wantRunAt, rem.scheduled[10].Unix())
	assert.Equal(t, []int64{12}, rem.cancelled)
}
