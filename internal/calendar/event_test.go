package calendar_test

import (
	"os"
	"testing"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

var msk = time.FixedZone("MSK", 3*3600)

func epoch(v int64) *int64 { return &v }

// TestIsAllDay тестирует эвристику события-даты
func TestIsAllDay(t *testing.T) {
	midnight := time.Date(2026, 9, 2, 0, 0, 0, 0, msk).Unix()
	afternoon := time.Date(2026, 9, 2, 15, 0, 0, 0, msk).Unix()

	tests := []struct {
		name string
		task task.Task
		want bool
	}{
		{
			name: "явный флаг",
			task: task.Task{AllDay: true},
			want: true,
		},
		{
			name: "день рождения",
			task: task.Task{Recurrence: "birthday", DueAt: epoch(afternoon)},
			want: true,
		},
		{
			name: "полночь без времени в тексте",
			task: task.Task{DueAt: epoch(midnight), RawText: "отгул завтра"},
			want: true,
		},
		{
			name: "полночь, но время указано явно",
			task: task.Task{DueAt: epoch(midnight), RawText: "встреча завтра 0:00"},
			want: false,
		},
		{
			name: "обычный дедлайн со временем",
			task: task.Task{DueAt: epoch(afternoon), RawText: "встреча завтра 15:00"},
			want: false,
		},
		{
			name: "без дедлайна",
			task: task.Task{},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calendar.IsAllDay(&tt.task, msk))
		})
	}
}

// TestBuildEvent_Timed тестирует событие с фиксированной длительностью
func TestBuildEvent_Timed(t *testing.T) {
	due := time.Date(2026, 9, 2, 15, 0, 0, 0, msk)
	tk := &task.Task{
		Text:    "встреча с командой",
		RawText: "встреча с командой завтра 15:00",
		DueAt:   epoch(due.Unix()),
	}

	ev := calendar.BuildEvent(tk, msk)
	assert.Equal(t, "встреча с командой", ev.Summary)
	assert.Equal(t, "встреча с командой завтра 15:00", ev.Description)

	start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, ev.End.DateTime)
	require.NoError(t, err)
	assert.True(t, start.Equal(due))
	assert.Equal(t, time.Hour, end.Sub(start))

	require.NotNil(t, ev.Reminders)
	assert.False(t, ev.Reminders.UseDefault)
	require.Len(t, ev.Reminders.Overrides, 1)
	assert.Equal(t, "popup", ev.Reminders.Overrides[0].Method)
	assert.Equal(t, int64(60), ev.Reminders.Overrides[0].Minutes)
}

// TestBuildEvent_AllDay тестирует событие-дату на один день
func TestBuildEvent_AllDay(t *testing.T) {
	due := time.Date(2026, 9, 2, 0, 0, 0, 0, msk)
	tk := &task.Task{
		Text:    "отгул",
		RawText: "отгул завтра",
		DueAt:   epoch(due.Unix()),
	}

	ev := calendar.BuildEvent(tk, msk)
	assert.Equal(t, "2026-09-02", ev.Start.Date)
	assert.Equal(t, "2026-09-03", ev.End.Date)
	assert.Empty(t, ev.Start.DateTime)
}

// TestBuildEvent_Recurrence тестирует перевод токенов повторения в RRULE
func TestBuildEvent_Recurrence(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"daily", "RRULE:FREQ=DAILY"},
		{"weekly", "RRULE:FREQ=WEEKLY"},
		{"monthly", "RRULE:FREQ=MONTHLY"},
		{"yearly", "RRULE:FREQ=YEARLY"},
		{"birthday", "RRULE:FREQ=YEARLY"},
		{"rrule:freq=weekly;byday=mo", "RRULE:FREQ=WEEKLY;BYDAY=MO"},
	}
	for _, tt := range tests {
		got := calendar.ParseRecurrence(tt.token)
		require.Len(t, got, 1, tt.token)
		assert.Equal(t, tt.want, got[0])
	}

	assert.Nil(t, calendar.ParseRecurrence(""))
	assert.Nil(t, calendar.ParseRecurrence("каждый вторник"))
}

// TestEventStart тестирует разбор начала удалённого события
func TestEventStart(t *testing.T) {
	ts, allDay, ok := calendar.EventStart(&gcal.Event{
		Start: &gcal.EventDateTime{DateTime: "2026-09-02T15:00:00+03:00"},
	}, msk)
	require.True(t, ok)
	assert.False(t, allDay)
	assert.Equal(t, time.Date(2026, 9, 2, 15, 0, 0, 0, msk).Unix(), ts)

	ts, allDay, ok = calendar.EventStart(&gcal.Event{
		Start: &gcal.EventDateTime{Date: "2026-09-02"},
	}, msk)
	require.True(t, ok)
	assert.True(t, allDay)
	assert.Equal(t, time.Date(2026, 9, 2, 0, 0, 0, 0, msk).Unix(), ts)

	_, _, ok = calendar.EventStart(&gcal.Event{}, msk)
	assert.False(t, ok)
	_, _, ok = calendar.EventStart(nil, msk)
	assert.False(t, ok)
}

// TestEventUpdatedEpoch тестирует разбор поля updated
func TestEventUpdatedEpoch(t *testing.T) {
	got := calendar.EventUpdatedEpoch(&gcal.Event{Updated: "2026-09-01T10:00:00.000Z"})
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC).Unix(), *got)

	assert.Nil(t, calendar.EventUpdatedEpoch(&gcal.Event{}))
	assert.Nil(t, calendar.EventUpdatedEpoch(&gcal.Event{Updated: "мусор"}))
}
