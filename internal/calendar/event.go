package calendar

import (
	"regexp"
	"strings"
	"time"

	"taskAssistant/internal/models/task"

	gcal "google.golang.org/api/calendar/v3"
)

const defaultEventDuration = 60 * time.Minute

// напоминание на стороне Google, параллельно с напоминанием бота
const eventReminderMinutes = 60

// явное время вида "15:00" в исходном тексте
var timeTokenRe = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)

// IsAllDay решает, будет ли событие датой без времени: явный флаг,
// маркер дня рождения в recurrence, либо дедлайн с нулевым временем
// суток и без явного времени в сыром тексте
func IsAllDay(t *task.Task, loc *time.Location) bool {
	if t.AllDay {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(t.Recurrence), "birthday") {
		return true
	}
	if t.DueAt == nil {
		return false
	}
	due := time.Unix(*t.DueAt, 0).In(loc)
	if due.Hour() == 0 && due.Minute() == 0 && due.Second() == 0 &&
		!timeTokenRe.MatchString(t.RawText) {
		return true
	}
	return false
}

// ParseRecurrence переводит локальный токен повторения в RRULE;
// неизвестный токен — событие без повторения
func ParseRecurrence(recurrence string) []string {
	r := strings.TrimSpace(recurrence)
	if r == "" {
		return nil
	}
	upper := strings.ToUpper(r)
	if strings.HasPrefix(upper, "RRULE:") {
		return []string{upper}
	}
	switch strings.ToLower(r) {
	case "daily":
		return []string{"RRULE:FREQ=DAILY"}
	case "weekly":
		return []string{"RRULE:FREQ=WEEKLY"}
	case "monthly":
		return []string{"RRULE:FREQ=MONTHLY"}
	case "yearly", "annually", "birthday":
		return []string{"RRULE:FREQ=YEARLY"}
	}
	return nil
}

// BuildEvent собирает тело события Google из локальной задачи.
// Без времени суток — событие-дата на один день, иначе событие
// фиксированной длительности 60 минут с якорем в due_at.
func BuildEvent(t *task.Task, loc *time.Location) *gcal.Event {
	summary := strings.TrimSpace(t.Text)
	if summary == "" {
		summary = "Event"
	}
	if len([]rune(summary)) > 255 {
		summary = string([]rune(summary)[:255])
	}

	var description string
	if raw := strings.TrimSpace(t.RawText); raw != "" {
		description = raw
	}

	event := &gcal.Event{
		Summary:     summary,
		Description: description,
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: eventReminderMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if rec := ParseRecurrence(t.Recurrence); rec != nil {
		event.Recurrence = rec
	}

	switch {
	case t.DueAt == nil:
		// задача без дедлайна — событие-дата на сегодня
		day := time.Now().In(loc)
		event.Start = &gcal.EventDateTime{Date: day.Format("2006-01-02")}
		event.End = &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format("2006-01-02")}
	case IsAllDay(t, loc):
		day := time.Unix(*t.DueAt, 0).In(loc)
		event.Start = &gcal.EventDateTime{Date: day.Format("2006-01-02")}
		event.End = &gcal.EventDateTime{Date: day.AddDate(0, 0, 1).Format("2006-01-02")}
	default:
		start := time.Unix(*t.DueAt, 0).In(loc)
		end := start.Add(defaultEventDuration)
		event.Start = &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
		event.End = &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()}
	}

	return event
}

// EventStart возвращает дедлайн и признак all-day из события Google.
// ok=false для событий без начала — такие pull пропускает.
func EventStart(ev *gcal.Event, loc *time.Location) (epoch int64, allDay bool, ok bool) {
	if ev == nil || ev.Start == nil {
		return 0, false, false
	}
	if ev.Start.DateTime != "" {
		dt, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			return 0, false, false
		}
		return dt.Unix(), false, true
	}
	if ev.Start.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", ev.Start.Date, loc)
		if err != nil {
			return 0, false, false
		}
		return day.Unix(), true, true
	}
	return 0, false, false
}

// EventUpdatedEpoch разбирает поле updated (RFC3339) в epoch
func EventUpdatedEpoch(ev *gcal.Event) *int64 {
	if ev == nil || ev.Updated == "" {
		return nil
	}
	dt, err := time.Parse(time.RFC3339, ev.Updated)
	if err != nil {
		return nil
	}
	epoch := dt.Unix()
	return &epoch
}
