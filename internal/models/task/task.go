package task

import "time"

// Epoch — время в секундах unix, как оно лежит в БД
type Epoch = int64

type Status string

const StatusOpen Status = "open"
const StatusDone Status = "done"
const StatusArchived Status = "archived"

// Link — связка локальной задачи с событием в удалённом календаре.
// Заполнена тогда и только тогда, когда задача хотя бы раз была
// успешно отправлена или импортирована.
type Link struct {
	CalendarID      string `json:"calendar_id,omitempty" db:"calendar_id"`
	EventID         string `json:"calendar_event_id,omitempty" db:"calendar_event_id"`
	Etag            string `json:"calendar_event_etag,omitempty" db:"calendar_event_etag"`
	GoogleUpdatedAt *Epoch `json:"google_updated_at,omitempty" db:"google_updated_at"`
}

type Task struct {
	ID      int64  `json:"id" db:"id"`
	UserID  int64  `json:"user_id" db:"user_id"`
	Text    string `json:"text" db:"text"`
	RawText string `json:"raw_text,omitempty" db:"raw_text"`
	Status  Status `json:"status" db:"status"`
	DueAt   *Epoch `json:"due_at,omitempty" db:"due_at"`

	CreatedAt Epoch `json:"created_at" db:"created_at"`
	UpdatedAt Epoch `json:"updated_at" db:"updated_at"`
	// LastModified — водяной знак синхронизации: двигается только
	// пользовательскими правками, не служебными записями линка
	LastModified Epoch `json:"last_modified" db:"last_modified"`

	Source      string `json:"source,omitempty" db:"source"`
	SourceAgent string `json:"source_agent,omitempty" db:"source_agent"`

	Recurrence string `json:"recurrence,omitempty" db:"recurrence"`
	Notes      string `json:"notes,omitempty" db:"notes"`
	PersonID   *int64 `json:"person_id,omitempty" db:"person_id"`
	AllDay     bool   `json:"all_day,omitempty" db:"all_day"`

	Link Link `json:"link,omitempty"`
}

func (t *Task) Linked() bool {
	return t.Link.EventID != ""
}

func (t *Task) Due() (time.Time, bool) {
	if t.DueAt == nil {
		return time.Time{}, false
	}
	return time.Unix(*t.DueAt, 0), true
}
