package handlers

import (
	"context"
	"time"

	"taskAssistant/internal/calendar"
	"taskAssistant/internal/models/note"
	"taskAssistant/internal/models/task"
)

type TaskService interface {
	CreateNewTask(ctx context.Context, userID int64, text, rawText string, dueAt *int64, options ...task.TaskOption) (*task.Task, error)
	GetTaskByID(ctx context.Context, id int64) (*task.Task, error)
	ListTasks(ctx context.Context, userID int64, status *task.Status, limit, offset int) ([]*task.Task, error)
	Agenda(ctx context.Context, userID int64, loc *time.Location) (today, overdue []*task.Task, err error)
	UpdateTaskByID(ctx context.Context, id int64, options ...task.TaskOption) (*task.Task, error)
	CompleteTask(ctx context.Context, id int64) (*task.Task, error)
	DeleteTaskByID(ctx context.Context, id int64) error
}

type NoteService interface {
	AddNote(ctx context.Context, userID int64, text string) (*note.Note, error)
	GetNoteByID(ctx context.Context, id int64) (*note.Note, error)
	ListNotes(ctx context.Context, userID int64, limit, offset int) ([]*note.Note, error)
	SearchNotes(ctx context.Context, userID int64, keyword string, limit int) ([]*note.Note, error)
	DeleteNoteByID(ctx context.Context, id int64) error
}

type SyncService interface {
	PullAndSchedule(ctx context.Context, userID int64) (calendar.PullResult, error)
	Backfill(ctx context.Context, userID int64) (int, error)
}

type CalendarStatus interface {
	IsConnected(ctx context.Context, userID int64) bool
}
