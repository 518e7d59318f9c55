package service

import (
	"context"

	"taskAssistant/internal/models/note"
	"taskAssistant/internal/models/task"
)

type TaskRepository interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	UpdateTask(ctx context.Context, id int64, touchWatermark bool, options ...task.TaskOption) (bool, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
	ListTasks(ctx context.Context, userID int64, status *task.Status, limit, offset int) ([]*task.Task, error)
	ListUpcoming(ctx context.Context, userID int64, dueFrom, dueTo int64, limit int) ([]*task.Task, error)
	ListOverdue(ctx context.Context, userID int64, before int64, limit int) ([]*task.Task, error)
}

type NoteRepository interface {
	AddNote(ctx context.Context, n *note.Note) error
	GetNote(ctx context.Context, id int64) (*note.Note, error)
	ListNotes(ctx context.Context, userID int64, limit, offset int) ([]*note.Note, error)
	SearchNotes(ctx context.Context, userID int64, keyword string, limit int) ([]*note.Note, error)
	DeleteNote(ctx context.Context, id int64) (bool, error)
}

// SyncHooks — уведомления синхронизации после пользовательских
// операций. Вызовы не блокируют и не возвращают ошибок: судьба push-а
// операцию пользователя не касается.
type SyncHooks interface {
	OnTaskCreated(userID int64, t *task.Task)
	OnTaskUpdated(userID int64, t *task.Task)
	OnTaskDeleted(userID int64, t *task.Task)
}

// NoopHooks — заглушка для работы без календаря
type NoopHooks struct{}

func (NoopHooks) OnTaskCreated(int64, *task.Task) {}
func (NoopHooks) OnTaskUpdated(int64, *task.Task) {}
func (NoopHooks) OnTaskDeleted(int64, *task.Task) {}
