package dto

import (
	"time"

	"taskAssistant/internal/models/note"
	"taskAssistant/internal/models/task"
)

type CreateTaskRequest struct {
	Text       string `json:"text"`
	RawText    string `json:"raw_text,omitempty"`
	DueAt      *int64 `json:"due_at,omitempty"`
	AllDay     bool   `json:"all_day,omitempty"`
	Recurrence string `json:"recurrence,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// UpdateTaskRequest: nil-поля не трогаются; снятие дедлайна — ClearDue
type UpdateTaskRequest struct {
	Text       *string `json:"text,omitempty"`
	Status     *string `json:"status,omitempty"`
	DueAt      *int64  `json:"due_at,omitempty"`
	ClearDue   bool    `json:"clear_due,omitempty"`
	AllDay     *bool   `json:"all_day,omitempty"`
	Recurrence *string `json:"recurrence,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type TaskResponse struct {
	ID              int64  `json:"id"`
	UserID          int64  `json:"user_id"`
	Text            string `json:"text"`
	RawText         string `json:"raw_text,omitempty"`
	Status          string `json:"status"`
	DueAt           *int64 `json:"due_at,omitempty"`
	AllDay          bool   `json:"all_day,omitempty"`
	Recurrence      string `json:"recurrence,omitempty"`
	Notes           string `json:"notes,omitempty"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
	LastModified    int64  `json:"last_modified"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
	IsOverdue       bool   `json:"is_overdue"`
}

func FromTask(t *task.Task) TaskResponse {
	return TaskResponse{
		ID:              t.ID,
		UserID:          t.UserID,
		Text:            t.Text,
		RawText:         t.RawText,
		Status:          string(t.Status),
		DueAt:           t.DueAt,
		AllDay:          t.AllDay,
		Recurrence:      t.Recurrence,
		Notes:           t.Notes,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		LastModified:    t.LastModified,
		CalendarEventID: t.Link.EventID,
		IsOverdue: t.Status == task.StatusOpen &&
			t.DueAt != nil && *t.DueAt < time.Now().Unix(),
	}
}

func FromTaskList(tasks []*task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}

type CreateNoteRequest struct {
	Text string `json:"text"`
}

type NoteResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

func FromNote(n *note.Note) NoteResponse {
	return NoteResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Text:      n.Text,
		CreatedAt: n.CreatedAt,
	}
}

func FromNoteList(notes []*note.Note) []NoteResponse {
	result := make([]NoteResponse, len(notes))
	for i, n := range notes {
		result[i] = FromNote(n)
	}
	return result
}
