package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/note"
	"taskAssistant/internal/repository"

	"go.uber.org/zap"
)

type NoteService struct {
	repo NoteRepository
}

func NewNoteService(repo NoteRepository) NoteService {
	return NoteService{repo: repo}
}

func (s *NoteService) AddNote(ctx context.Context, userID int64, text string) (*note.Note, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewValidationError("text", "пустой текст заметки")
	}

	n := &note.Note{
		UserID: userID,
		Text:   text,
	}
	if err := s.repo.AddNote(ctx, n); err != nil {
		return nil, fmt.Errorf("создание заметки: %w", err)
	}

	logger.Info("Service: Заметка создана",
		zap.Int64("note_id", n.ID), zap.Int64("user_id", userID))
	return n, nil
}

func (s *NoteService) GetNoteByID(ctx context.Context, id int64) (*note.Note, error) {
	n, err := s.repo.GetNote(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Info("Service: Заметка не найдена", zap.Int64("target_id", id))
			return nil, NewNotFound("заметка", id)
		}
		return nil, fmt.Errorf("получение заметки: %w", err)
	}
	return n, nil
}

func (s *NoteService) ListNotes(ctx context.Context, userID int64, limit, offset int) ([]*note.Note, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	notes, err := s.repo.ListNotes(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("получение заметок: %w", err)
	}
	return notes, nil
}

func (s *NoteService) SearchNotes(ctx context.Context, userID int64, keyword string, limit int) ([]*note.Note, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, NewValidationError("q", "пустой поисковый запрос")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	notes, err := s.repo.SearchNotes(ctx, userID, keyword, limit)
	if err != nil {
		return nil, fmt.Errorf("поиск заметок: %w", err)
	}
	return notes, nil
}

func (s *NoteService) DeleteNoteByID(ctx context.Context, id int64) error {
	ok, err := s.repo.DeleteNote(ctx, id)
	if err != nil {
		return fmt.Errorf("удаление заметки: %w", err)
	}
	if !ok {
		return NewNotFound("заметка", id)
	}
	logger.Info("Service: Заметка удалена", zap.Int64("note_id", id))
	return nil
}
