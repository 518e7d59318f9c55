package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskAssistant/internal/logger"
	"taskAssistant/internal/models/note"
	repo "taskAssistant/internal/repository"
)

const noteColumns = `id, user_id, text, raw_text, created_at, updated_at, source, source_agent`

func (s *Store) AddNote(ctx context.Context, n *note.Note) error {
	start := time.Now()

	now := nowEpoch()
	n.CreatedAt = now
	n.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (user_id, text, raw_text, created_at, updated_at, source, source_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?);`,
		n.UserID, n.Text, n.RawText, n.CreatedAt, n.UpdatedAt, n.Source, n.SourceAgent,
	)
	if err != nil {
		logger.Error("Repository: Не удалось добавить заметку", err)
		return fmt.Errorf("добавление заметки: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rowid заметки: %w", err)
	}
	n.ID = id

	warnSlow("add_note", start)
	return nil
}

func (s *Store) GetNote(ctx context.Context, id int64) (*note.Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM notes WHERE id = ?;`, id)
	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("получение заметки: %w", err)
	}
	return n, nil
}

func (s *Store) ListNotes(ctx context.Context, userID int64, limit, offset int) ([]*note.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	return s.queryNotes(ctx, query, args...)
}

// SearchNotes — поиск по подстроке без учёта регистра
func (s *Store) SearchNotes(ctx context.Context, userID int64, keyword string, limit int) ([]*note.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes
		WHERE user_id = ? AND text LIKE '%' || ? || '%'
		ORDER BY created_at DESC, id DESC`
	args := []any{userID, keyword}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryNotes(ctx, query, args...)
}

func (s *Store) DeleteNote(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?;`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить заметку", err)
		return false, fmt.Errorf("удаление заметки: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) queryNotes(ctx context.Context, query string, args ...any) ([]*note.Note, error) {
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить заметки", err)
		return nil, fmt.Errorf("получение заметок: %w", err)
	}
	defer rows.Close()

	var notes []*note.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение строки заметки: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход строк заметок: %w", err)
	}

	warnSlow("query_notes", start)
	return notes, nil
}

func scanNote(r rowScanner) (*note.Note, error) {
	var (
		n       note.Note
		rawText sql.NullString
		source  sql.NullString
		agent   sql.NullString
	)
	err := r.Scan(&n.ID, &n.UserID, &n.Text, &rawText, &n.CreatedAt, &n.UpdatedAt, &source, &agent)
	if err != nil {
		return nil, err
	}
	n.RawText = rawText.String
	n.Source = source.String
	n.SourceAgent = agent.String
	return &n, nil
}
