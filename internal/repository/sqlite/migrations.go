package sqlite

import (
	"database/sql"
	"fmt"

	"taskAssistant/internal/logger"

	"go.uber.org/zap"
)

const schemaVersion = 3

// migrate накатывает схему аддитивно: только новые nullable-колонки,
// существующие строки получают осмысленный бэкфилл. Данные работающей
// инсталляции при апгрейде не теряются.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("schema_version: %w", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version;`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_version(version) VALUES (0);`); err != nil {
			return err
		}
	}

	// v1: базовые таблицы (схема первой версии, дальше только ALTER)
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			raw_text TEXT,
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open','done','archived')),
			due_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			source TEXT,
			source_agent TEXT
		);

		CREATE TABLE IF NOT EXISTS notes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			raw_text TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			source TEXT,
			source_agent TEXT
		);
	`); err != nil {
		return fmt.Errorf("базовые таблицы: %w", err)
	}

	current, err := s.version()
	if err != nil {
		return err
	}

	// v2: водяной знак синхронизации; у старых строк — из updated_at,
	// чтобы порядок вотермарок не ломался при апгрейде
	if ok, err := s.columnExists("tasks", "last_modified"); err != nil {
		return err
	} else if !ok {
		if _, err := s.db.Exec(`ALTER TABLE tasks ADD COLUMN last_modified INTEGER;`); err != nil {
			return fmt.Errorf("v2 last_modified: %w", err)
		}
		if _, err := s.db.Exec(`UPDATE tasks SET last_modified = updated_at WHERE last_modified IS NULL;`); err != nil {
			return fmt.Errorf("v2 бэкфилл last_modified: %w", err)
		}
		logger.Info("Repository: миграция v2 — last_modified добавлен", zap.Int("was", current))
	}

	// v3: типизированная связка с календарём вместо extra-JSON
	v3cols := []struct{ name, ddl string }{
		{"calendar_id", `ALTER TABLE tasks ADD COLUMN calendar_id TEXT NOT NULL DEFAULT '';`},
		{"calendar_event_id", `ALTER TABLE tasks ADD COLUMN calendar_event_id TEXT NOT NULL DEFAULT '';`},
		{"calendar_event_etag", `ALTER TABLE tasks ADD COLUMN calendar_event_etag TEXT NOT NULL DEFAULT '';`},
		{"google_updated_at", `ALTER TABLE tasks ADD COLUMN google_updated_at INTEGER;`},
		{"all_day", `ALTER TABLE tasks ADD COLUMN all_day INTEGER NOT NULL DEFAULT 0;`},
		{"recurrence", `ALTER TABLE tasks ADD COLUMN recurrence TEXT NOT NULL DEFAULT '';`},
		{"notes", `ALTER TABLE tasks ADD COLUMN notes TEXT NOT NULL DEFAULT '';`},
		{"person_id", `ALTER TABLE tasks ADD COLUMN person_id INTEGER;`},
	}
	for _, col := range v3cols {
		ok, err := s.columnExists("tasks", col.name)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.db.Exec(col.ddl); err != nil {
				return fmt.Errorf("v3 %s: %w", col.name, err)
			}
		}
	}

	if err := s.ensureIndexes(); err != nil {
		return err
	}

	if current < schemaVersion {
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?;`, schemaVersion); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureIndexes() error {
	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_tasks_due_at ON tasks(due_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks(user_id, due_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_last_modified ON tasks(last_modified);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_calendar_event
			ON tasks(user_id, calendar_id, calendar_event_id)
			WHERE calendar_event_id != '';
	`)
	if err != nil {
		return fmt.Errorf("индексы: %w", err)
	}
	return nil
}

func (s *Store) version() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1;`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func (s *Store) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
