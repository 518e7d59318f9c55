package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"taskAssistant/internal/logger"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store — встраиваемое хранилище задач, заметок и служебных таблиц.
// Единственный писатель строк tasks/notes; каждый CRUD-вызов — одна транзакция.
type Store struct {
	db   *sql.DB
	path string
}

func New(path string, busyTimeout time.Duration) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("создание каталога БД: %w", err)
		}
	}

	if busyTimeout <= 0 {
		busyTimeout = 3 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=%d",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		logger.Error("Repository: Ошибка открытия SQLite", err)
		return nil, fmt.Errorf("открытие БД: %w", err)
	}
	// одно соединение: sqlite сам сериализует писателей, а нам не нужны
	// блокировки database is locked между пулом соединений
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		logger.Error("Repository: Ошибка миграции схемы", err)
		return nil, fmt.Errorf("миграция схемы: %w", err)
	}

	logger.Info("Repository: SQLite хранилище открыто")
	return s, nil
}

func (s *Store) Close() error {
	logger.Info("Repository: Закрытие SQLite хранилища")
	return s.db.Close()
}

// DB отдаёт низкоуровневый handle для компонентов со своими таблицами
// (vault, scheduler) — строки tasks/notes они не трогают
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path — путь к файлу БД; нужен джобу бэкапа
func (s *Store) Path() string {
	return s.path
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

// BackupTo пишет консистентную копию базы в отдельный файл.
// VACUUM INTO безопасен при открытом WAL.
func (s *Store) BackupTo(ctx context.Context, path string) error {
	defer warnSlow("BackupTo", time.Now())
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("backup базы: %w", err)
	}
	return nil
}

func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	if err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func nowEpoch() int64 {
	return time.Now().Unix()
}

func warnSlow(op string, start time.Time) {
	if time.Since(start) > 100*time.Millisecond {
		logger.Warn("Repository: Медленная операция",
			zap.String("op", op),
			zap.Duration("ms", time.Since(start)))
	}
}
