// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Google    GoogleConfig    `yaml:"google"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Backup    BackupConfig    `yaml:"backup"`

	// владелец ассистента: все фоновые джобы работают для него
	OwnerUserID int64 `yaml:"owner_user_id"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type GoogleConfig struct {
	CalendarID          string   `yaml:"calendar_id"`
	Timezone            string   `yaml:"timezone"`
	SyncWindowDays      int      `yaml:"sync_window_days"`
	SyncIntervalMinutes int      `yaml:"sync_interval_minutes"`
	ReminderLeadMinutes int      `yaml:"reminder_lead_minutes"`
	Scopes              []string `yaml:"scopes"`
}

type SchedulerConfig struct {
	PoolSize        int    `yaml:"pool_size"`
	MorningBriefing string `yaml:"morning_briefing"` // HH:MM
	OverdueDigest   string `yaml:"overdue_digest"`   // HH:MM
	DailyDigest     string `yaml:"daily_digest"`     // HH:MM
	BackfillMinutes int    `yaml:"backfill_minutes"`
}

type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Time     string `yaml:"time"` // HH:MM
	KeepDays int    `yaml:"keep_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yml"
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	}
	defer file.Close()

	cfg := defaults()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:   ServerConfig{Host: "localhost", Port: "8080"},
		Database: DatabaseConfig{Path: "data/assistant.db", BusyTimeout: 3 * time.Second},
		Google: GoogleConfig{
			CalendarID:          "primary",
			Timezone:            "Europe/Moscow",
			SyncWindowDays:      7,
			SyncIntervalMinutes: 10,
			ReminderLeadMinutes: 60,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar.events",
				"https://www.googleapis.com/auth/calendar.readonly",
			},
		},
		Scheduler: SchedulerConfig{
			PoolSize:        4,
			MorningBriefing: "08:00",
			OverdueDigest:   "20:00",
			DailyDigest:     "21:00",
			BackfillMinutes: 15,
		},
		Backup: BackupConfig{
			Enabled:  true,
			Dir:      "data/backups",
			Time:     "02:30",
			KeepDays: 14,
		},
		OwnerUserID: 1,
	}
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// Location возвращает таймзону пользователя; при ошибке — UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Google.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ReminderLead() time.Duration {
	m := c.Google.ReminderLeadMinutes
	if m <= 0 {
		m = 60
	}
	return time.Duration(m) * time.Minute
}

// ParseHHMM разбирает время вида "08:00"; при ошибке возвращает фолбэк
func ParseHHMM(hhmm string, fallbackHour, fallbackMin int) (int, int) {
	var hh, mm int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &hh, &mm); err != nil {
		return fallbackHour, fallbackMin
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return fallbackHour, fallbackMin
	}
	return hh, mm
}
