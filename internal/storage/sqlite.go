package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Settings keys for the persisted counters and preferences.
const (
	settingUsedTokens     = "usedTokens"
	settingTotalTokens    = "totalTokens"
	settingGeneratedCount = "generatedCount"
	settingTheme          = "theme"
)

type SQLiteStorage struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteStorage(connectionString string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// A single connection keeps every statement on the same database, which
	// :memory: requires, and sidesteps sqlite writer contention.
	db.SetMaxOpenConns(1)

	return &SQLiteStorage{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteStorage) InitSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT
	)`)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		image BLOB,
		mime_type TEXT,
		prompt TEXT,
		aspect_ratio TEXT,
		created_at INTEGER,
		position INTEGER
	)`)
	return err
}

func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStorage) LoadUsage() (int, int, bool, error) {
	used, foundUsed, err := s.getIntSetting(settingUsedTokens)
	if err != nil {
		return 0, 0, false, err
	}
	total, foundTotal, err := s.getIntSetting(settingTotalTokens)
	if err != nil {
		return 0, 0, false, err
	}
	return used, total, foundUsed && foundTotal, nil
}

func (s *SQLiteStorage) SaveUsage(used int, total int) error {
	if err := s.setSetting(settingUsedTokens, strconv.Itoa(used)); err != nil {
		return err
	}
	return s.setSetting(settingTotalTokens, strconv.Itoa(total))
}

func (s *SQLiteStorage) LoadGeneratedCount() (int, error) {
	count, _, err := s.getIntSetting(settingGeneratedCount)
	return count, err
}

func (s *SQLiteStorage) SaveGeneratedCount(count int) error {
	return s.setSetting(settingGeneratedCount, strconv.Itoa(count))
}

func (s *SQLiteStorage) LoadTheme() (string, error) {
	value, found, err := s.getSetting(settingTheme)
	if err != nil {
		return "", err
	}
	if !found {
		return "dark", nil
	}
	return value, nil
}

func (s *SQLiteStorage) SaveTheme(theme string) error {
	return s.setSetting(settingTheme, theme)
}

func (s *SQLiteStorage) InsertHistoryEntry(entry *HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}

	// New entries go to the front; shifting existing positions keeps the
	// newest-first order stable even for entries sharing a timestamp.
	_, err := s.db.Exec("UPDATE history SET position = position + 1")
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		"INSERT INTO history (id, image, mime_type, prompt, aspect_ratio, created_at, position) VALUES (?, ?, ?, ?, ?, ?, 0)",
		entry.ID, entry.Image, entry.MimeType, entry.Prompt, entry.AspectRatio, entry.CreatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStorage) TrimHistory(limit int) error {
	if limit < 0 {
		limit = 0
	}
	_, err := s.db.Exec("DELETE FROM history WHERE position >= ?", limit)
	return err
}

func (s *SQLiteStorage) ListHistory() ([]*HistoryEntry, error) {
	rows, err := s.db.Query(
		"SELECT id, image, mime_type, prompt, aspect_ratio, created_at FROM history ORDER BY position ASC")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) GetHistoryEntry(id string) (*HistoryEntry, error) {
	row := s.db.QueryRow(
		"SELECT id, image, mime_type, prompt, aspect_ratio, created_at FROM history WHERE id = ?", id)

	entry, err := scanHistoryEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *SQLiteStorage) ClearHistory() error {
	_, err := s.db.Exec("DELETE FROM history")
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryEntry(row rowScanner) (*HistoryEntry, error) {
	var entry HistoryEntry
	var createdAt int64
	if err := row.Scan(&entry.ID, &entry.Image, &entry.MimeType, &entry.Prompt, &entry.AspectRatio, &createdAt); err != nil {
		return nil, err
	}
	entry.CreatedAt = time.Unix(0, createdAt)
	return &entry, nil
}

func (s *SQLiteStorage) getSetting(key string) (string, bool, error) {
	row := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key)
	var value string
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStorage) getIntSetting(key string) (int, bool, error) {
	value, found, err := s.getSetting(key)
	if err != nil || !found {
		return 0, found, err
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("setting %s holds non-numeric value %q: %w", key, value, err)
	}
	return parsed, true, nil
}

func (s *SQLiteStorage) setSetting(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	return err
}
