package storage

import "time"

// HistoryEntry is one persisted recent-image row.
type HistoryEntry struct {
	ID          string    `json:"id"`
	Image       []byte    `json:"image"` // PNG image data stored as binary
	MimeType    string    `json:"mimeType"`
	Prompt      string    `json:"prompt"`
	AspectRatio string    `json:"aspectRatio"`
	CreatedAt   time.Time `json:"createdAt"`
}

// StorageService persists the studio state that must survive restarts: token
// counters, the generated-image counter, the theme preference and the bounded
// recent-image history.
type StorageService interface {
	InitSchema() error
	Close() error

	LoadUsage() (used int, total int, found bool, err error)
	SaveUsage(used int, total int) error
	LoadGeneratedCount() (int, error)
	SaveGeneratedCount(count int) error

	LoadTheme() (string, error)
	SaveTheme(theme string) error

	// InsertHistoryEntry prepends an entry; implementations keep entries
	// ordered newest-first.
	InsertHistoryEntry(entry *HistoryEntry) error
	// TrimHistory drops everything beyond the newest limit entries.
	TrimHistory(limit int) error
	ListHistory() ([]*HistoryEntry, error)
	GetHistoryEntry(id string) (*HistoryEntry, error)
	ClearHistory() error
}
