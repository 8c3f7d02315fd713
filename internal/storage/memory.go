package storage

import (
	"fmt"
	"sync"
)

// MemoryStorage is a non-persistent StorageService used in tests and for
// throwaway deployments.
type MemoryStorage struct {
	mu             sync.Mutex
	used           int
	total          int
	usageSet       bool
	generatedCount int
	theme          string
	history        []*HistoryEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) InitSchema() error {
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) LoadUsage() (int, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, s.total, s.usageSet, nil
}

func (s *MemoryStorage) SaveUsage(used int, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = used
	s.total = total
	s.usageSet = true
	return nil
}

func (s *MemoryStorage) LoadGeneratedCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatedCount, nil
}

func (s *MemoryStorage) SaveGeneratedCount(count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generatedCount = count
	return nil
}

func (s *MemoryStorage) LoadTheme() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.theme == "" {
		return "dark", nil
	}
	return s.theme, nil
}

func (s *MemoryStorage) SaveTheme(theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.theme = theme
	return nil
}

func (s *MemoryStorage) InsertHistoryEntry(entry *HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]*HistoryEntry{entry}, s.history...)
	return nil
}

func (s *MemoryStorage) TrimHistory(limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit < 0 {
		limit = 0
	}
	if len(s.history) > limit {
		s.history = s.history[:limit]
	}
	return nil
}

func (s *MemoryStorage) ListHistory() ([]*HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*HistoryEntry, len(s.history))
	copy(entries, s.history)
	return entries, nil
}

func (s *MemoryStorage) GetHistoryEntry(id string) (*HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.history {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, nil
}

func (s *MemoryStorage) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	return nil
}
