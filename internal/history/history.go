package history

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/jo-hoe/imagestudio/internal/storage"
)

// DefaultLimit caps the number of retained recent images.
const DefaultLimit = 20

// RecentImages is the bounded recent-image history: newest-first, at most
// limit entries. Every write goes through the storage service so the list
// survives restarts.
type RecentImages struct {
	mu    sync.Mutex
	store storage.StorageService
	limit int
}

func NewRecentImages(store storage.StorageService, limit int) *RecentImages {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RecentImages{
		store: store,
		limit: limit,
	}
}

// Add prepends an entry and trims the list back to the configured limit. The
// generated ID is returned so callers can reference the stored image.
func (r *RecentImages) Add(image []byte, mimeType, prompt, aspectRatio string) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", fmt.Errorf("failed to generate history id: %w", err)
	}

	entry := &storage.HistoryEntry{
		ID:          id,
		Image:       image,
		MimeType:    mimeType,
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.InsertHistoryEntry(entry); err != nil {
		return "", fmt.Errorf("failed to store history entry: %w", err)
	}
	if err := r.store.TrimHistory(r.limit); err != nil {
		return "", fmt.Errorf("failed to trim history: %w", err)
	}
	return id, nil
}

// List returns all retained entries, newest first.
func (r *RecentImages) List() ([]*storage.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ListHistory()
}

// Get returns the entry with the given id, or nil when it is not retained.
func (r *RecentImages) Get(id string) (*storage.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.GetHistoryEntry(id)
}

// Clear empties the history. The token ledger is not touched.
func (r *RecentImages) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ClearHistory()
}

// Limit returns the configured capacity.
func (r *RecentImages) Limit() int {
	return r.limit
}

func generateID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}

	// Set version (4) and variant bits according to RFC 4122
	uuid[6] = (uuid[6] & 0x0f) | 0x40 // Version 4
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // Variant is 10

	// Format as UUID string: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
	return fmt.Sprintf("%x-%x-%x-%x-%x",
		uuid[0:4],
		uuid[4:6],
		uuid[6:8],
		uuid[8:10],
		uuid[10:16]), nil
}
