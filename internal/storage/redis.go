package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const redisHistoryKey = "history"

// RedisStorage keeps the persisted client state in a redis instance. The
// history is a redis list holding JSON entries, newest-first, which makes the
// prepend-then-trim contract a pair of LPUSH/LTRIM calls.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(connectionString string) (*RedisStorage, error) {
	options, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}

	return &RedisStorage{
		client: redis.NewClient(options),
	}, nil
}

func (s *RedisStorage) InitSchema() error {
	// Redis is schemaless; a ping verifies the instance is reachable.
	return s.client.Ping(context.Background()).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) LoadUsage() (int, int, bool, error) {
	ctx := context.Background()

	used, foundUsed, err := s.getInt(ctx, settingUsedTokens)
	if err != nil {
		return 0, 0, false, err
	}
	total, foundTotal, err := s.getInt(ctx, settingTotalTokens)
	if err != nil {
		return 0, 0, false, err
	}
	return used, total, foundUsed && foundTotal, nil
}

func (s *RedisStorage) SaveUsage(used int, total int) error {
	ctx := context.Background()
	if err := s.client.Set(ctx, settingUsedTokens, used, 0).Err(); err != nil {
		return err
	}
	return s.client.Set(ctx, settingTotalTokens, total, 0).Err()
}

func (s *RedisStorage) LoadGeneratedCount() (int, error) {
	count, _, err := s.getInt(context.Background(), settingGeneratedCount)
	return count, err
}

func (s *RedisStorage) SaveGeneratedCount(count int) error {
	return s.client.Set(context.Background(), settingGeneratedCount, count, 0).Err()
}

func (s *RedisStorage) LoadTheme() (string, error) {
	value, err := s.client.Get(context.Background(), settingTheme).Result()
	if errors.Is(err, redis.Nil) {
		return "dark", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisStorage) SaveTheme(theme string) error {
	return s.client.Set(context.Background(), settingTheme, theme, 0).Err()
}

func (s *RedisStorage) InsertHistoryEntry(entry *HistoryEntry) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	return s.client.LPush(context.Background(), redisHistoryKey, payload).Err()
}

func (s *RedisStorage) TrimHistory(limit int) error {
	ctx := context.Background()
	if limit <= 0 {
		return s.client.Del(ctx, redisHistoryKey).Err()
	}
	return s.client.LTrim(ctx, redisHistoryKey, 0, int64(limit-1)).Err()
}

func (s *RedisStorage) ListHistory() ([]*HistoryEntry, error) {
	values, err := s.client.LRange(context.Background(), redisHistoryKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*HistoryEntry, 0, len(values))
	for _, value := range values {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *RedisStorage) GetHistoryEntry(id string) (*HistoryEntry, error) {
	entries, err := s.ListHistory()
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return nil, nil
}

func (s *RedisStorage) ClearHistory() error {
	return s.client.Del(context.Background(), redisHistoryKey).Err()
}

func (s *RedisStorage) getInt(ctx context.Context, key string) (int, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("key %s holds non-numeric value %q: %w", key, value, err)
	}
	return parsed, true, nil
}
