package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that SQLiteStore implements CacheRepo.
var _ CacheRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) UpsertCachedRead(cacheKey, valueJSON string, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cached_reads (cache_key, value, updated_at) VALUES (?, ?, ?)`,
		cacheKey, valueJSON, now.UTC(),
	)
	if err != nil {
		slog.Error("SQLiteStore.UpsertCachedRead failed", "error", err)
		return fmt.Errorf("upsert cached read failed: %w", err)
	}
	slog.Debug("SQLiteStore.UpsertCachedRead succeeded", "keyLength", len(cacheKey))
	return nil
}

func (s *SQLiteStore) GetCachedRead(cacheKey string) (string, bool, error) {
	var valueJSON string
	err := s.db.QueryRow(`SELECT value FROM cached_reads WHERE cache_key = ?`, cacheKey).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetCachedRead failed", "error", err)
		return "", false, fmt.Errorf("get cached read failed: %w", err)
	}
	return valueJSON, true, nil
}
