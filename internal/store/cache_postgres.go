package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Compile-time check that PostgresStore implements CacheRepo.
var _ CacheRepo = (*PostgresStore)(nil)

func (s *PostgresStore) UpsertCachedRead(cacheKey, valueJSON string, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO cached_reads (cache_key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		cacheKey, valueJSON, now.UTC(),
	)
	if err != nil {
		slog.Error("PostgresStore.UpsertCachedRead failed", "error", err)
		return fmt.Errorf("upsert cached read failed: %w", err)
	}
	slog.Debug("PostgresStore.UpsertCachedRead succeeded", "keyLength", len(cacheKey))
	return nil
}

func (s *PostgresStore) GetCachedRead(cacheKey string) (string, bool, error) {
	var valueJSON string
	err := s.db.QueryRow(`SELECT value FROM cached_reads WHERE cache_key = $1`, cacheKey).Scan(&valueJSON)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetCachedRead failed", "error", err)
		return "", false, fmt.Errorf("get cached read failed: %w", err)
	}
	return valueJSON, true, nil
}
