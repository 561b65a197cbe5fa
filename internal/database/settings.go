package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

const settingRepoTimeout = 2 * time.Second

const (
	SettingForcedStateResync       = "forced_state_resync"
	SettingDefaultDispatcherVolume = "default_audio_dispatcher_volume"
	SettingQualityPasses           = "music_player_quality_passes"
	SettingAnnounceChannel         = "announce_channel_id"
)

var ErrNoDatabase = errors.New("database is not configured")

// Settings is the raw key/value view of a guild's setting collection.
type Settings map[string]string

func (s Settings) String(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

func (s Settings) Bool(key string, def bool) bool {
	if v, ok := s[key]; ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s Settings) Int(key string, def int) int {
	if v, ok := s[key]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s Settings) Float(key string, def float64) float64 {
	if v, ok := s[key]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

type SettingRepository struct {
	db *sql.DB
}

func NewSettingRepository(conn *sql.DB) *SettingRepository {
	return &SettingRepository{db: conn}
}

func NewSettingRepositoryFromDefault() *SettingRepository {
	return &SettingRepository{db: GetDB()}
}

func (r *SettingRepository) Settings(ctx context.Context, guildID string) (Settings, error) {
	settings := Settings{}
	if r == nil || r.db == nil {
		return settings, nil
	}
	if guildID == "" {
		return settings, fmt.Errorf("guild id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, settingRepoTimeout)
	defer cancel()

	const query = `
		SELECT key, value
		FROM guild_settings
		WHERE guild_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

func (r *SettingRepository) SetSetting(ctx context.Context, guildID, key, value string) error {
	if r == nil || r.db == nil {
		return ErrNoDatabase
	}
	if guildID == "" || key == "" {
		return fmt.Errorf("guild id and key are required")
	}

	ctx, cancel := context.WithTimeout(ctx, settingRepoTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, upsertSettingQuery, guildID, key, value)
	return err
}

func (r *SettingRepository) SetSettings(ctx context.Context, guildID string, values map[string]string) error {
	if r == nil || r.db == nil {
		return ErrNoDatabase
	}
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, settingRepoTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, upsertSettingQuery, guildID, key, values[key]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return tx.Commit()
}

const upsertSettingQuery = `
	INSERT INTO guild_settings (guild_id, key, value, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (guild_id, key)
	DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = NOW();
`
