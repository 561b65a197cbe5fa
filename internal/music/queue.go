package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	internalredis "github.com/hxnx/moetune/internal/redis"
	redislib "github.com/redis/go-redis/v9"
)

var ErrUnknownField = errors.New("unknown queue field")

const (
	FieldTracks          = "tracks"
	FieldPosition        = "position"
	FieldQueueEndReached = "queue_end_reached"
)

const queueKeyPrefix = "music:queue:"

// QueueRepository mirrors queue records outside the process.
type QueueRepository interface {
	Get(ctx context.Context, guildID string) (*Queue, error)
	Set(ctx context.Context, guildID string, field string, value any) error
	SetMultiple(ctx context.Context, guildID string, values map[string]any) error
}

// QueueStore keeps one redis hash per guild.
type QueueStore struct {
	client *redislib.Client
}

func NewQueueStore(client *redislib.Client) *QueueStore {
	return &QueueStore{client: client}
}

func NewQueueStoreFromDefault() *QueueStore {
	return &QueueStore{client: internalredis.Client()}
}

func (q *QueueStore) ensureClient() error {
	if q.client != nil {
		return nil
	}

	q.client = internalredis.Client()
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	return nil
}

func (q *QueueStore) Get(ctx context.Context, guildID string) (*Queue, error) {
	if err := q.ensureClient(); err != nil {
		return nil, err
	}
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	data, err := q.client.HGetAll(ctx, queueKey(guildID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	queue := &Queue{Tracks: []Track{}}
	if raw, ok := data[FieldTracks]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &queue.Tracks); err != nil {
			return nil, fmt.Errorf("failed to decode tracks: %w", err)
		}
	}
	if raw, ok := data[FieldPosition]; ok && raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			queue.Position = parsed
		}
	}
	if raw, ok := data[FieldQueueEndReached]; ok && raw != "" {
		queue.QueueEndReached = raw == "true"
	}

	return queue, nil
}

func (q *QueueStore) Set(ctx context.Context, guildID string, field string, value any) error {
	return q.SetMultiple(ctx, guildID, map[string]any{field: value})
}

func (q *QueueStore) SetMultiple(ctx context.Context, guildID string, values map[string]any) error {
	if err := q.ensureClient(); err != nil {
		return err
	}
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}
	if len(values) == 0 {
		return nil
	}

	encoded := make(map[string]any, len(values))
	for field, value := range values {
		v, err := encodeField(field, value)
		if err != nil {
			return err
		}
		encoded[field] = v
	}

	return q.client.HSet(ctx, queueKey(guildID), encoded).Err()
}

func (q *QueueStore) Delete(ctx context.Context, guildID string) error {
	if err := q.ensureClient(); err != nil {
		return err
	}
	if guildID == "" {
		return fmt.Errorf("guild id is required")
	}

	return q.client.Del(ctx, queueKey(guildID)).Err()
}

func encodeField(field string, value any) (string, error) {
	switch field {
	case FieldTracks:
		tracks, ok := value.([]Track)
		if !ok {
			return "", fmt.Errorf("%s expects []Track, got %T", field, value)
		}
		if tracks == nil {
			tracks = []Track{}
		}
		b, err := json.Marshal(tracks)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case FieldPosition:
		position, ok := value.(int)
		if !ok {
			return "", fmt.Errorf("%s expects int, got %T", field, value)
		}
		return strconv.Itoa(position), nil
	case FieldQueueEndReached:
		reached, ok := value.(bool)
		if !ok {
			return "", fmt.Errorf("%s expects bool, got %T", field, value)
		}
		return strconv.FormatBool(reached), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
}

func queueKey(guildID string) string {
	return queueKeyPrefix + guildID
}
