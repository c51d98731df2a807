package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

const ticketKeyPrefix = "ticket:"

// markUsedScript flips status atomically on the Redis side.
// Returns 1 on success, 0 when the key is missing, -1 when already used.
const markUsedScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local ticket = cjson.decode(raw)
if ticket['status'] == 'used' then
	return -1
end
ticket['status'] = 'used'
ticket['used_at'] = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(ticket))
return 1
`

// RedisStore keeps each record as a JSON string under ticket:<id>.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func ticketKey(id string) string {
	return ticketKeyPrefix + id
}

func (s *RedisStore) Save(ctx context.Context, record models.TicketRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode ticket %s: %v", status.ErrStorage, record.ID, err)
	}
	if err := s.redis.Set(ctx, ticketKey(record.ID), string(data), 0).Err(); err != nil {
		return fmt.Errorf("%w: save ticket %s: %v", status.ErrStorage, record.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.TicketRecord, error) {
	raw, err := s.redis.Get(ctx, ticketKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, status.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get ticket %s: %v", status.ErrStorage, id, err)
	}

	var record models.TicketRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("%w: decode ticket %s: %v", status.ErrStorage, id, err)
	}
	return &record, nil
}

func (s *RedisStore) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	res, err := s.redis.Eval(ctx, markUsedScript, []string{ticketKey(id)},
		usedAt.UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return fmt.Errorf("%w: mark ticket %s used: %v", status.ErrStorage, id, err)
	}

	switch res {
	case 1:
		return nil
	case -1:
		return status.ErrAlreadyUsed
	default:
		return status.ErrTicketNotFound
	}
}
