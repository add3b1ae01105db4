package flags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/orbital-amm/internal/constants"
	"github.com/mr-tron/base58"
	"github.com/redis/go-redis/v9"
)

const (
	poolIDBytes  = 32
	maxReasonLen = 256
)

type Store struct {
	client redis.Cmdable
}

func NewStore(client redis.Cmdable) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Store{client: client}, nil
}

// ValidatePoolID accepts the base58 text of a 32-byte pool ID.
func ValidatePoolID(id string) error {
	raw, err := base58.Decode(id)
	if err != nil || len(raw) != poolIDBytes {
		return ErrInvalidPoolID
	}
	return nil
}

func (s *Store) Set(ctx context.Context, poolID string, halted bool, reason string) (*Halt, error) {
	if err := ValidatePoolID(poolID); err != nil {
		return nil, err
	}
	if len(reason) > maxReasonLen {
		return nil, fmt.Errorf("reason longer than %d bytes", maxReasonLen)
	}

	h := &Halt{PoolID: poolID, Halted: halted, Reason: reason, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("marshal halt: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, haltKey(poolID), b, 0)
	pipe.SAdd(ctx, constants.RedisKeyHaltIndex, poolID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("set halt: %w", err)
	}

	return h, nil
}

func (s *Store) Halt(ctx context.Context, poolID, reason string) (*Halt, error) {
	return s.Set(ctx, poolID, true, reason)
}

func (s *Store) Resume(ctx context.Context, poolID string) (*Halt, error) {
	return s.Set(ctx, poolID, false, "")
}

func (s *Store) Get(ctx context.Context, poolID string) (*Halt, error) {
	if err := ValidatePoolID(poolID); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, haltKey(poolID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get halt: %w", err)
	}

	var h Halt
	if err := json.Unmarshal([]byte(val), &h); err != nil {
		return nil, fmt.Errorf("unmarshal halt: %w", err)
	}
	return &h, nil
}

// IsHalted reports false for pools that were never switched.
func (s *Store) IsHalted(ctx context.Context, poolID string) (bool, error) {
	h, err := s.Get(ctx, poolID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return h.Halted, nil
}

func (s *Store) List(ctx context.Context) ([]*Halt, error) {
	ids, err := s.client.SMembers(ctx, constants.RedisKeyHaltIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("list halts index: %w", err)
	}
	if len(ids) == 0 {
		return []*Halt{}, nil
	}

	redisKeys := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := ValidatePoolID(id); err != nil {
			continue
		}
		redisKeys = append(redisKeys, haltKey(id))
	}
	if len(redisKeys) == 0 {
		return []*Halt{}, nil
	}

	vals, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget halts: %w", err)
	}

	out := make([]*Halt, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var h Halt
		if err := json.Unmarshal([]byte(str), &h); err != nil {
			continue
		}
		out = append(out, &h)
	}

	return out, nil
}

func (s *Store) Delete(ctx context.Context, poolID string) error {
	if err := ValidatePoolID(poolID); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, haltKey(poolID))
	pipe.SRem(ctx, constants.RedisKeyHaltIndex, poolID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete halt: %w", err)
	}

	return nil
}

func haltKey(poolID string) string {
	return constants.RedisKeyHaltPrefix + poolID
}
