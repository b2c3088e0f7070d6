// Package cache mirrors collector state into Redis.
package cache

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/stores/redis"
)

// mappingPayload is the msgpack document stored under SymbolMappingKey.
type mappingPayload struct {
	Version int               `msgpack:"v"`
	Entries map[string]string `msgpack:"entries"`
}

const mappingPayloadVersion = 1

// MappingStore keeps the symbol mapping in a single Redis key. It satisfies
// symbols.MappingStore.
type MappingStore struct {
	rds *redis.Redis
	key string
}

// NewMappingStore returns nil when no Redis host is configured.
func NewMappingStore(conf redis.RedisConf, env, provider string) (*MappingStore, error) {
	if conf.Host == "" {
		return nil, nil
	}
	rds, err := redis.NewRedis(conf)
	if err != nil {
		return nil, fmt.Errorf("cache: connect redis %s: %w", conf.Host, err)
	}
	return &MappingStore{rds: rds, key: SymbolMappingKey(env, provider)}, nil
}

// Key returns the Redis key in use.
func (s *MappingStore) Key() string {
	return s.key
}

// Load returns the mirrored mapping, or an empty map when the key is absent.
func (s *MappingStore) Load(ctx context.Context) (map[string]string, error) {
	raw, err := s.rds.GetCtx(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", s.key, err)
	}
	if raw == "" {
		return map[string]string{}, nil
	}
	return decodeMapping([]byte(raw))
}

// Save replaces the mirrored mapping. Entries never expire.
func (s *MappingStore) Save(ctx context.Context, mapping map[string]string) error {
	data, err := encodeMapping(mapping)
	if err != nil {
		return err
	}
	if err := s.rds.SetCtx(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("cache: set %s: %w", s.key, err)
	}
	return nil
}

func encodeMapping(mapping map[string]string) ([]byte, error) {
	if mapping == nil {
		mapping = map[string]string{}
	}
	data, err := msgpack.Marshal(mappingPayload{Version: mappingPayloadVersion, Entries: mapping})
	if err != nil {
		return nil, fmt.Errorf("cache: encode mapping: %w", err)
	}
	return data, nil
}

func decodeMapping(data []byte) (map[string]string, error) {
	var payload mappingPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("cache: decode mapping: %w", err)
	}
	if payload.Version != mappingPayloadVersion {
		return nil, fmt.Errorf("cache: unsupported mapping payload version %d", payload.Version)
	}
	if payload.Entries == nil {
		payload.Entries = map[string]string{}
	}
	return payload.Entries, nil
}
