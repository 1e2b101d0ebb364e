package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"laptopmcp/internal/model"
)

const (
	redisKeyPrefix = "laptop:"
	redisCounter   = "laptop:id:counter"
)

// RedisStore is the Redis MetadataStore backend. Each laptop lives at
// laptop:<id> as a JSON blob; ids come from INCR on laptop:id:counter.
// Filters scan the keyspace and match in memory, which is fine for a
// catalog of thousands of listings.
type RedisStore struct {
	addr string
	db   int

	mu     sync.Mutex
	client *redis.Client
}

func NewRedisStore(addr string, db int) *RedisStore {
	return &RedisStore{addr: addr, db: db}
}

func (s *RedisStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: s.addr,
		DB:   s.db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", s.addr, err)
	}
	s.client = client
	return nil
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *RedisStore) ensureClient(ctx context.Context) (*redis.Client, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, model.ErrNotConnected
	}
	return s.client, nil
}

func (s *RedisStore) Put(ctx context.Context, laptop model.Laptop) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(laptop)
	if err != nil {
		return err
	}
	return client.Set(ctx, redisKey(laptop.ID), data, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, id uint64) (model.Laptop, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return model.Laptop{}, err
	}
	data, err := client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Laptop{}, model.ErrNotFound
	}
	if err != nil {
		return model.Laptop{}, err
	}
	var laptop model.Laptop
	if err := json.Unmarshal(data, &laptop); err != nil {
		return model.Laptop{}, fmt.Errorf("decode %s: %w", redisKey(id), err)
	}
	return laptop, nil
}

func (s *RedisStore) GetByProductID(ctx context.Context, productID string) (model.Laptop, error) {
	laptops, err := s.All(ctx)
	if err != nil {
		return model.Laptop{}, err
	}
	for _, laptop := range laptops {
		if laptop.ProductID == productID {
			return laptop, nil
		}
	}
	return model.Laptop{}, model.ErrNotFound
}

func (s *RedisStore) All(ctx context.Context) ([]model.Laptop, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	laptops := make([]model.Laptop, 0)
	iter := client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == redisCounter {
			continue
		}
		data, err := client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, err
		}
		var laptop model.Laptop
		if err := json.Unmarshal(data, &laptop); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		laptops = append(laptops, laptop)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortByID(laptops)
	return laptops, nil
}

func (s *RedisStore) ByBrand(ctx context.Context, brand string) ([]model.Laptop, error) {
	return s.filter(ctx, func(l model.Laptop) bool {
		return strings.EqualFold(l.Brand, brand)
	})
}

func (s *RedisStore) ByKeyword(ctx context.Context, keyword string) ([]model.Laptop, error) {
	return s.filter(ctx, func(l model.Laptop) bool {
		return l.MatchesKeyword(keyword)
	})
}

func (s *RedisStore) ByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]model.Laptop, error) {
	return s.filter(ctx, func(l model.Laptop) bool {
		return l.Price >= minPrice && l.Price <= maxPrice
	})
}

func (s *RedisStore) filter(ctx context.Context, keep func(model.Laptop) bool) ([]model.Laptop, error) {
	laptops, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Laptop, 0, len(laptops))
	for _, laptop := range laptops {
		if keep(laptop) {
			out = append(out, laptop)
		}
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id uint64) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	return client.Del(ctx, redisKey(id)).Err()
}

// DeleteAll removes every laptop key but leaves the id counter, so ids are
// never reused across a reset.
func (s *RedisStore) DeleteAll(ctx context.Context) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	iter := client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		if iter.Val() == redisCounter {
			continue
		}
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

func (s *RedisStore) NextID(ctx context.Context) (uint64, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return 0, err
	}
	id, err := client.Incr(ctx, redisCounter).Result()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

func redisKey(id uint64) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, id)
}

func sortByID(laptops []model.Laptop) {
	sort.Slice(laptops, func(a, b int) bool { return laptops[a].ID < laptops[b].ID })
}
