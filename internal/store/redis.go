package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/headline-goat/variant-goat/internal/experiment"
)

// RedisStore shares assignments and events between several server
// instances. Assignments may expire after ttl; zero keeps them forever.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "vg"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedis connects to addr and verifies the connection with a PING.
func OpenRedis(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, "", ttl), nil
}

func (s *RedisStore) assignmentKey(testID, userID string) string {
	return fmt.Sprintf("%s:assign:%s:%s", s.prefix, testID, userID)
}

func (s *RedisStore) eventsKey(testID string) string {
	return fmt.Sprintf("%s:events:%s", s.prefix, testID)
}

func (s *RedisStore) testsKey() string {
	return s.prefix + ":tests"
}

func (s *RedisStore) GetAssignment(ctx context.Context, testID, userID string) (string, error) {
	v, err := s.client.Get(ctx, s.assignmentKey(testID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get assignment: %w", err)
	}
	return v, nil
}

func (s *RedisStore) CreateAssignment(ctx context.Context, a experiment.Assignment) (string, bool, error) {
	created, err := s.client.SetNX(ctx, s.assignmentKey(a.TestID, a.UserID), a.VariantID, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to create assignment: %w", err)
	}
	if created {
		return a.VariantID, true, nil
	}

	existing, err := s.GetAssignment(ctx, a.TestID, a.UserID)
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// TTL reports how long assignments live; zero means forever.
func (s *RedisStore) TTL() time.Duration {
	return s.ttl
}

func (s *RedisStore) AppendEvent(ctx context.Context, e experiment.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.eventsKey(e.TestID), b)
	pipe.SAdd(ctx, s.testsKey(), e.TestID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *RedisStore) ListEvents(ctx context.Context, testID string) ([]experiment.Event, error) {
	testIDs := []string{testID}
	if testID == "" {
		ids, err := s.client.SMembers(ctx, s.testsKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list tests: %w", err)
		}
		sort.Strings(ids)
		testIDs = ids
	}

	var events []experiment.Event
	for _, id := range testIDs {
		raw, err := s.client.LRange(ctx, s.eventsKey(id), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get events: %w", err)
		}
		for _, item := range raw {
			var e experiment.Event
			if err := json.Unmarshal([]byte(item), &e); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event: %w", err)
			}
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
