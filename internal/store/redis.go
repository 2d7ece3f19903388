package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
)

const (
	messageTTL = 7 * 24 * time.Hour
	dmTTL      = 7 * 24 * time.Hour
	maxHistory = 1000
)

// RedisStore handles Redis operations for message history and rate limiting.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// channelMessagesKey returns the key for a channel's message sorted set.
func channelMessagesKey(channelID string) string {
	return fmt.Sprintf("channel:%s:messages", channelID)
}

// dmInboxKey returns the key for a user's private message inbox.
func dmInboxKey(userID int64) string {
	return fmt.Sprintf("dm:%d:inbox", userID)
}

// AddMessage stores a channel message. ID and timestamp are filled when empty.
func (s *RedisStore) AddMessage(ctx context.Context, msg *models.Message) error {
	defer metrics.ObserveRedis()()

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := channelMessagesKey(msg.ChannelID)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	})
	// Keep only the newest maxHistory entries
	pipe.ZRemRangeByRank(ctx, key, 0, -maxHistory-1)
	pipe.Expire(ctx, key, messageTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetChannelMessages retrieves messages from a channel, newest first.
// before is an exclusive upper bound in Unix ms; 0 means now.
func (s *RedisStore) GetChannelMessages(ctx context.Context, channelID string, limit int, before int64) ([]models.Message, error) {
	defer metrics.ObserveRedis()()

	maxScore := "+inf"
	if before > 0 {
		maxScore = "(" + strconv.FormatInt(before, 10) // exclusive
	}

	results, err := s.client.ZRevRangeByScore(ctx, channelMessagesKey(channelID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// StoreDM stores a private message in the recipient's inbox.
func (s *RedisStore) StoreDM(ctx context.Context, dm *models.DirectMessage) error {
	defer metrics.ObserveRedis()()

	if dm.ID == "" {
		dm.ID = ulid.Make().String()
	}
	if dm.Timestamp == 0 {
		dm.Timestamp = time.Now().UnixMilli()
	}

	dmJSON, err := json.Marshal(dm)
	if err != nil {
		return err
	}

	key := dmInboxKey(dm.ToID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(dm.Timestamp),
		Member: string(dmJSON),
	})
	pipe.ZRemRangeByRank(ctx, key, 0, -maxHistory-1)
	pipe.Expire(ctx, key, dmTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetDMsForUser retrieves private messages addressed to userID, newest first.
func (s *RedisStore) GetDMsForUser(ctx context.Context, userID int64, limit int) ([]models.DirectMessage, error) {
	defer metrics.ObserveRedis()()

	if limit <= 0 {
		limit = 100
	}

	results, err := s.client.ZRevRange(ctx, dmInboxKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	dms := make([]models.DirectMessage, 0, len(results))
	for _, data := range results {
		var dm models.DirectMessage
		if err := json.Unmarshal([]byte(data), &dm); err != nil {
			continue
		}
		dms = append(dms, dm)
	}

	return dms, nil
}

// Hit counts one request against key in a fixed window. The window opens on
// the first hit; ttl is the time left until it resets.
func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	defer metrics.ObserveRedis()()

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	left := ttl.Val()
	if left <= 0 {
		left = window
	}
	return incr.Val(), left, nil
}

func blockKey(ip string) string { return "blocked:ip:" + ip }

// Block bans ip for d, recording why.
func (s *RedisStore) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	return s.client.Set(ctx, blockKey(ip), reason, d).Err()
}

// IsBlocked reports whether ip is currently banned.
func (s *RedisStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := s.client.Exists(ctx, blockKey(ip)).Result()
	return n > 0, err
}

// SecretPasswordReset marks codes issued by the password recovery flow.
const SecretPasswordReset = "password_reset"

func secretKey(kind, code string) string { return "secret:" + kind + ":" + code }

// CreateSecret issues a single-use code for userID that expires after ttl.
func (s *RedisStore) CreateSecret(ctx context.Context, userID int64, kind string, ttl time.Duration) (string, error) {
	defer metrics.ObserveRedis()()

	code := uuid.NewString()
	if err := s.client.Set(ctx, secretKey(kind, code), userID, ttl).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// TakeSecret consumes code and returns the user it was issued for, or 0 when
// the code is unknown, expired or already used.
func (s *RedisStore) TakeSecret(ctx context.Context, code, kind string) (int64, error) {
	defer metrics.ObserveRedis()()

	id, err := s.client.GetDel(ctx, secretKey(kind, code)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return id, err
}
