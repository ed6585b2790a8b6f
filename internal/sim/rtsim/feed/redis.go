package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/redis/go-redis/v9"
)

// eventField is the stream entry field holding the JSON event.
const eventField = "event"

// RedisSource reads events from a Redis stream, remembering the last entry
// id it returned.
type RedisSource struct {
	rdb    *redis.Client
	stream string
	last   string
	count  int64
	logger *log.Logger
}

// NewRedisClient connects to addr, which may be a host:port or a redis://
// URL, and checks the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisSource starts reading after lastID; "$" skips history and "0"
// replays it.
func NewRedisSource(rdb *redis.Client, stream, lastID string, logger *log.Logger) *RedisSource {
	if lastID == "" {
		lastID = "$"
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RedisSource{rdb: rdb, stream: stream, last: lastID, count: 256, logger: logger}
}

// LastID is the id of the newest entry returned so far.
func (s *RedisSource) LastID() string { return s.last }

func (s *RedisSource) Poll(ctx context.Context) ([]Event, error) {
	if s.last == "$" {
		// Pin "$" to a concrete id so nothing slips in between polls.
		msgs, err := s.rdb.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("xrevrange %s: %w", s.stream, err)
		}
		s.last = "0-0"
		if len(msgs) > 0 {
			s.last = msgs[0].ID
		}
	}
	streams, err := s.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.last},
		Count:   s.count,
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xread %s: %w", s.stream, err)
	}
	var out []Event
	for _, st := range streams {
		for _, m := range st.Messages {
			s.last = m.ID
			raw, ok := m.Values[eventField].(string)
			if !ok {
				s.logger.Printf("feed: entry %s has no %q field", m.ID, eventField)
				continue
			}
			e, err := DecodeEvent([]byte(raw))
			if err != nil {
				s.logger.Printf("feed: entry %s: %v", m.ID, err)
				continue
			}
			e.ID = m.ID
			out = append(out, e)
		}
	}
	return out, nil
}

// Publish appends an event to the stream and returns its entry id.
func Publish(ctx context.Context, rdb *redis.Client, stream string, e Event) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	id, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{eventField: string(b)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}
