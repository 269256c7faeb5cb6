package logbuf

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/setohima/UnityMCP-VRC/internal/logx"
)

const redisKey = "unitymcp:logs"

// RedisStore keeps the ring in a Redis list so the buffer survives tool
// server restarts. Trimming to Capacity happens on every append.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore connects to addr, which may be a plain host:port or a
// redis:// / rediss:// URL with an optional database path.
func NewRedisStore(addr string) (*RedisStore, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(opts)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: c, key: redisKey}, nil
}

func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		db, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid db: %v", err)
		}
		opts.DB = db
	}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func (s *RedisStore) Append(r Record) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	ctx := context.Background()
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, -int64(Capacity), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Log.Warn().Err(err).Msg("log store append failed")
	}
}

func (s *RedisStore) Query(f Filter) ([]Record, error) {
	vals, err := s.client.LRange(context.Background(), s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query: %w", err)
	}
	recs := make([]Record, 0, len(vals))
	for _, v := range vals {
		var r Record
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	return f.apply(recs), nil
}

// Close releases the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
