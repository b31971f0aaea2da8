// Package redis provides the cluster lease that keeps the cron-triggered
// reminder pass to one instance per tick.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Lease struct {
	client *goredis.Client
	logger *slog.Logger
}

// NewLease parses a redis:// URL and verifies the server is reachable.
func NewLease(ctx context.Context, url string, logger *slog.Logger) (*Lease, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Lease{client: client, logger: logger.With("component", "lease")}, nil
}

// Acquire takes key for ttl with SET NX. The returned release is a no-op if
// the lease has already expired and been taken by someone else.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("set lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The pass context may already be cancelled on shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release lease", "key", key, "error", err)
		}
	}
	return release, true, nil
}

// Ping satisfies health.Pinger.
func (l *Lease) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Lease) Close() error {
	return l.client.Close()
}
