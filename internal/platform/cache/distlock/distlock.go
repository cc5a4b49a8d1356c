// Package distlock provides a short-lived distributed mutual-exclusion
// lock backed by Redis, grounded on the teacher's common/mredis
// connection-hub pattern. It exists to serialize rename-driven
// re-keying of the RepositoryName index across processes — a
// cross-process concern the single-process actor mailbox cannot cover
// on its own.
package distlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/torratdev/grace/internal/mlog"
)

// Connection is a hub which deals with the lock backend's redis
// connection, mirroring common/mredis.RedisConnection.
type Connection struct {
	ConnectionString string
	Logger           mlog.Logger

	client    *redis.Client
	Connected bool
}

// Connect opens the redis client and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to redis lock backend...")

	opts, err := redis.ParseURL(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	c.client = client
	c.Connected = true

	c.Logger.Info("connected to redis lock backend")

	return nil
}

// GetClient returns the *redis.Client, connecting lazily if necessary.
func (c *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	if c.client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.client, nil
}

// Lock is a held distributed lock; Release must be called exactly once.
type Lock struct {
	conn  *Connection
	key   string
	token string
}

// Acquire attempts to take a lock named name for ttl, retrying with
// backoff until ctx is done. Grounded on the standard Redis SET NX
// lock recipe, guarded by a random token so only the acquirer can
// release it.
func Acquire(ctx context.Context, conn *Connection, name string, ttl time.Duration) (*Lock, error) {
	client, err := conn.GetClient(ctx)
	if err != nil {
		return nil, err
	}

	key := "grace:lock:" + name
	token := uuid.NewString()

	backoff := 10 * time.Millisecond

	for {
		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", name, err)
		}

		if ok {
			return &Lock{conn: conn, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			if backoff < 500*time.Millisecond {
				backoff *= 2
			}
		}
	}
}

// Release deletes the lock key if and only if it still holds this
// lock's token, via a Lua compare-and-delete.
func (l *Lock) Release(ctx context.Context) error {
	client, err := l.conn.GetClient(ctx)
	if err != nil {
		return err
	}

	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`

	return client.Eval(ctx, script, []string{l.key}, l.token).Err()
}
