package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tiered fronts a durable Store with an in-memory L1 and an optional Redis
// L2. L1 is fast but lost on restart, L2 survives restarts, the durable store
// is the source of truth. Dropping an L1 or L2 entry never touches the
// durable record.
type Tiered struct {
	durable    Store
	l1         sync.Map      // id → *l1Entry
	rdb        *redis.Client // nil if Redis unavailable
	ttl        time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once
}

type l1Entry struct {
	text      string
	expiresAt time.Time
}

// TieredOptions configures the front tiers.
type TieredOptions struct {
	RedisURL        string // empty disables L2
	TTL             time.Duration
	MaxEntries      int
	CleanupInterval time.Duration
}

// NewTiered wraps durable. Redis problems disable L2 instead of failing.
func NewTiered(durable Store, opts TieredOptions) *Tiered {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	t := &Tiered{durable: durable, ttl: opts.TTL, maxEntries: opts.MaxEntries, stop: make(chan struct{})}

	if opts.RedisURL != "" {
		ropts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			slog.Warn("transcript: invalid redis URL, L2 disabled", slog.Any("error", err))
		} else {
			rdb := redis.NewClient(ropts)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				slog.Warn("transcript: redis unreachable, L2 disabled", slog.Any("error", err))
				rdb.Close()
			} else {
				t.rdb = rdb
				slog.Info("transcript: L2 redis connected", slog.String("addr", ropts.Addr))
			}
		}
	}

	slog.Info("transcript: tiered cache initialized",
		slog.Duration("ttl", t.ttl), slog.Bool("redis", t.rdb != nil), slog.Int("max_entries", t.maxEntries))

	go t.cleanupLoop(opts.CleanupInterval)
	return t
}

func redisKey(id string) string {
	return "vidqa:transcript:" + id
}

// Lookup tries L1, then L2, then the durable store, filling the faster tiers
// on the way back.
func (t *Tiered) Lookup(ctx context.Context, id string) (string, bool) {
	if val, ok := t.l1.Load(id); ok {
		entry := val.(*l1Entry)
		if time.Now().Before(entry.expiresAt) {
			slog.Debug("transcript: L1 hit", slog.String("id", id))
			return entry.text, true
		}
		t.l1.Delete(id)
	}

	if t.rdb != nil {
		data, err := t.rdb.Get(ctx, redisKey(id)).Bytes()
		switch {
		case err == nil:
			text, derr := decodeRecord(id, data)
			if derr == nil {
				slog.Debug("transcript: L2 hit", slog.String("id", id))
				t.putL1(id, text)
				return text, true
			}
			miss("redis", id, derr)
		case !errors.Is(err, redis.Nil):
			slog.Debug("transcript: L2 get failed", slog.Any("error", err))
		}
	}

	text, ok := t.durable.Lookup(ctx, id)
	if !ok {
		return "", false
	}
	t.putL1(id, text)
	t.putL2(ctx, id, text)
	return text, true
}

// Store writes through: the durable write must succeed, the front tiers are
// best effort.
func (t *Tiered) Store(ctx context.Context, id, text string) error {
	if err := t.durable.Store(ctx, id, text); err != nil {
		return err
	}
	t.putL1(id, text)
	t.putL2(ctx, id, text)
	return nil
}

func (t *Tiered) Delete(ctx context.Context, id string) error {
	t.l1.Delete(id)
	if t.rdb != nil {
		if err := t.rdb.Del(ctx, redisKey(id)).Err(); err != nil {
			slog.Debug("transcript: L2 delete failed", slog.Any("error", err))
		}
	}
	return t.durable.Delete(ctx, id)
}

// Close stops the cleanup loop and the Redis client.
func (t *Tiered) Close() error {
	t.stopOnce.Do(func() { close(t.stop) })
	if t.rdb != nil {
		return t.rdb.Close()
	}
	return nil
}

func (t *Tiered) putL1(id, text string) {
	t.evictIfNeeded()
	t.l1.Store(id, &l1Entry{text: text, expiresAt: time.Now().Add(t.ttl)})
}

func (t *Tiered) putL2(ctx context.Context, id, text string) {
	if t.rdb == nil {
		return
	}
	data, err := encodeRecord(id, text)
	if err != nil {
		return
	}
	if err := t.rdb.Set(ctx, redisKey(id), data, t.ttl).Err(); err != nil {
		slog.Debug("transcript: L2 set failed", slog.Any("error", err))
	}
}

// evictIfNeeded removes entries when L1 exceeds maxEntries.
// Removes expired entries first, then the ones closest to expiry.
func (t *Tiered) evictIfNeeded() {
	if t.maxEntries <= 0 {
		return
	}

	count := 0
	t.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count < t.maxEntries {
		return
	}

	now := time.Now()
	t.l1.Range(func(key, val any) bool {
		if entry, ok := val.(*l1Entry); ok && now.After(entry.expiresAt) {
			t.l1.Delete(key)
			count--
		}
		return count >= t.maxEntries
	})

	for count >= t.maxEntries {
		var oldestKey any
		oldestAt := now.Add(t.ttl + time.Hour)
		t.l1.Range(func(key, val any) bool {
			if entry, ok := val.(*l1Entry); ok && entry.expiresAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.expiresAt
			}
			return true
		})
		if oldestKey == nil {
			break
		}
		t.l1.Delete(oldestKey)
		count--
	}
}

func (t *Tiered) cleanupLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			now := time.Now()
			t.l1.Range(func(key, val any) bool {
				if entry, ok := val.(*l1Entry); ok && now.After(entry.expiresAt) {
					t.l1.Delete(key)
				}
				return true
			})
		}
	}
}
