package transcript

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
)

// Open builds the store selected by CACHE_BACKEND behind the tiered front.
// The returned closer releases every layer.
func Open(ctx context.Context, c engine.Config) (Store, io.Closer, error) {
	var (
		durable Store
		closers []io.Closer
	)

	switch c.CacheBackend {
	case "", "file":
		fs, err := NewFileStore(c.CacheDir)
		if err != nil {
			return nil, nil, err
		}
		durable = fs
	case "sqlite":
		st, err := OpenSQLite(c.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		durable = st
		closers = append(closers, st)
	case "postgres":
		st, err := ConnectPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		durable = st
		closers = append(closers, st)
	case "s3":
		st, err := NewS3Store(ctx, c.S3Bucket)
		if err != nil {
			return nil, nil, err
		}
		durable = st
	case "dynamodb":
		st, err := NewDynamoStore(ctx, c.DynamoTable)
		if err != nil {
			return nil, nil, err
		}
		durable = st
	default:
		return nil, nil, fmt.Errorf("transcript: unknown CACHE_BACKEND %q", c.CacheBackend)
	}

	slog.Info("transcript: store opened", slog.String("backend", backendName(c.CacheBackend)))

	tiered := NewTiered(durable, TieredOptions{
		RedisURL:   c.RedisURL,
		TTL:        c.CacheTTL,
		MaxEntries: c.CacheMaxEntries,
	})
	closers = append([]io.Closer{tiered}, closers...)
	return tiered, multiCloser(closers), nil
}

func backendName(b string) string {
	if b == "" {
		return "file"
	}
	return b
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
