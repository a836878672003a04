package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// NewClient connects to REDIS_URL (redis:// or rediss://) or, failing that,
// REDIS_ADDR, and pings once before returning.
func NewClient(ctx context.Context, log *logger.Logger) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts, err := optionsFromEnv()
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.With("client", "Redis").Info("Redis connected", "addr", opts.Addr, "db", opts.DB, "tls", opts.TLSConfig != nil)
	return rdb, nil
}

func optionsFromEnv() (*goredis.Options, error) {
	if raw := strings.TrimSpace(os.Getenv("REDIS_URL")); raw != "" {
		opts, err := goredis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		if opts.DialTimeout == 0 {
			opts.DialTimeout = 5 * time.Second
		}
		return opts, nil
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_URL or REDIS_ADDR")
	}
	return &goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	}, nil
}
