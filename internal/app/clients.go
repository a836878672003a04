package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/schoolfood/backoffice/internal/clients/redis"
	"github.com/schoolfood/backoffice/internal/platform/gdrive"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type Clients struct {
	Redis *goredis.Client
	Drive gdrive.Service
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	rdb, err := redis.NewClient(ctx, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	drive, err := gdrive.NewService(ctx, log)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init drive: %w", err)
	}
	return Clients{Redis: rdb, Drive: drive}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
