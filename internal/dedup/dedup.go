// Package dedup remembers the remote copy of every uploaded artifact so a
// regenerated document replaces its predecessor instead of piling up.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/schoolfood/backoffice/internal/domain/documents"
	"github.com/schoolfood/backoffice/internal/observability"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

const DefaultHashKey = "uploadedFilesDict"

var ErrNotFound = errors.New("artifact not found in upload cache")

// Remover deletes a remote file by id.
type Remover interface {
	Remove(ctx context.Context, remoteID string) error
}

type entry struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	WebViewLink string `json:"web_view_link"`
}

type Cache struct {
	rdb     goredis.UniversalClient
	remover Remover
	key     string
	log     *logger.Logger
}

func NewCache(rdb goredis.UniversalClient, remover Remover, key string, log *logger.Logger) *Cache {
	if key == "" {
		key = DefaultHashKey
	}
	return &Cache{
		rdb:     rdb,
		remover: remover,
		key:     key,
		log:     log.With("service", "DedupCache", "hash", key),
	}
}

// Put records each artifact as the current remote copy for its name. When a
// previous entry points at a different remote file, that file and its entry
// are removed first. Failures are logged per artifact and never returned.
func (c *Cache) Put(ctx context.Context, artifacts []documents.Artifact) int {
	saved := 0
	for _, a := range artifacts {
		if !a.Uploaded() {
			c.log.Warn("Skipping artifact without remote id", "name", a.Name)
			continue
		}
		c.replacePrevious(ctx, a)
		raw, err := json.Marshal(entry{Name: a.Name, ID: a.RemoteID, WebViewLink: a.WebLink})
		if err != nil {
			c.log.Warn("Encoding cache entry failed", "name", a.Name, "error", err)
			continue
		}
		if err := c.rdb.HSet(ctx, c.key, a.Name, raw).Err(); err != nil {
			c.log.Warn("Saving cache entry failed", "name", a.Name, "error", err)
			observability.Current().IncCache("put", "error")
			continue
		}
		saved++
		observability.Current().IncCache("put", "ok")
		c.log.Debug("Saved upload", "name", a.Name, "id", a.RemoteID)
	}
	return saved
}

func (c *Cache) replacePrevious(ctx context.Context, a documents.Artifact) {
	prev, err := c.Get(ctx, a.Name)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		c.log.Warn("Looking up previous upload failed", "name", a.Name, "error", err)
		return
	}
	if prev.RemoteID == a.RemoteID {
		return
	}
	if c.remover != nil {
		if err := c.remover.Remove(ctx, prev.RemoteID); err != nil {
			c.log.Warn("Removing previous remote copy failed", "name", a.Name, "id", prev.RemoteID, "error", err)
			return
		}
	}
	if err := c.Remove(ctx, a.Name); err != nil {
		c.log.Warn("Removing previous cache entry failed", "name", a.Name, "error", err)
		return
	}
	observability.Current().IncCache("replace", "ok")
	c.log.Info("Replaced previous upload", "name", a.Name, "old_id", prev.RemoteID, "new_id", a.RemoteID)
}

func (c *Cache) Get(ctx context.Context, name string) (documents.Artifact, error) {
	raw, err := c.rdb.HGet(ctx, c.key, name).Bytes()
	if errors.Is(err, goredis.Nil) {
		return documents.Artifact{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return documents.Artifact{}, fmt.Errorf("read cache entry %s: %w", name, err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return documents.Artifact{}, fmt.Errorf("decode cache entry %s: %w", name, err)
	}
	return documents.Artifact{Name: e.Name, RemoteID: e.ID, WebLink: e.WebViewLink}, nil
}

func (c *Cache) Remove(ctx context.Context, name string) error {
	if err := c.rdb.HDel(ctx, c.key, name).Err(); err != nil {
		return fmt.Errorf("remove cache entry %s: %w", name, err)
	}
	c.log.Debug("Removed cache entry", "name", name)
	return nil
}
