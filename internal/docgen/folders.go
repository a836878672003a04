package docgen

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/gdrive"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// FolderStore is the part of the remote store the resolver needs.
type FolderStore interface {
	Search(ctx context.Context, parentID string) ([]gdrive.File, error)
	CreateDirectory(ctx context.Context, parentID, name string) (string, error)
}

// TreeStore persists path -> remote folder id mappings.
type TreeStore interface {
	GetByPath(dbc dbctx.Context, path string) (*records.DirectoryTree, error)
	Upsert(dbc dbctx.Context, row *records.DirectoryTree) error
}

// FolderResolver maps a slash separated directory under the remote root to a
// remote folder id, creating missing folders. Existing folders with the same
// name are reused, so resolving twice never creates duplicates.
type FolderResolver struct {
	rootID string
	store  FolderStore
	tree   TreeStore
	log    *logger.Logger

	mu    sync.Mutex
	known map[string]string
}

func NewFolderResolver(rootID string, store FolderStore, tree TreeStore, log *logger.Logger) *FolderResolver {
	return &FolderResolver{
		rootID: rootID,
		store:  store,
		tree:   tree,
		log:    log.With("service", "FolderResolver"),
		known:  map[string]string{},
	}
}

func (r *FolderResolver) Resolve(ctx context.Context, dir string) (string, error) {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return r.rootID, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	parentID := r.rootID
	current := ""
	for _, name := range strings.Split(dir, "/") {
		current = path.Join(current, name)
		id, err := r.resolveSegment(ctx, current, parentID, name)
		if err != nil {
			return "", err
		}
		parentID = id
	}
	return parentID, nil
}

func (r *FolderResolver) resolveSegment(ctx context.Context, fullPath, parentID, name string) (string, error) {
	if id, ok := r.known[fullPath]; ok {
		return id, nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	if r.tree != nil {
		row, err := r.tree.GetByPath(dbc, fullPath)
		if err != nil {
			return "", fmt.Errorf("lookup directory %s: %w", fullPath, err)
		}
		if row != nil && row.ParentID == parentID {
			r.known[fullPath] = row.RemoteID
			return row.RemoteID, nil
		}
	}

	existing, err := r.store.Search(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", fullPath, err)
	}
	id := ""
	for _, f := range existing {
		if f.Name == name {
			id = f.ID
			r.log.Debug("Directory already exists", "path", fullPath, "id", id)
			break
		}
	}
	if id == "" {
		id, err = r.store.CreateDirectory(ctx, parentID, name)
		if err != nil {
			return "", fmt.Errorf("create %s: %w", fullPath, err)
		}
		if id == "" {
			return "", fmt.Errorf("create %s: no id received", fullPath)
		}
		r.log.Info("Directory created", "path", fullPath, "id", id)
	}

	if r.tree != nil {
		row := &records.DirectoryTree{Path: fullPath, RemoteID: id, ParentID: parentID}
		if err := r.tree.Upsert(dbc, row); err != nil {
			r.log.Warn("Persisting directory mapping failed", "path", fullPath, "error", err)
		}
	}
	r.known[fullPath] = id
	return id, nil
}
