package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// TemplateSync mirrors the .docx templates kept in a GCS bucket into the
// local template directory used by the document generator.
type TemplateSync interface {
	Sync(ctx context.Context, dir string) (int, error)
	Close() error
}

type templateSync struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	prefix string
}

// NewTemplateSync returns nil, nil when TEMPLATES_GCS_BUCKET is unset:
// templates are then expected on local disk.
func NewTemplateSync(ctx context.Context, log *logger.Logger) (TemplateSync, error) {
	bucket := strings.TrimSpace(os.Getenv("TEMPLATES_GCS_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	storageCfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	client, err := newStorageClientForMode(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	prefix := strings.Trim(strings.TrimSpace(os.Getenv("TEMPLATES_GCS_PREFIX")), "/")
	serviceLog := log.With("service", "TemplateSync")
	serviceLog.Info("Template bucket configured", "bucket", bucket, "prefix", prefix, "mode", storageCfg.Mode)
	return &templateSync{log: serviceLog, client: client, bucket: bucket, prefix: prefix}, nil
}

func newStorageClientForMode(ctx context.Context, storageCfg ObjectStorageConfig) (*storage.Client, error) {
	switch storageCfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(storageCfg.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(storageCfg.Mode)}
	}
}

// Sync downloads every template newer than its local copy and returns how
// many files were written.
func (s *templateSync) Sync(ctx context.Context, dir string) (int, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	written := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("list templates: %w", err)
		}
		local, ok := localTemplatePath(dir, s.prefix, attrs.Name)
		if !ok {
			continue
		}
		if upToDate(local, attrs.Updated) {
			continue
		}
		if err := s.download(ctx, attrs.Name, local); err != nil {
			return written, err
		}
		written++
		s.log.Debug("Template downloaded", "object", attrs.Name, "path", local)
	}
	s.log.Info("Templates synced", "written", written, "dir", dir)
	return written, nil
}

func (s *templateSync) download(ctx context.Context, object, local string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open template %s: %w", object, err)
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	tmp := local + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download template %s: %w", object, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, local)
}

func (s *templateSync) Close() error { return s.client.Close() }

// localTemplatePath maps an object name under prefix to a file under dir.
// Only .docx objects qualify; names escaping dir are rejected.
func localTemplatePath(dir, prefix, object string) (string, bool) {
	if !strings.HasSuffix(strings.ToLower(object), ".docx") {
		return "", false
	}
	rel := strings.TrimPrefix(object, prefix)
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" || rel == "." {
		return "", false
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), true
}

func upToDate(local string, remoteUpdated time.Time) bool {
	st, err := os.Stat(local)
	if err != nil {
		return false
	}
	return !st.ModTime().Before(remoteUpdated)
}
