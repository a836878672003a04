// Package docgen turns document specs into filled .docx files placed in a
// local directory that mirrors a remote folder.
package docgen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schoolfood/backoffice/internal/domain/documents"
	"github.com/schoolfood/backoffice/internal/platform/logger"
	"github.com/schoolfood/backoffice/internal/platform/mailmerge"
)

var ErrDirectoryCreation = errors.New("directory creation failed")

// Spec describes one document: which template, where it goes and what is
// merged into it.
type Spec interface {
	Kind() Kind
	Layout(cat *Catalog) (Layout, error)
	Fields() Fields
}

// Layout locates a document. Dir is relative to both the local output root
// and the remote root, slash separated.
type Layout struct {
	Template string
	Dir      string
	FileName string
}

// Builder produces exactly one .docx artifact.
type Builder interface {
	Build() (documents.Artifact, error)
}

type Factory struct {
	cat     *Catalog
	folders *FolderResolver
	log     *logger.Logger
}

func NewFactory(cat *Catalog, folders *FolderResolver, log *logger.Logger) *Factory {
	return &Factory{cat: cat, folders: folders, log: log.With("service", "DocumentFactory")}
}

// New prepares a builder for spec: it creates the local output directory and
// resolves the remote parent folder. Remote failures are wrapped in
// ErrDirectoryCreation. A missing template is only logged here; Build fails
// on it later.
func (f *Factory) New(ctx context.Context, spec Spec) (Builder, error) {
	layout, err := spec.Layout(f.cat)
	if err != nil {
		return nil, fmt.Errorf("%s layout: %w", spec.Kind(), err)
	}
	if _, err := os.Stat(layout.Template); err != nil {
		f.log.Error("Template document does not exist", "kind", spec.Kind(), "template", layout.Template)
	}

	localDir := filepath.Join(f.cat.OutputDir, filepath.FromSlash(layout.Dir))
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", localDir, err)
	}

	parentID, err := f.folders.Resolve(ctx, layout.Dir)
	if err != nil {
		f.log.Error("During creation of directory tree", "dir", layout.Dir, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryCreation, layout.Dir, err)
	}

	return &builder{
		kind:     spec.Kind(),
		template: layout.Template,
		target:   filepath.Join(localDir, layout.FileName),
		parentID: parentID,
		fields:   spec.Fields(),
		log:      f.log,
	}, nil
}

type builder struct {
	kind     Kind
	template string
	target   string
	parentID string
	fields   Fields
	log      *logger.Logger
}

func (b *builder) Build() (documents.Artifact, error) {
	doc, err := mailmerge.Open(b.template)
	if err != nil {
		return documents.Artifact{}, fmt.Errorf("%s: %w", b.kind, err)
	}

	declared := doc.MergeFields()
	missing, extra := compareFields(declared, b.fields)
	if len(missing) > 0 {
		b.log.Warn("Missing fields from template", "kind", b.kind, "fields", missing)
	}
	if len(extra) > 0 {
		b.log.Warn("Extra fields not in template", "kind", b.kind, "fields", extra)
	}

	doc.Merge(b.fields.Map())
	if err := doc.Write(b.target); err != nil {
		return documents.Artifact{}, fmt.Errorf("write %s: %w", b.target, err)
	}
	b.log.Debug("Created new output file", "kind", b.kind, "path", b.target)
	return documents.New(b.target, documents.MimeDocx, b.parentID), nil
}

// compareFields returns template fields without a value and values without a
// template field.
func compareFields(declared []string, fields Fields) (missing, extra []string) {
	inTemplate := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		inTemplate[name] = struct{}{}
		if _, ok := fields.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	for _, name := range fields.Keys() {
		if _, ok := inTemplate[name]; !ok {
			extra = append(extra, name)
		}
	}
	return missing, extra
}
