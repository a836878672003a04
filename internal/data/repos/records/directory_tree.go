package records

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type DirectoryTreeRepo interface {
	GetByPath(dbc dbctx.Context, path string) (*types.DirectoryTree, error)
	Upsert(dbc dbctx.Context, row *types.DirectoryTree) error
}

type directoryTreeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDirectoryTreeRepo(db *gorm.DB, baseLog *logger.Logger) DirectoryTreeRepo {
	return &directoryTreeRepo{
		db:  db,
		log: baseLog.With("repo", "DirectoryTreeRepo"),
	}
}

// GetByPath returns nil, nil when the path has not been mapped yet.
func (r *directoryTreeRepo) GetByPath(dbc dbctx.Context, path string) (*types.DirectoryTree, error) {
	if path == "" {
		return nil, nil
	}
	var row types.DirectoryTree
	if err := dbc.Conn(r.db).Where("path = ?", path).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *directoryTreeRepo) Upsert(dbc dbctx.Context, row *types.DirectoryTree) error {
	if row == nil || row.Path == "" {
		return nil
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"remote_id", "parent_remote_id"}),
		}).
		Create(row).Error
}
