package db

import (
	"gorm.io/gorm"

	"github.com/schoolfood/backoffice/internal/domain/jobs"
	"github.com/schoolfood/backoffice/internal/domain/records"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Program catalogue
		&records.Program{},
		&records.Week{},
		&records.School{},
		&records.Contract{},
		&records.Annex{},
		&records.ProductType{},
		&records.Product{},
		&records.Record{},
		&records.Application{},

		// Remote folder cache
		&records.DirectoryTree{},

		// Job runner
		&jobs.JobRun{},
	)
}
