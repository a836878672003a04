package app

import (
	"gorm.io/gorm"

	jobrepo "github.com/schoolfood/backoffice/internal/data/repos/jobs"
	recordrepo "github.com/schoolfood/backoffice/internal/data/repos/records"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type Repos struct {
	JobRun        jobrepo.JobRunRepo
	Records       recordrepo.RecordRepo
	Contracts     recordrepo.ContractRepo
	DirectoryTree recordrepo.DirectoryTreeRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		JobRun:        jobrepo.NewJobRunRepo(db, log),
		Records:       recordrepo.NewRecordRepo(db, log),
		Contracts:     recordrepo.NewContractRepo(db, log),
		DirectoryTree: recordrepo.NewDirectoryTreeRepo(db, log),
	}
}
