package records

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type ContractRepo interface {
	GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Contract, error)
	GetAnnex(dbc dbctx.Context, id uint) (*types.Annex, error)
	ListWeeks(dbc dbctx.Context, programID uint) ([]*types.Week, error)
	GetWeek(dbc dbctx.Context, id uint) (*types.Week, error)
	EnsureForSchool(dbc dbctx.Context, schoolID, programID uint, year int) (*types.Contract, error)
	GetProgram(dbc dbctx.Context, id uint) (*types.Program, error)
	ListByProgram(dbc dbctx.Context, programID uint) ([]*types.Contract, error)
	ListApplications(dbc dbctx.Context, programID uint) ([]*types.Application, error)
}

type contractRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContractRepo(db *gorm.DB, baseLog *logger.Logger) ContractRepo {
	return &contractRepo{
		db:  db,
		log: baseLog.With("repo", "ContractRepo"),
	}
}

func (r *contractRepo) GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Contract, error) {
	var out []*types.Contract
	if len(ids) == 0 {
		return out, nil
	}
	err := dbc.Conn(r.db).
		Preload("School").
		Preload("Program").
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAnnex returns nil, nil when the annex does not exist.
func (r *contractRepo) GetAnnex(dbc dbctx.Context, id uint) (*types.Annex, error) {
	var out types.Annex
	err := dbc.Conn(r.db).
		Preload("Contract.School").
		Preload("Contract.Program").
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *contractRepo) ListWeeks(dbc dbctx.Context, programID uint) ([]*types.Week, error) {
	var out []*types.Week
	err := dbc.Conn(r.db).
		Where("program_id = ?", programID).
		Order("week_no ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetWeek returns nil, nil when the week does not exist.
func (r *contractRepo) GetWeek(dbc dbctx.Context, id uint) (*types.Week, error) {
	var out types.Week
	err := dbc.Conn(r.db).
		Preload("Program").
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// EnsureForSchool returns the school's contract in the program. A missing
// contract is created with the next number of the program; an existing one
// gets its validity date reset to the program start.
func (r *contractRepo) EnsureForSchool(dbc dbctx.Context, schoolID, programID uint, year int) (*types.Contract, error) {
	conn := dbc.Conn(r.db)

	var program types.Program
	if err := conn.Where("id = ?", programID).First(&program).Error; err != nil {
		return nil, fmt.Errorf("program %d: %w", programID, err)
	}

	var existing types.Contract
	if err := conn.Where("program_id = ? AND school_id = ?", programID, schoolID).Limit(1).Find(&existing).Error; err != nil {
		return nil, err
	}
	if existing.ID == 0 {
		var count int64
		if err := conn.Model(&types.Contract{}).Where("program_id = ?", programID).Count(&count).Error; err != nil {
			return nil, err
		}
		existing = types.Contract{
			ContractNo:   int(count) + 1,
			ContractYear: year,
			ValidityDate: program.StartDate,
			SchoolID:     schoolID,
			ProgramID:    programID,
		}
		if err := conn.Create(&existing).Error; err != nil {
			return nil, fmt.Errorf("create contract: %w", err)
		}
		r.log.Info("Contract created", "school_id", schoolID, "program_id", programID, "contract_no", existing.ContractNo)
	} else if err := conn.Model(&types.Contract{}).
		Where("id = ?", existing.ID).
		Update("validity_date", program.StartDate).Error; err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}

	var out types.Contract
	err := conn.Preload("School").Preload("Program").Where("id = ?", existing.ID).First(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProgram returns nil, nil when the program does not exist.
func (r *contractRepo) GetProgram(dbc dbctx.Context, id uint) (*types.Program, error) {
	var out types.Program
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// ListByProgram returns the program's contracts ordered by contract number.
func (r *contractRepo) ListByProgram(dbc dbctx.Context, programID uint) ([]*types.Contract, error) {
	var out []*types.Contract
	err := dbc.Conn(r.db).
		Preload("School").
		Preload("Program").
		Preload("Annexes").
		Where("program_id = ?", programID).
		Order("contract_no ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contractRepo) ListApplications(dbc dbctx.Context, programID uint) ([]*types.Application, error) {
	var out []*types.Application
	err := dbc.Conn(r.db).
		Preload("Program").
		Preload("Contracts").
		Preload("Weeks").
		Where("program_id = ?", programID).
		Order("no ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
