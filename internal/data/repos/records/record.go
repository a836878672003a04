package records

import (
	"sort"
	"time"

	"gorm.io/gorm"

	types "github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

type RecordRepo interface {
	GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Record, error)
	GetByWeek(dbc dbctx.Context, weekID uint) ([]*types.Record, error)
	ListByProgram(dbc dbctx.Context, programID uint, states ...types.RecordState) ([]*types.Record, error)
	ListNumberingSet(dbc dbctx.Context, contractID uint, family types.Family, runIDs []uint) ([]*types.Record, error)
	Save(dbc dbctx.Context, rec *types.Record) error
	UpdateFields(dbc dbctx.Context, ids []uint, updates map[string]interface{}) error
	UpdateStateWhere(dbc dbctx.Context, ids []uint, from, to types.RecordState) (int64, error)
}

type recordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
	return &recordRepo{
		db:  db,
		log: baseLog.With("repo", "RecordRepo"),
	}
}

func (r *recordRepo) withDetails(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Product.Type").
		Preload("Contract.School").
		Preload("Contract.Program").
		Preload("Contract.Annexes")
}

// GetByIDs loads records with product, contract, school and program, ordered
// by contract then date.
func (r *recordRepo) GetByIDs(dbc dbctx.Context, ids []uint) ([]*types.Record, error) {
	var out []*types.Record
	if len(ids) == 0 {
		return out, nil
	}
	err := r.withDetails(dbc.Conn(r.db)).
		Where("id IN ?", ids).
		Order("contract_id ASC, date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recordRepo) GetByWeek(dbc dbctx.Context, weekID uint) ([]*types.Record, error) {
	var out []*types.Record
	err := r.withDetails(dbc.Conn(r.db)).
		Preload("Week").
		Where("week_id = ?", weekID).
		Order("contract_id ASC, date ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProgram returns the program's records in date order, optionally
// limited to states.
func (r *recordRepo) ListByProgram(dbc dbctx.Context, programID uint, states ...types.RecordState) ([]*types.Record, error) {
	var out []*types.Record
	q := r.withDetails(dbc.Conn(r.db)).
		Joins("JOIN contract ON contract.id = record.contract_id").
		Where("contract.program_id = ?", programID)
	if len(states) > 0 {
		q = q.Where("record.state IN ?", states)
	}
	err := q.Order("record.date ASC, record.id ASC").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListNumberingSet returns the records of a contract and product family that
// take part in numbering: the ones already numbered plus the ones in runIDs.
// Sorted by date, ties by id.
func (r *recordRepo) ListNumberingSet(dbc dbctx.Context, contractID uint, family types.Family, runIDs []uint) ([]*types.Record, error) {
	q := dbc.Conn(r.db).
		Preload("Product.Type").
		Where("contract_id = ?", contractID)
	if len(runIDs) > 0 {
		q = q.Where("(no IS NOT NULL OR id IN ?)", runIDs)
	} else {
		q = q.Where("no IS NOT NULL")
	}
	var all []*types.Record
	if err := q.Find(&all).Error; err != nil {
		return nil, err
	}
	out := make([]*types.Record, 0, len(all))
	for _, rec := range all {
		if rec.Family() == family {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *recordRepo) Save(dbc dbctx.Context, rec *types.Record) error {
	if rec == nil {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Record{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"no":                rec.No,
			"state":             rec.State,
			"delivery_date":     rec.DeliveryDate,
			"delivered_kids_no": rec.DeliveredKidsNo,
		}).Error
}

func (r *recordRepo) UpdateFields(dbc dbctx.Context, ids []uint, updates map[string]interface{}) error {
	if len(ids) == 0 || len(updates) == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Model(&types.Record{}).
		Where("id IN ?", ids).
		Updates(updates).Error
}

// UpdateStateWhere moves the given records from one state to another and
// reports how many rows changed.
func (r *recordRepo) UpdateStateWhere(dbc dbctx.Context, ids []uint, from, to types.RecordState) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.Conn(r.db).
		Model(&types.Record{}).
		Where("id IN ? AND state = ?", ids, from).
		Update("state", to)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DateOnly truncates t to midnight UTC, the way record dates are stored.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
