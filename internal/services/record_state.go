package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	recordrepo "github.com/schoolfood/backoffice/internal/data/repos/records"
	types "github.com/schoolfood/backoffice/internal/domain/records"
	"github.com/schoolfood/backoffice/internal/platform/dbctx"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

var ErrEmptyRecords = errors.New("no records selected")

const WarningNumbersChanged = "numbers_changed"

// Warning is a non-fatal condition surfaced to the operator with a job result.
type Warning struct {
	Code    string `json:"code"`
	School  string `json:"school,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string { return w.Message }

func numbersChanged(school string) Warning {
	return Warning{
		Code:    WarningNumbersChanged,
		School:  school,
		Message: "Record numbers changed for school: " + school,
	}
}

// WarningMessages flattens warnings into the notification list of a job.
func WarningMessages(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Message)
	}
	return out
}

type BeginResult struct {
	Records  []*types.Record
	Warnings []Warning
}

// RecordStateService moves delivery records through their lifecycle. Every
// call commits its own short transaction.
type RecordStateService interface {
	BeginDelivery(ctx context.Context, ids []uint, date time.Time, driver string) (BeginResult, error)
	AdvanceDelivery(ctx context.Context, ids []uint, driverAssigned bool) (int64, error)
	RollbackDelivery(ctx context.Context, ids []uint) error
	AssignNumbers(dbc dbctx.Context, rec *types.Record, runIDs []uint) (bool, error)
	MarkDelivered(ctx context.Context, ids []uint) (int64, error)
}

type recordStateService struct {
	db      *gorm.DB
	log     *logger.Logger
	records recordrepo.RecordRepo
}

func NewRecordStateService(db *gorm.DB, baseLog *logger.Logger, records recordrepo.RecordRepo) RecordStateService {
	return &recordStateService{
		db:      db,
		log:     baseLog.With("service", "RecordStateService"),
		records: records,
	}
}

// BeginDelivery marks the records as being generated for a delivery on date
// and fills the delivered quantity from the contract. With a driver assigned
// the records are numbered; renumbered schools come back as warnings.
func (s *recordStateService) BeginDelivery(ctx context.Context, ids []uint, date time.Time, driver string) (BeginResult, error) {
	var out BeginResult
	deliveryDate := recordrepo.DateOnly(date)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		recs, err := s.records.GetByIDs(dbc, ids)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		if len(recs) == 0 {
			return ErrEmptyRecords
		}

		for _, rec := range recs {
			kids := rec.Contract.KidsNo(rec.Family(), rec.Date)
			rec.State = types.StateGenerationInProgress
			rec.DeliveryDate = &deliveryDate
			rec.DeliveredKidsNo = &kids
			if err := s.records.Save(dbc, rec); err != nil {
				return fmt.Errorf("save record %d: %w", rec.ID, err)
			}
		}

		if driver == "" {
			out.Records = recs
			return nil
		}

		runIDs := make([]uint, 0, len(recs))
		for _, rec := range recs {
			runIDs = append(runIDs, rec.ID)
		}
		type group struct {
			contract uint
			family   types.Family
		}
		seen := map[group]bool{}
		warned := map[string]bool{}
		for _, rec := range recs {
			g := group{contract: rec.ContractID, family: rec.Family()}
			if seen[g] {
				continue
			}
			seen[g] = true
			changed, err := s.AssignNumbers(dbc, rec, runIDs)
			if err != nil {
				return err
			}
			nick := rec.Contract.School.Nick
			if changed && !warned[nick] {
				warned[nick] = true
				out.Warnings = append(out.Warnings, numbersChanged(nick))
			}
		}

		// reload so callers see the assigned numbers
		recs, err = s.records.GetByIDs(dbc, ids)
		if err != nil {
			return fmt.Errorf("reload records: %w", err)
		}
		out.Records = recs
		return nil
	})
	if err != nil {
		return BeginResult{}, err
	}
	s.log.Info("Delivery started",
		"records", len(out.Records),
		"date", deliveryDate.Format("2006-01-02"),
		"driver", driver,
		"warnings", len(out.Warnings),
	)
	return out, nil
}

// AssignNumbers renumbers the records of rec's contract and product family,
// the numbered ones plus runIDs, contiguously from 1 in date order. It
// reports whether a number already printed for a finalized record outside
// the run changed.
func (s *recordStateService) AssignNumbers(dbc dbctx.Context, rec *types.Record, runIDs []uint) (bool, error) {
	if rec == nil {
		return false, nil
	}
	set, err := s.records.ListNumberingSet(dbc, rec.ContractID, rec.Family(), runIDs)
	if err != nil {
		return false, fmt.Errorf("list numbering set: %w", err)
	}
	inRun := make(map[uint]bool, len(runIDs))
	for _, id := range runIDs {
		inRun[id] = true
	}
	changed := false
	for i, r := range set {
		want := i + 1
		if r.No != nil && *r.No == want {
			continue
		}
		if r.No != nil && r.State.Finalized() && !inRun[r.ID] {
			changed = true
		}
		if r.No != nil {
			s.log.Debug("Overriding record number", "record_id", r.ID, "from", *r.No, "to", want)
		}
		if err := s.records.UpdateFields(dbc, []uint{r.ID}, map[string]interface{}{"no": want}); err != nil {
			return false, fmt.Errorf("number record %d: %w", r.ID, err)
		}
		r.No = &want
	}
	return changed, nil
}

// AdvanceDelivery finalizes records of a completed run: GENERATED when a
// driver was assigned, DELIVERY_PLANNED otherwise.
func (s *recordStateService) AdvanceDelivery(ctx context.Context, ids []uint, driverAssigned bool) (int64, error) {
	target := types.StateDeliveryPlanned
	if driverAssigned {
		target = types.StateGenerated
	}
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = s.records.UpdateStateWhere(dbctx.Context{Ctx: ctx, Tx: tx}, ids, types.StateGenerationInProgress, target)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("advance records: %w", err)
	}
	s.log.Info("Delivery records advanced", "records", n, "state", target)
	return n, nil
}

// RollbackDelivery returns records to PLANNED and clears the delivery data.
func (s *recordStateService) RollbackDelivery(ctx context.Context, ids []uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.records.UpdateFields(dbctx.Context{Ctx: ctx, Tx: tx}, ids, map[string]interface{}{
			"state":             types.StatePlanned,
			"delivery_date":     nil,
			"delivered_kids_no": nil,
		})
	})
	if err != nil {
		return fmt.Errorf("rollback records: %w", err)
	}
	s.log.Info("Delivery records rolled back", "records", len(ids))
	return nil
}

// MarkDelivered moves GENERATED records to DELIVERED and reports how many moved.
func (s *recordStateService) MarkDelivered(ctx context.Context, ids []uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = s.records.UpdateStateWhere(dbctx.Context{Ctx: ctx, Tx: tx}, ids, types.StateGenerated, types.StateDelivered)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}
	s.log.Info("Records delivered", "records", n)
	return n, nil
}
