package jobs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	TypeDelivery       = "delivery"
	TypeContracts      = "contracts"
	TypeAnnex          = "annex"
	TypeWeekSummary    = "week_summary"
	TypeRegister       = "register"
	TypeRecordRegister = "record_register"
)

// Types lists the job types accepted from operators.
var Types = []string{TypeDelivery, TypeContracts, TypeAnnex, TypeWeekSummary, TypeRegister, TypeRecordRegister}

// DeliveryPayload starts a delivery run for the selected records. Dates use
// dd.mm.yyyy or yyyy-mm-dd.
type DeliveryPayload struct {
	Records  []uint `json:"records"`
	Date     string `json:"date"`
	Driver   string `json:"driver,omitempty"`
	Comments string `json:"comments,omitempty"`
}

func (p DeliveryPayload) Validate() error {
	if len(p.Records) == 0 {
		return errors.New("records must not be empty")
	}
	if strings.TrimSpace(p.Date) == "" {
		return errors.New("date is required")
	}
	return nil
}

type ContractsPayload struct {
	ProgramID uint   `json:"program_id"`
	Schools   []uint `json:"schools"`
	Date      string `json:"date"`
}

func (p ContractsPayload) Validate() error {
	if p.ProgramID == 0 {
		return errors.New("program_id is required")
	}
	if len(p.Schools) == 0 {
		return errors.New("schools must not be empty")
	}
	if strings.TrimSpace(p.Date) == "" {
		return errors.New("date is required")
	}
	return nil
}

type AnnexPayload struct {
	AnnexID uint   `json:"annex_id"`
	Date    string `json:"date"`
}

func (p AnnexPayload) Validate() error {
	if p.AnnexID == 0 {
		return errors.New("annex_id is required")
	}
	if strings.TrimSpace(p.Date) == "" {
		return errors.New("date is required")
	}
	return nil
}

type WeekSummaryPayload struct {
	WeekID uint `json:"week_id"`
}

func (p WeekSummaryPayload) Validate() error {
	if p.WeekID == 0 {
		return errors.New("week_id is required")
	}
	return nil
}

// RegisterPayload asks for the school register of a program.
type RegisterPayload struct {
	ProgramID uint `json:"program_id"`
}

func (p RegisterPayload) Validate() error {
	if p.ProgramID == 0 {
		return errors.New("program_id is required")
	}
	return nil
}

// RecordRegisterPayload asks for the register of issued records of a program.
type RecordRegisterPayload struct {
	ProgramID uint `json:"program_id"`
}

func (p RecordRegisterPayload) Validate() error {
	if p.ProgramID == 0 {
		return errors.New("program_id is required")
	}
	return nil
}

// Validator is implemented by every payload.
type Validator interface {
	Validate() error
}

// NewPayload returns an empty payload for jobType.
func NewPayload(jobType string) (Validator, error) {
	switch jobType {
	case TypeDelivery:
		return &DeliveryPayload{}, nil
	case TypeContracts:
		return &ContractsPayload{}, nil
	case TypeAnnex:
		return &AnnexPayload{}, nil
	case TypeWeekSummary:
		return &WeekSummaryPayload{}, nil
	case TypeRegister:
		return &RegisterPayload{}, nil
	case TypeRecordRegister:
		return &RecordRegisterPayload{}, nil
	}
	return nil, fmt.Errorf("unknown job type %q", jobType)
}
