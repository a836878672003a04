package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/schoolfood/backoffice/internal/domain/records"
)

// Catalog is a minimal program with one school, one contract and one
// product per family.
type Catalog struct {
	Program  *records.Program
	School   *records.School
	Contract *records.Contract
	Milk     *records.Product
	Apple    *records.Product
}

func SeedCatalog(tb testing.TB, tx *gorm.DB) *Catalog {
	tb.Helper()
	c := &Catalog{
		Program: &records.Program{
			SchoolYear: "2023/2024",
			SemesterNo: 2,
			StartDate:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		School: &records.School{Nick: "sp1", Name: "Szkoła Podstawowa nr 1", City: "Kraków"},
	}
	mustCreate(tb, tx, c.Program)
	mustCreate(tb, tx, c.School)

	c.Contract = &records.Contract{
		ContractNo:       12,
		ContractYear:     2024,
		ValidityDate:     c.Program.StartDate,
		FruitVegProducts: 80,
		DairyProducts:    100,
		SchoolID:         c.School.ID,
		ProgramID:        c.Program.ID,
	}
	mustCreate(tb, tx, c.Contract)

	dairy := &records.ProductType{Name: records.ProductTypeDairy}
	fruit := &records.ProductType{Name: records.ProductTypeFruit}
	mustCreate(tb, tx, dairy)
	mustCreate(tb, tx, fruit)

	c.Milk = &records.Product{Name: "mleko", TypeID: dairy.ID}
	c.Apple = &records.Product{Name: "jabłko", TypeID: fruit.ID}
	mustCreate(tb, tx, c.Milk)
	mustCreate(tb, tx, c.Apple)
	return c
}

// SeedRecord adds a planned record of product p on date.
func SeedRecord(tb testing.TB, tx *gorm.DB, c *Catalog, p *records.Product, date time.Time, no *int, state records.RecordState) *records.Record {
	tb.Helper()
	if state == "" {
		state = records.StatePlanned
	}
	r := &records.Record{
		No:         no,
		Date:       date,
		State:      state,
		ProductID:  p.ID,
		ContractID: c.Contract.ID,
	}
	mustCreate(tb, tx, r)
	return r
}

func mustCreate(tb testing.TB, tx *gorm.DB, v any) {
	tb.Helper()
	if err := tx.Create(v).Error; err != nil {
		tb.Fatalf("seed %T: %v", v, err)
	}
}
