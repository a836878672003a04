package records

import (
	"fmt"
	"strings"
	"time"
)

type RecordState string

const (
	StatePlanned              RecordState = "PLANNED"
	StateGenerationInProgress RecordState = "GENERATION_IN_PROGRESS"
	StateGenerated            RecordState = "GENERATED"
	StateDelivered            RecordState = "DELIVERED"
	StateDeliveryPlanned      RecordState = "DELIVERY_PLANNED"
)

// Finalized states are the ones whose numbers have been printed on paper.
func (s RecordState) Finalized() bool {
	return s == StateGenerated || s == StateDelivered || s == StateDeliveryPlanned
}

type Family string

const (
	FamilyDairy    Family = "dairy"
	FamilyFruitVeg Family = "fruit_veg"
)

const (
	ProductTypeDairy     = "dairy"
	ProductTypeFruit     = "fruit"
	ProductTypeVegetable = "vegetable"
)

type Program struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SchoolYear string    `gorm:"column:school_year;not null" json:"school_year"`
	SemesterNo int       `gorm:"column:semester_no;not null" json:"semester_no"`
	StartDate  time.Time `gorm:"column:start_date" json:"start_date"`
	EndDate    time.Time `gorm:"column:end_date" json:"end_date"`
}

func (Program) TableName() string { return "program" }

// SemesterRoman is the semester label printed on registers.
func (p Program) SemesterRoman() string {
	switch p.SemesterNo {
	case 1:
		return "I"
	case 2:
		return "II"
	}
	return fmt.Sprint(p.SemesterNo)
}

type Week struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	WeekNo    int       `gorm:"column:week_no;not null;uniqueIndex:idx_week_program" json:"week_no"`
	StartDate time.Time `gorm:"column:start_date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"column:end_date;not null" json:"end_date"`
	ProgramID uint      `gorm:"column:program_id;not null;uniqueIndex:idx_week_program" json:"program_id"`
	Program   Program   `gorm:"foreignKey:ProgramID" json:"program"`
}

func (Week) TableName() string { return "week" }

type School struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Nick    string `gorm:"column:nick;not null;uniqueIndex" json:"nick"`
	Name    string `gorm:"column:name" json:"name"`
	City    string `gorm:"column:city" json:"city"`
	Address string `gorm:"column:address" json:"address"`
	NIP     string `gorm:"column:nip" json:"nip"`
	REGON   string `gorm:"column:regon" json:"regon"`
	Email   string `gorm:"column:email" json:"email"`
	Contact string `gorm:"column:responsible_person" json:"responsible_person"`
}

func (School) TableName() string { return "school" }

type Contract struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ContractNo       int       `gorm:"column:contract_no;not null" json:"contract_no"`
	ContractYear     int       `gorm:"column:contract_year;not null" json:"contract_year"`
	ValidityDate     time.Time `gorm:"column:validity_date;not null" json:"validity_date"`
	FruitVegProducts int       `gorm:"column:fruit_veg_products;not null;default:0" json:"fruit_veg_products"`
	DairyProducts    int       `gorm:"column:dairy_products;not null;default:0" json:"dairy_products"`
	SchoolID         uint      `gorm:"column:school_id;not null;index" json:"school_id"`
	School           School    `gorm:"foreignKey:SchoolID" json:"school"`
	ProgramID        uint      `gorm:"column:program_id;not null;index" json:"program_id"`
	Program          Program   `gorm:"foreignKey:ProgramID" json:"program"`
	Annexes          []Annex   `gorm:"foreignKey:ContractID" json:"annexes,omitempty"`
}

func (Contract) TableName() string { return "contract" }

func (c Contract) String() string { return fmt.Sprintf("%d_%d", c.ContractNo, c.ContractYear) }

// KidsNo is the number of children the contract covers for a product family
// on date: the latest annex valid on that date wins over the base contract.
func (c Contract) KidsNo(f Family, date time.Time) int {
	dairy, fruitVeg := c.DairyProducts, c.FruitVegProducts
	var best *Annex
	for i := range c.Annexes {
		a := &c.Annexes[i]
		if a.ValidityDate.After(date) {
			continue
		}
		if best == nil || a.ValidityDate.After(best.ValidityDate) {
			best = a
		}
	}
	if best != nil {
		dairy, fruitVeg = best.DairyProducts, best.FruitVegProducts
	}
	if f == FamilyDairy {
		return dairy
	}
	return fruitVeg
}

type Annex struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	No               int       `gorm:"column:no;not null;default:1" json:"no"`
	ContractID       uint      `gorm:"column:contract_id;not null;index" json:"contract_id"`
	Contract         *Contract `gorm:"foreignKey:ContractID" json:"contract,omitempty"`
	ValidityDate     time.Time `gorm:"column:validity_date;not null" json:"validity_date"`
	FruitVegProducts int       `gorm:"column:fruit_veg_products;not null" json:"fruit_veg_products"`
	DairyProducts    int       `gorm:"column:dairy_products;not null" json:"dairy_products"`
}

func (Annex) TableName() string { return "annex" }

type ProductType struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"column:name;not null;uniqueIndex" json:"name"`
}

func (ProductType) TableName() string { return "product_type" }

func (t ProductType) Family() Family {
	if strings.EqualFold(t.Name, ProductTypeDairy) {
		return FamilyDairy
	}
	return FamilyFruitVeg
}

type Product struct {
	ID     uint        `gorm:"primaryKey" json:"id"`
	Name   string      `gorm:"column:name;not null" json:"name"`
	TypeID uint        `gorm:"column:type_id;not null;index" json:"type_id"`
	Type   ProductType `gorm:"foreignKey:TypeID" json:"type"`
}

func (Product) TableName() string { return "product" }

// Record is one planned delivery of a product to a school on a date.
type Record struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	No              *int        `gorm:"column:no" json:"no"`
	Date            time.Time   `gorm:"column:date;not null;index" json:"date"`
	DeliveryDate    *time.Time  `gorm:"column:delivery_date" json:"delivery_date,omitempty"`
	DeliveredKidsNo *int        `gorm:"column:delivered_kids_no" json:"delivered_kids_no,omitempty"`
	State           RecordState `gorm:"column:state;not null;index" json:"state"`
	ProductID       uint        `gorm:"column:product_id;not null" json:"product_id"`
	Product         Product     `gorm:"foreignKey:ProductID" json:"product"`
	ContractID      uint        `gorm:"column:contract_id;not null;index" json:"contract_id"`
	Contract        Contract    `gorm:"foreignKey:ContractID" json:"contract"`
	WeekID          *uint       `gorm:"column:week_id;index" json:"week_id,omitempty"`
	Week            *Week       `gorm:"foreignKey:WeekID" json:"week,omitempty"`
}

func (Record) TableName() string { return "record" }

func (r Record) Family() Family { return r.Product.Type.Family() }

// DisplayNo is the number printed on paper, "-" while unassigned.
func (r Record) DisplayNo() string {
	if r.No == nil {
		return "-"
	}
	prefix := "WO"
	if r.Family() == FamilyDairy {
		prefix = "NB"
	}
	return fmt.Sprintf("%s %d/%s/%s", prefix, *r.No, r.Contract.String(), r.Contract.Program.SchoolYear)
}

func (r Record) String() string {
	kids := "-"
	if r.DeliveredKidsNo != nil {
		kids = fmt.Sprint(*r.DeliveredKidsNo)
	}
	return fmt.Sprintf("%s %s", r.Product.Name, kids)
}

type ApplicationType string

const (
	ApplicationFull     ApplicationType = "FULL"
	ApplicationDairy    ApplicationType = "DAIRY"
	ApplicationFruitVeg ApplicationType = "FRUIT_VEG"
)

// Application is a subsidy application covering a set of contracts and weeks.
type Application struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	No        int             `gorm:"column:no;not null" json:"no"`
	Type      ApplicationType `gorm:"column:type;not null" json:"type"`
	ProgramID uint            `gorm:"column:program_id;not null;index" json:"program_id"`
	Program   Program         `gorm:"foreignKey:ProgramID" json:"program"`
	Contracts []Contract      `gorm:"many2many:application_contract" json:"contracts,omitempty"`
	Weeks     []Week          `gorm:"many2many:application_week" json:"weeks,omitempty"`
}

func (Application) TableName() string { return "application" }

func (a Application) String() string {
	return fmt.Sprintf("%d/%d/%s", a.Program.SemesterNo, a.No, a.Program.SchoolYear)
}

// DirectoryTree maps a local output directory path to its remote folder id.
type DirectoryTree struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Path     string    `gorm:"column:path;not null;uniqueIndex" json:"path"`
	RemoteID string    `gorm:"column:remote_id;not null" json:"remote_id"`
	ParentID string    `gorm:"column:parent_remote_id" json:"parent_remote_id"`
	Created  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DirectoryTree) TableName() string { return "directory_tree" }
