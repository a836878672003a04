package docgen

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/schoolfood/backoffice/internal/domain/records"
)

const fileDateLayout = "2006-01-02"

var dayNames = [...]string{"niedziela", "poniedziałek", "wtorek", "środa", "czwartek", "piątek", "sobota"}

func recordTitle(f records.Family) string {
	if f == records.FamilyDairy {
		return "Mleko i przetwory mleczne"
	}
	return "Warzywa i owoce"
}

// RecordNote is the per-record delivery confirmation for one school.
type RecordNote struct {
	Record *records.Record
}

func (RecordNote) Kind() Kind { return KindRecord }

func (s RecordNote) Layout(cat *Catalog) (Layout, error) {
	r := s.Record
	if r == nil {
		return Layout{}, errors.New("record note without record")
	}
	tpl, err := cat.TemplatePath(KindRecord)
	if err != nil {
		return Layout{}, err
	}
	typeName := []rune(r.Product.Type.Name)
	if len(typeName) > 3 {
		typeName = typeName[:3]
	}
	name, err := cat.FileName(KindRecord, map[string]string{
		"school": r.Contract.School.Nick,
		"date":   r.Date.Format(fileDateLayout),
		"type":   string(typeName),
	})
	if err != nil {
		return Layout{}, err
	}
	program := r.Contract.Program
	return Layout{
		Template: tpl,
		Dir: JoinDir(cat.ProgramDir(program.SchoolYear, program.SemesterNo),
			cat.Directories.School, r.Contract.School.Nick, cat.Directories.Record),
		FileName: name,
	}, nil
}

func (s RecordNote) Fields() Fields {
	r := s.Record
	school := r.Contract.School
	return NewFields(map[string]any{
		"city":         school.City,
		"current_date": r.Date,
		"name":         school.Name,
		"address":      school.Address,
		"nip":          school.NIP,
		"regon":        school.REGON,
		"email":        school.Email,
		"kids_no":      r.DeliveredKidsNo,
		"product_name": r.Product.Name,
		"record_title": recordTitle(r.Family()),
		"record_no":    r.DisplayNo(),
	})
}

// Delivery is the driver's delivery note listing every school and product
// of one delivery date.
type Delivery struct {
	Records  []*records.Record
	Date     time.Time
	Driver   string
	Comments string
}

func (Delivery) Kind() Kind { return KindDelivery }

func (s Delivery) Layout(cat *Catalog) (Layout, error) {
	if len(s.Records) == 0 {
		return Layout{}, errors.New("delivery without records")
	}
	tpl, err := cat.TemplatePath(KindDelivery)
	if err != nil {
		return Layout{}, err
	}
	date := s.Date.Format(fileDateLayout)
	name, err := cat.FileName(KindDelivery, map[string]string{"date": date, "driver": s.Driver})
	if err != nil {
		return Layout{}, err
	}
	program := s.Records[0].Contract.Program
	return Layout{
		Template: tpl,
		Dir:      JoinDir(cat.ProgramDir(program.SchoolYear, program.SemesterNo), cat.Directories.Record, date),
		FileName: name,
	}, nil
}

func (s Delivery) Fields() Fields {
	return NewFields(map[string]any{
		"driver":        strings.ToUpper(s.Driver),
		"delivery_date": s.Date,
		"delivery_day":  strings.ToUpper(dayNames[s.Date.Weekday()]),
		"comments":      s.Comments,
		"schools":       schoolLines(s.Records),
		"products":      productLines(s.Records),
		"records_no":    len(s.Records),
	})
}

// Contract is the program participation contract of one school.
type Contract struct {
	Contract *records.Contract
	Date     time.Time
	Weeks    []*records.Week
}

func (Contract) Kind() Kind { return KindContract }

func (s Contract) Layout(cat *Catalog) (Layout, error) {
	c := s.Contract
	if c == nil {
		return Layout{}, errors.New("contract document without contract")
	}
	tpl, err := cat.TemplatePath(KindContract)
	if err != nil {
		return Layout{}, err
	}
	name, err := cat.FileName(KindContract, map[string]string{
		"school": c.School.Nick,
		"no":     fmt.Sprint(c.ContractNo),
		"year":   fmt.Sprint(c.ContractYear),
	})
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Template: tpl,
		Dir:      JoinDir(cat.ProgramDir(c.Program.SchoolYear, c.Program.SemesterNo), cat.Directories.Contract),
		FileName: name,
	}, nil
}

func (s Contract) Fields() Fields {
	c := s.Contract
	return NewFields(map[string]any{
		"city":               c.School.City,
		"date":               s.Date,
		"no":                 c.ContractNo,
		"year":               c.ContractYear,
		"semester":           c.Program.SemesterNo,
		"school_year":        c.Program.SchoolYear,
		"name":               c.School.Name,
		"address":            c.School.Address,
		"nip":                c.School.NIP,
		"regon":              c.School.REGON,
		"representant":       c.School.Contact,
		"email":              c.School.Email,
		"program_start_date": c.Program.StartDate,
		"program_end_date":   c.Program.EndDate,
		"dairy_products":     c.DairyProducts,
		"fruitveg_products":  c.FruitVegProducts,
		"giving_weeks":       weekRanges(s.Weeks),
	})
}

// Annex amends the children counts of a contract from its validity date.
type Annex struct {
	Annex *records.Annex
	Date  time.Time
}

func (Annex) Kind() Kind { return KindAnnex }

func (s Annex) Layout(cat *Catalog) (Layout, error) {
	a := s.Annex
	if a == nil || a.Contract == nil {
		return Layout{}, errors.New("annex document without annex and contract")
	}
	tpl, err := cat.TemplatePath(KindAnnex)
	if err != nil {
		return Layout{}, err
	}
	c := a.Contract
	name, err := cat.FileName(KindAnnex, map[string]string{
		"school": c.School.Nick,
		"no":     fmt.Sprint(c.ContractNo),
		"year":   fmt.Sprint(c.ContractYear),
		"annex":  fmt.Sprint(a.No),
	})
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Template: tpl,
		Dir:      JoinDir(cat.ProgramDir(c.Program.SchoolYear, c.Program.SemesterNo), cat.Directories.Annex),
		FileName: name,
	}, nil
}

func (s Annex) Fields() Fields {
	a := s.Annex
	c := a.Contract
	return NewFields(map[string]any{
		"city":               c.School.City,
		"current_date":       s.Date,
		"contract_no":        c.ContractNo,
		"contract_year":      c.ContractYear,
		"semester_no":        c.Program.SemesterNo,
		"school_year":        c.Program.SchoolYear,
		"name":               c.School.Name,
		"address":            c.School.Address,
		"nip":                c.School.NIP,
		"regon":              c.School.REGON,
		"responsible_person": c.School.Contact,
		"fruitveg_products":  a.FruitVegProducts,
		"dairy_products":     a.DairyProducts,
		"validity_date":      a.ValidityDate,
		"annex_no":           a.No,
		"validity_date_end":  "-",
	})
}

// WeekSummary lists all deliveries of a program week.
type WeekSummary struct {
	Week    *records.Week
	Records []*records.Record
}

func (WeekSummary) Kind() Kind { return KindWeekSummary }

func (s WeekSummary) Layout(cat *Catalog) (Layout, error) {
	w := s.Week
	if w == nil {
		return Layout{}, errors.New("week summary without week")
	}
	tpl, err := cat.TemplatePath(KindWeekSummary)
	if err != nil {
		return Layout{}, err
	}
	name, err := cat.FileName(KindWeekSummary, map[string]string{"week": fmt.Sprint(w.WeekNo)})
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Template: tpl,
		Dir:      JoinDir(cat.ProgramDir(w.Program.SchoolYear, w.Program.SemesterNo), cat.Directories.Summary),
		FileName: name,
	}, nil
}

func (s WeekSummary) Fields() Fields {
	w := s.Week
	return NewFields(map[string]any{
		"week_no":    w.WeekNo,
		"start_date": w.StartDate,
		"end_date":   w.EndDate,
		"schools":    schoolLines(s.Records),
		"products":   productLines(s.Records),
		"records_no": len(s.Records),
	})
}

// Register lists the schools taking part in a program edition.
type Register struct {
	Program   *records.Program
	Contracts []*records.Contract
	Date      time.Time
}

func (Register) Kind() Kind { return KindRegister }

func (s Register) Layout(cat *Catalog) (Layout, error) {
	p := s.Program
	if p == nil {
		return Layout{}, errors.New("register without program")
	}
	tpl, err := cat.TemplatePath(KindRegister)
	if err != nil {
		return Layout{}, err
	}
	name, err := cat.FileName(KindRegister, map[string]string{"date": s.Date.Format(fileDateLayout)})
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Template: tpl,
		Dir:      cat.ProgramDir(p.SchoolYear, p.SemesterNo),
		FileName: name,
	}, nil
}

func (s Register) Fields() Fields {
	lines := make([]string, 0, len(s.Contracts))
	for i, c := range s.Contracts {
		lines = append(lines, fmt.Sprintf("%d. %s, %s (umowa %s)", i+1, c.School.Name, c.School.City, c.String()))
	}
	return NewFields(map[string]any{
		"date":        s.Date,
		"semester_no": s.Program.SemesterRoman(),
		"school_year": s.Program.SchoolYear,
		"schools":     strings.Join(lines, "\n"),
		"schools_no":  len(s.Contracts),
	})
}

// RecordRegister lists every generated or delivered record of a program,
// grouped by contract and product family, with the application covering it.
type RecordRegister struct {
	Program      *records.Program
	Records      []*records.Record
	Applications []*records.Application
	Date         time.Time
}

func (RecordRegister) Kind() Kind { return KindRecordRegister }

func (s RecordRegister) Layout(cat *Catalog) (Layout, error) {
	p := s.Program
	if p == nil {
		return Layout{}, errors.New("record register without program")
	}
	tpl, err := cat.TemplatePath(KindRecordRegister)
	if err != nil {
		return Layout{}, err
	}
	name, err := cat.FileName(KindRecordRegister, map[string]string{"date": s.Date.Format(fileDateLayout)})
	if err != nil {
		return Layout{}, err
	}
	return Layout{
		Template: tpl,
		Dir:      cat.ProgramDir(p.SchoolYear, p.SemesterNo),
		FileName: name,
	}, nil
}

func (s RecordRegister) Fields() Fields {
	rows := s.rows()
	return NewFields(map[string]any{
		"date":        s.Date,
		"semester_no": s.Program.SemesterRoman(),
		"school_year": s.Program.SchoolYear,
		"records":     strings.Join(rows, "\n"),
		"records_no":  len(rows),
	})
}

// RegisterComponent names the product family column of the record register.
func RegisterComponent(f records.Family) string {
	if f == records.FamilyDairy {
		return records.ProductTypeDairy
	}
	return records.ProductTypeVegetable + "-" + records.ProductTypeFruit
}

// rows renders "<no> | <date> | <school> | <component> | <application>"
// sorted by contract then component, records in date order inside a group.
func (s RecordRegister) rows() []string {
	type appKey struct{ contract, week uint }
	apps := map[appKey]string{}
	for _, a := range s.Applications {
		for _, c := range a.Contracts {
			for _, w := range a.Weeks {
				apps[appKey{c.ID, w.ID}] = a.String()
			}
		}
	}

	type group struct {
		contract  uint
		component string
	}
	byGroup := map[group][]*records.Record{}
	var groups []group
	for _, r := range s.Records {
		if r.State != records.StateGenerated && r.State != records.StateDelivered {
			continue
		}
		g := group{contract: r.ContractID, component: RegisterComponent(r.Family())}
		if _, ok := byGroup[g]; !ok {
			groups = append(groups, g)
		}
		byGroup[g] = append(byGroup[g], r)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].contract != groups[j].contract {
			return groups[i].contract < groups[j].contract
		}
		return groups[i].component < groups[j].component
	})

	var out []string
	for _, g := range groups {
		for _, r := range byGroup[g] {
			app := "-"
			if r.WeekID != nil {
				if a, ok := apps[appKey{r.ContractID, *r.WeekID}]; ok {
					app = a
				}
			}
			out = append(out, strings.Join([]string{
				r.DisplayNo(),
				r.Date.Format(DateLayout),
				r.Contract.School.Name,
				g.component,
				app,
			}, " | "))
		}
	}
	return out
}

// schoolLines renders "<nick>: <product kids> + ..." per school, in first
// appearance order.
func schoolLines(recs []*records.Record) string {
	var order []string
	bySchool := map[string][]string{}
	for _, r := range recs {
		nick := r.Contract.School.Nick
		if _, ok := bySchool[nick]; !ok {
			order = append(order, nick)
		}
		bySchool[nick] = append(bySchool[nick], r.String())
	}
	lines := make([]string, 0, len(order))
	for _, nick := range order {
		lines = append(lines, nick+": "+strings.Join(bySchool[nick], " + "))
	}
	return strings.Join(lines, "\n")
}

// productLines renders "<product>: <sum of delivered kids>" sorted by product.
func productLines(recs []*records.Record) string {
	sums := map[string]int{}
	for _, r := range recs {
		n := 0
		if r.DeliveredKidsNo != nil {
			n = *r.DeliveredKidsNo
		}
		sums[r.Product.Name] += n
	}
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %d", name, sums[name]))
	}
	return strings.Join(lines, "\n")
}

func weekRanges(weeks []*records.Week) string {
	parts := make([]string, 0, len(weeks))
	for _, w := range weeks {
		parts = append(parts, w.StartDate.Format("02.01")+"-"+w.EndDate.Format(DateLayout))
	}
	return strings.Join(parts, ",")
}
