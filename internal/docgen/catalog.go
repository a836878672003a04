package docgen

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindRecord         Kind = "record"
	KindDelivery       Kind = "delivery"
	KindContract       Kind = "contract"
	KindAnnex          Kind = "annex"
	KindWeekSummary    Kind = "week_summary"
	KindRegister       Kind = "register"
	KindRecordRegister Kind = "record_register"
)

// Catalog holds template files, output names and directory names for every
// document kind.
type Catalog struct {
	TemplatesDir string          `yaml:"templates_dir"`
	OutputDir    string          `yaml:"output_dir"`
	Program      ProgramNaming   `yaml:"program"`
	Directories  Directories     `yaml:"directories"`
	Templates    map[Kind]string `yaml:"templates"`
	Names        map[Kind]string `yaml:"names"`
}

// ProgramNaming builds the program root folder: <main>_<year>_<semester>_<n>.
type ProgramNaming struct {
	Main     string `yaml:"main"`
	Semester string `yaml:"semester"`
}

type Directories struct {
	School   string `yaml:"school"`
	Record   string `yaml:"record"`
	Contract string `yaml:"contract"`
	Annex    string `yaml:"annex"`
	Summary  string `yaml:"summary"`
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		TemplatesDir: "templates",
		OutputDir:    "generated",
		Program:      ProgramNaming{Main: "Program", Semester: "semestr"},
		Directories: Directories{
			School:   "Szkoly",
			Record:   "WZ",
			Contract: "Umowy",
			Annex:    "Aneksy",
			Summary:  "Podsumowania",
		},
		Templates: map[Kind]string{
			KindRecord:         "record.docx",
			KindDelivery:       "delivery.docx",
			KindContract:       "contract.docx",
			KindAnnex:          "annex.docx",
			KindWeekSummary:    "week_summary.docx",
			KindRegister:       "register.docx",
			KindRecordRegister: "record_register.docx",
		},
		Names: map[Kind]string{
			KindRecord:         "WZ_{school}_{date}_{type}",
			KindDelivery:       "Dostawa_{date}_{driver}",
			KindContract:       "Umowa_{school}_{no}_{year}",
			KindAnnex:          "Aneks_{school}_{no}_{year}_{annex}",
			KindWeekSummary:    "Podsumowanie_tydzien_{week}",
			KindRegister:       "Rejestr_szkol_{date}",
			KindRecordRegister: "Rejestr_WZ_{date}",
		},
	}
}

// LoadCatalog overlays the YAML file at p on the defaults. An empty path
// yields the defaults.
func LoadCatalog(p string) (*Catalog, error) {
	cat := DefaultCatalog()
	if strings.TrimSpace(p) == "" {
		return cat, nil
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", p, err)
	}
	var file Catalog
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", p, err)
	}
	cat.merge(&file)
	return cat, nil
}

func (c *Catalog) merge(o *Catalog) {
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setIf(&c.TemplatesDir, o.TemplatesDir)
	setIf(&c.OutputDir, o.OutputDir)
	setIf(&c.Program.Main, o.Program.Main)
	setIf(&c.Program.Semester, o.Program.Semester)
	setIf(&c.Directories.School, o.Directories.School)
	setIf(&c.Directories.Record, o.Directories.Record)
	setIf(&c.Directories.Contract, o.Directories.Contract)
	setIf(&c.Directories.Annex, o.Directories.Annex)
	setIf(&c.Directories.Summary, o.Directories.Summary)
	for k, v := range o.Templates {
		c.Templates[k] = v
	}
	for k, v := range o.Names {
		c.Names[k] = v
	}
}

// ProgramDir is the root folder of a program edition, e.g. Program_2023_2024_semestr_2.
func (c *Catalog) ProgramDir(schoolYear string, semesterNo int) string {
	year := strings.ReplaceAll(strings.TrimSpace(schoolYear), "/", "_")
	return fmt.Sprintf("%s_%s_%s_%d", c.Program.Main, year, c.Program.Semester, semesterNo)
}

func (c *Catalog) TemplatePath(k Kind) (string, error) {
	name, ok := c.Templates[k]
	if !ok || name == "" {
		return "", fmt.Errorf("no template configured for %s", k)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(c.TemplatesDir, name), nil
}

// FileName expands the name pattern of k with args and appends .docx.
func (c *Catalog) FileName(k Kind, args map[string]string) (string, error) {
	pattern, ok := c.Names[k]
	if !ok || pattern == "" {
		return "", fmt.Errorf("no output name configured for %s", k)
	}
	pairs := make([]string, 0, len(args)*2)
	for key, v := range args {
		pairs = append(pairs, "{"+key+"}", sanitizeSegment(v))
	}
	name := strings.NewReplacer(pairs...).Replace(pattern)
	if !strings.HasSuffix(strings.ToLower(name), ".docx") {
		name += ".docx"
	}
	return name, nil
}

// JoinDir joins remote/local directory segments with "/".
func JoinDir(segments ...string) string {
	clean := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = sanitizeSegment(s); s != "" {
			clean = append(clean, s)
		}
	}
	return path.Join(clean...)
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	return strings.NewReplacer("/", "_", `\`, "_").Replace(s)
}
