package dataset

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
)

// DefaultTarget is the column holding sale prices.
const DefaultTarget = "SalePrice"

// ErrDataUnavailable means the dataset file is missing, unreadable or malformed.
var ErrDataUnavailable = errors.New("dataset unavailable")

// Dataset is a loaded table split into feature records and target values.
type Dataset struct {
	Path     string    `json:"path"`
	Columns  []string  `json:"columns"`
	Records  []Record  `json:"-"`
	Target   []Value   `json:"-"`
	Schema   Schema    `json:"schema"`
	Profiles []Profile `json:"profiles"`
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Records) }

// loadConfig holds the options of Load.
type loadConfig struct {
	target   string
	sheet    string
	required []string
}

// LoadOption customizes Load.
type LoadOption func(*loadConfig)

// WithTarget sets the target column name.
func WithTarget(name string) LoadOption {
	return func(c *loadConfig) {
		if name != "" {
			c.target = name
		}
	}
}

// WithSheet selects the worksheet of a spreadsheet. The first sheet is used by default.
func WithSheet(name string) LoadOption { return func(c *loadConfig) { c.sheet = name } }

// WithRequiredColumns lists feature columns that must be present in the file.
func WithRequiredColumns(names ...string) LoadOption {
	return func(c *loadConfig) { c.required = append(c.required, names...) }
}

// Load reads a .xlsx, .xlsm or .csv file, splits off the target column and classifies every
// feature column as numeric or categorical.
func Load(path string, opts ...LoadOption) (*Dataset, error) {
	cfg := &loadConfig{target: DefaultTarget}
	for _, opt := range opts {
		opt(cfg)
	}

	rows, err := readRows(path, cfg.sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: file is empty", path)
	}

	header := lo.Map(rows[0], func(h string, _ int) string { return strings.TrimSpace(h) })
	for i, h := range header {
		if h == "" {
			return nil, errors.Wrapf(ErrDataUnavailable, "%s: header cell %d is empty", path, i+1)
		}
	}
	if dup := lo.FindDuplicates(header); len(dup) > 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: duplicate columns %v", path, dup)
	}
	targetIdx := lo.IndexOf(header, cfg.target)
	if targetIdx < 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: target column %q not found", path, cfg.target)
	}
	for _, name := range cfg.required {
		if !lo.Contains(header, name) {
			return nil, errors.Wrapf(ErrDataUnavailable, "%s: required column %q not found", path, name)
		}
	}

	body := lo.Filter(rows[1:], func(row []string, _ int) bool {
		return lo.SomeBy(row, func(cell string) bool { return strings.TrimSpace(cell) != "" })
	})
	if len(body) == 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: no data rows", path)
	}

	ds := &Dataset{
		Path:    path,
		Records: make([]Record, len(body)),
		Target:  make([]Value, len(body)),
	}
	for i := range ds.Records {
		ds.Records[i] = make(Record, len(header)-1)
	}

	for j, name := range header {
		col := column{name: name, cells: make([]string, len(body))}
		for i, row := range body {
			if j < len(row) {
				col.cells[i] = row[j]
			}
		}
		if j == targetIdx {
			for i, cell := range col.cells {
				ds.Target[i] = cellValue(cell)
			}
			continue
		}

		kind, err := col.classify()
		if err != nil {
			return nil, errors.Wrap(err, path)
		}
		values := col.values(kind)
		for i, v := range values {
			ds.Records[i][name] = v
		}
		ds.Columns = append(ds.Columns, name)
		if kind == KindNumeric {
			ds.Schema.Numeric = append(ds.Schema.Numeric, name)
		} else {
			ds.Schema.Categorical = append(ds.Schema.Categorical, name)
		}
		ds.Profiles = append(ds.Profiles, profile(name, kind, values))
	}
	return ds, nil
}

// cellValue types a single cell on its own.
func cellValue(cell string) Value {
	cell = strings.TrimSpace(cell)
	if IsNA(cell) {
		return Missing()
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return Numeric(f)
	}
	return Categorical(cell)
}

func readRows(path, sheet string) ([][]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: %v", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return readSpreadsheet(path, sheet)
	case ".csv":
		return readCSV(path)
	default:
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: unsupported file type", path)
	}
}

func readSpreadsheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: %v", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: sheet %q not found", path, sheet)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: %v", path, err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: %v", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "%s: %v", path, err)
	}
	return rows, nil
}
