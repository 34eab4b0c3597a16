package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrColumnLength is returned when columns of a table disagree in length
var ErrColumnLength = errors.New("history: column length mismatch")

// Table is the column-oriented view of a history. Every numeric column is
// aligned by record index; NaN marks a missing entry. A table may carry
// only a subset of NumericColumns. IDs and Timestamps are optional.
type Table struct {
	IDs        []uuid.UUID
	Timestamps []time.Time
	columns    map[string][]float64
	order      []string
}

// NewTable builds a table holding all nine persisted columns
func NewTable(records []Record) *Table {
	t := &Table{
		IDs:        make([]uuid.UUID, len(records)),
		Timestamps: make([]time.Time, len(records)),
		columns:    make(map[string][]float64, len(NumericColumns)),
		order:      append([]string{}, NumericColumns...),
	}

	for _, col := range NumericColumns {
		t.columns[col] = make([]float64, len(records))
	}
	for i, rec := range records {
		t.IDs[i] = rec.ID
		t.Timestamps[i] = rec.Timestamp
		for _, col := range NumericColumns {
			t.columns[col][i] = rec.Value(col)
		}
	}
	return t
}

// NewTableFromColumns builds a table from explicit columns. Timestamps may
// be nil. Known columns keep their persisted order; others follow sorted.
func NewTableFromColumns(timestamps []time.Time, columns map[string][]float64) (*Table, error) {
	t := &Table{
		Timestamps: timestamps,
		columns:    make(map[string][]float64, len(columns)),
	}

	var extra []string
	for name := range columns {
		if !isKnownColumn(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	for _, name := range append(append([]string{}, NumericColumns...), extra...) {
		values, ok := columns[name]
		if !ok {
			continue
		}
		t.columns[name] = append([]float64(nil), values...)
		t.order = append(t.order, name)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func isKnownColumn(name string) bool {
	for _, c := range NumericColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Len returns the number of rows
func (t *Table) Len() int {
	if len(t.order) > 0 {
		return len(t.columns[t.order[0]])
	}
	return len(t.Timestamps)
}

// Columns returns the names of the numeric columns present
func (t *Table) Columns() []string {
	return append([]string(nil), t.order...)
}

// Has reports whether the named column is present
func (t *Table) Has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// Column returns the values of a column. The slice is shared with the table.
func (t *Table) Column(name string) ([]float64, bool) {
	values, ok := t.columns[name]
	return values, ok
}

// SetColumn replaces or adds a column
func (t *Table) SetColumn(name string, values []float64) error {
	if n := t.Len(); len(t.order) > 0 && len(values) != n {
		return fmt.Errorf("%w: %s has %d values, want %d", ErrColumnLength, name, len(values), n)
	}
	if _, ok := t.columns[name]; !ok {
		t.order = append(t.order, name)
	}
	t.columns[name] = values
	return nil
}

// Clone returns a deep copy
func (t *Table) Clone() *Table {
	c := &Table{
		IDs:        append([]uuid.UUID(nil), t.IDs...),
		Timestamps: append([]time.Time(nil), t.Timestamps...),
		columns:    make(map[string][]float64, len(t.columns)),
		order:      append([]string(nil), t.order...),
	}
	for name, values := range t.columns {
		c.columns[name] = append([]float64(nil), values...)
	}
	return c
}

// Validate checks that every column has the same length
func (t *Table) Validate() error {
	n := t.Len()
	for _, name := range t.order {
		if len(t.columns[name]) != n {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrColumnLength, name, len(t.columns[name]), n)
		}
	}
	if t.Timestamps != nil && len(t.Timestamps) != n {
		return fmt.Errorf("%w: %d timestamps, want %d", ErrColumnLength, len(t.Timestamps), n)
	}
	if t.IDs != nil && len(t.IDs) != n {
		return fmt.Errorf("%w: %d ids, want %d", ErrColumnLength, len(t.IDs), n)
	}
	return nil
}

// Records converts the table back to records. Absent columns become NaN.
// Rows without a stored id get a fresh one.
func (t *Table) Records() []Record {
	n := t.Len()
	records := make([]Record, n)
	for i := range records {
		if i < len(t.IDs) && t.IDs[i] != uuid.Nil {
			records[i].ID = t.IDs[i]
		} else {
			records[i].ID = uuid.New()
		}
		if i < len(t.Timestamps) {
			records[i].Timestamp = t.Timestamps[i]
		}
		for _, col := range NumericColumns {
			value := math.NaN()
			if values, ok := t.columns[col]; ok {
				value = values[i]
			}
			records[i].setValue(col, value)
		}
	}
	return records
}
