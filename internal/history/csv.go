package history

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CSVHeader is the persisted record layout
var CSVHeader = append([]string{ColRecordID, ColTimestamp}, NumericColumns...)

// ErrNoKnownColumns is returned for a CSV whose header names none of the
// persisted columns
var ErrNoKnownColumns = errors.New("history: CSV has no known columns")

// WriteCSV writes records with a header row. Missing values are written
// as empty cells.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(csvRow(rec)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(rec Record) []string {
	row := make([]string, 0, len(CSVHeader))
	row = append(row, rec.ID.String(), rec.Timestamp.UTC().Format(time.RFC3339Nano))
	for _, col := range NumericColumns {
		v := rec.Value(col)
		if math.IsNaN(v) {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

// ReadCSV parses a history CSV into a table. Columns are matched by
// header name; unknown headers are skipped and only the columns present in
// the file appear in the table. A header without any known column is
// ErrNoKnownColumns. Empty or "NaN" cells are missing values; any other
// non-numeric cell is an error naming its row and column. Rows of a file
// without a record_id column get fresh ids when converted to records.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err == io.EOF {
		return NewTableFromColumns(nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	idIndex, tsIndex := -1, -1
	colIndex := make(map[string]int)
	for i, h := range headers {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case name == ColRecordID:
			idIndex = i
		case name == ColTimestamp:
			tsIndex = i
		case isKnownColumn(name):
			colIndex[name] = i
		}
	}
	if idIndex < 0 && tsIndex < 0 && len(colIndex) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoKnownColumns, strings.Join(headers, ","))
	}

	var ids []uuid.UUID
	var timestamps []time.Time
	columns := make(map[string][]float64, len(colIndex))
	for name := range colIndex {
		columns[name] = []float64{}
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		if idIndex >= 0 {
			id, err := parseID(cell(row, idIndex))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, ColRecordID, err)
			}
			ids = append(ids, id)
		}

		if tsIndex >= 0 {
			ts, err := parseTimestamp(cell(row, tsIndex))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, ColTimestamp, err)
			}
			timestamps = append(timestamps, ts)
		}

		for name, idx := range colIndex {
			v, err := parseCell(cell(row, idx))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			columns[name] = append(columns[name], v)
		}
	}

	table, err := NewTableFromColumns(timestamps, columns)
	if err != nil {
		return nil, err
	}
	table.IDs = ids
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseCell(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric value %q", s)
	}
	return v, nil
}

// parseID returns uuid.Nil for an empty cell
func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// CSVFileStore appends records to a CSV file, one row per record
type CSVFileStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVFileStore creates a store backed by the file at path
func NewCSVFileStore(path string) *CSVFileStore {
	return &CSVFileStore{path: path}
}

// Append writes one row, creating the file and its header on first use.
// A file written with an older header is rewritten in the current layout
// first.
func (s *CSVFileStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	header, err := s.header()
	if err != nil {
		return err
	}
	if header != nil && !slices.Equal(header, CSVHeader) {
		if err := s.rewrite(); err != nil {
			return err
		}
		header = CSVHeader
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if header == nil {
		if err := cw.Write(CSVHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}
	if err := cw.Write(csvRow(rec)); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// header returns the first row of the file, or nil for a missing or empty file
func (s *CSVFileStore) header() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	return header, nil
}

func (s *CSVFileStore) rewrite() error {
	records, err := s.all()
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write history file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// All reads every stored record; a missing file is an empty history
func (s *CSVFileStore) All(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all()
}

func (s *CSVFileStore) all() ([]Record, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	table, err := ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return table.Records(), nil
}
