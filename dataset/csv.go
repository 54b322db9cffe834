package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"recyclerate/feature"
)

var ErrNoRows = errors.New("dataset has no rows")

// Table is a raw CSV table: a header and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// LoadCSV reads a CSV file. encoding is an HTML encoding label such as
// "windows-1252"; empty or "utf-8" reads the file as is.
func LoadCSV(path, encoding string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadCSV(file, encoding)
}

func ReadCSV(r io.Reader, encoding string) (*Table, error) {
	reader, err := decodingReader(r, encoding)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(reader)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv has no header")
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}
	return &Table{Columns: header, Rows: records[1:]}, nil
}

func decodingReader(r io.Reader, encoding string) (io.Reader, error) {
	label := strings.ToLower(strings.TrimSpace(encoding))
	if label == "" || label == "utf-8" || label == "utf8" {
		return r, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", encoding, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// WritePredictions writes a single-column CSV, one row per prediction.
func WritePredictions(path string, predictions []float64) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePredictions(file, predictions); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func EncodePredictions(w io.Writer, predictions []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{feature.PredictedColumn}); err != nil {
		return err
	}
	for _, p := range predictions {
		if err := cw.Write([]string{strconv.FormatFloat(p, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
