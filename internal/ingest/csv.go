// Package ingest reads transaction batches from CSV uploads.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/utils"
)

var (
	// ErrMissingColumns means the header lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrInvalidRow means a data row could not be parsed.
	ErrInvalidRow = errors.New("invalid row")
)

// TransactionColumns are required in a transaction upload.
var TransactionColumns = []string{"timestamp", "amount", "type", "customer_id"}

// AnomalyColumns are required in a pre-flagged anomaly file.
var AnomalyColumns = []string{"id", "customer_id", "type", "timestamp", "amount"}

// ReadTransactions parses an upload with at least the TransactionColumns. Column order is
// free and extra columns are ignored. An optional is_anomaly column is honoured.
func ReadTransactions(r io.Reader) ([]models.Transaction, error) {
	var out []models.Transaction
	err := readRows(r, TransactionColumns, func(row record) error {
		ts, amount, err := row.timeAndAmount()
		if err != nil {
			return err
		}
		tx := models.Transaction{
			Timestamp:  ts,
			Amount:     amount,
			Type:       row.get("type"),
			CustomerID: row.get("customer_id"),
		}
		if raw := row.get("is_anomaly"); raw != "" {
			flag, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("is_anomaly %q: %w", raw, err)
			}
			tx.IsAnomaly = flag
		}
		if tx.Type == "" || tx.CustomerID == "" {
			return errors.New("type and customer_id must be set")
		}
		out = append(out, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadAnomalies parses a file of already-flagged anomaly records.
func ReadAnomalies(r io.Reader) ([]models.AnomalyRecord, error) {
	var out []models.AnomalyRecord
	err := readRows(r, AnomalyColumns, func(row record) error {
		ts, amount, err := row.timeAndAmount()
		if err != nil {
			return err
		}
		out = append(out, models.AnomalyRecord{
			ID:         row.get("id"),
			CustomerID: row.get("customer_id"),
			Type:       row.get("type"),
			Timestamp:  ts,
			Amount:     amount,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type record struct {
	index  map[string]int
	fields []string
}

func (r record) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) timeAndAmount() (ts time.Time, amount float64, err error) {
	ts, err = utils.ParseTimestamp(r.get("timestamp"))
	if err != nil {
		return ts, 0, fmt.Errorf("timestamp: %w", err)
	}
	amount, err = strconv.ParseFloat(r.get("amount"), 64)
	if err != nil {
		return ts, 0, fmt.Errorf("amount %q: %w", r.get("amount"), err)
	}
	return ts, amount, nil
}

func readRows(r io.Reader, required []string, fn func(record) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return utils.NewAppError("ingest.Read", "empty upload", ErrMissingColumns)
		}
		return fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return utils.NewAppError("ingest.Read", "missing columns: "+strings.Join(missing, ", "), ErrMissingColumns)
	}

	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return utils.NewAppError("ingest.Read", fmt.Sprintf("row %d", line), fmt.Errorf("%w: %v", ErrInvalidRow, err))
		}
		if isBlank(fields) {
			continue
		}
		if err := fn(record{index: index, fields: fields}); err != nil {
			return utils.NewAppError("ingest.Read", fmt.Sprintf("row %d: %v", line, err), ErrInvalidRow)
		}
	}
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
