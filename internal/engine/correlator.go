package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/utils"
)

// DefaultWindow is the correlation window used when none is configured.
const DefaultWindow = time.Hour

// ErrInvalidRecord marks an anomaly record that violates the correlator input contract.
var ErrInvalidRecord = errors.New("invalid anomaly record")

// Correlator groups flagged anomalies into per customer/type alert groups.
//
// Input is expected to be ordered by (customer_id, type, timestamp). The correlator trusts
// that order unless WithSortInput is set; unsorted input is grouped by linear scan exactly
// as given. A Correlator holds no mutable state and is safe for concurrent use.
type Correlator struct {
	window    time.Duration
	sortInput bool
	logger    *slog.Logger
}

// CorrelatorOption customises a Correlator.
type CorrelatorOption func(*Correlator)

// WithWindow sets the maximum distance from a group's anchor for a record to join it.
// Non-positive values keep the default.
func WithWindow(window time.Duration) CorrelatorOption {
	return func(c *Correlator) {
		if window > 0 {
			c.window = window
		}
	}
}

// WithSortInput makes Group stable-sort a copy of its input by (customer_id, type, timestamp).
func WithSortInput(enabled bool) CorrelatorOption {
	return func(c *Correlator) {
		c.sortInput = enabled
	}
}

// WithLogger attaches a logger for debug output.
func WithLogger(logger *slog.Logger) CorrelatorOption {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCorrelator constructs a Correlator.
func NewCorrelator(opts ...CorrelatorOption) *Correlator {
	c := &Correlator{window: DefaultWindow, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the configured correlation window.
func (c *Correlator) Window() time.Duration {
	return c.window
}

// Group partitions records into alert groups in a single pass.
//
// A new group starts when the customer or type changes, or when the record lies strictly
// more than the window after the group's anchor. The anchor is the first member of the
// group and does not move as members are added.
func (c *Correlator) Group(records []models.AnomalyRecord) ([]models.AlertGroup, error) {
	if err := validateRecords(records); err != nil {
		return nil, err
	}

	input := records
	if c.sortInput {
		input = sortedCopy(records)
	}

	groups := make([]models.AlertGroup, 0)
	var (
		current []models.AnomalyRecord
		anchor  time.Time
	)
	for _, rec := range input {
		if len(current) > 0 && c.startsNewGroup(current[0], anchor, rec) {
			groups = append(groups, newAlertGroup(current))
			current = nil
		}
		if len(current) == 0 {
			anchor = rec.Timestamp
		}
		current = append(current, rec)
	}
	if len(current) > 0 {
		groups = append(groups, newAlertGroup(current))
	}

	c.logger.Debug("correlated anomalies",
		slog.Int("records", len(records)),
		slog.Int("groups", len(groups)),
		slog.Duration("window", c.window),
	)
	return groups, nil
}

func (c *Correlator) startsNewGroup(head models.AnomalyRecord, anchor time.Time, rec models.AnomalyRecord) bool {
	if rec.CustomerID != head.CustomerID || rec.Type != head.Type {
		return true
	}
	return rec.Timestamp.Sub(anchor) > c.window
}

func newAlertGroup(members []models.AnomalyRecord) models.AlertGroup {
	return models.AlertGroup{
		CustomerID: members[0].CustomerID,
		Type:       members[0].Type,
		StartTime:  members[0].Timestamp,
		EndTime:    members[len(members)-1].Timestamp,
		Count:      len(members),
		Members:    members,
	}
}

func validateRecords(records []models.AnomalyRecord) error {
	for i, rec := range records {
		var field string
		switch {
		case rec.ID == "":
			field = "id"
		case rec.CustomerID == "":
			field = "customer_id"
		case rec.Type == "":
			field = "type"
		case rec.Timestamp.IsZero():
			field = "timestamp"
		default:
			continue
		}
		return utils.NewAppError("engine.Group", fmt.Sprintf("record %d is missing %s", i, field), ErrInvalidRecord)
	}
	return nil
}

func sortedCopy(records []models.AnomalyRecord) []models.AnomalyRecord {
	out := append([]models.AnomalyRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CustomerID != out[j].CustomerID {
			return out[i].CustomerID < out[j].CustomerID
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
