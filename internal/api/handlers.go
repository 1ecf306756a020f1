package api

import (
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/utils"
)

// ToStructCorrelatedAlerts converts alert groups into the gRPC struct payload.
func ToStructCorrelatedAlerts(groups []models.AlertGroup) (*structpb.Struct, error) {
	list := make([]any, 0, len(groups))
	for _, g := range groups {
		anomalies := make([]any, 0, len(g.Members))
		for _, m := range g.Members {
			anomalies = append(anomalies, map[string]any{
				"id":        m.ID,
				"timestamp": utils.FormatISO(m.Timestamp),
				"amount":    m.Amount,
				"type":      m.Type,
			})
		}
		list = append(list, map[string]any{
			"customer_id": g.CustomerID,
			"type":        g.Type,
			"start_time":  utils.FormatISO(g.StartTime),
			"end_time":    utils.FormatISO(g.EndTime),
			"count":       g.Count,
			"anomalies":   anomalies,
		})
	}
	return structpb.NewStruct(map[string]any{"correlated_alerts": list})
}

// ToStructSLASnapshot converts an SLA snapshot into the gRPC struct payload.
func ToStructSLASnapshot(snap models.SLASnapshot) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"count":              snap.Count,
		"average_latency_ms": snap.AverageLatencyMS,
		"max_latency_ms":     snap.MaxLatencyMS,
		"min_latency_ms":     snap.MinLatencyMS,
		"sla_ms":             snap.SLAMS,
		"sla_breaches":       snap.SLABreaches,
	})
}

// FromStructAnomalyRecords reads {"anomalies": [{id, customer_id, type, timestamp, amount}]}.
// amount is required here. Other missing fields are left empty for the correlator to reject.
func FromStructAnomalyRecords(req *structpb.Struct) ([]models.AnomalyRecord, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	field, ok := req.GetFields()["anomalies"]
	if !ok {
		return []models.AnomalyRecord{}, nil
	}
	list := field.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("anomalies must be a list")
	}

	records := make([]models.AnomalyRecord, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		obj := v.GetStructValue()
		if obj == nil {
			return nil, fmt.Errorf("anomalies[%d] must be an object", i)
		}
		fields := obj.GetFields()

		rec := models.AnomalyRecord{
			ID:         stringValue(fields["id"]),
			CustomerID: stringValue(fields["customer_id"]),
			Type:       stringValue(fields["type"]),
		}
		if ts := stringValue(fields["timestamp"]); ts != "" {
			parsed, err := utils.ParseTimestamp(ts)
			if err != nil {
				return nil, fmt.Errorf("anomalies[%d].timestamp: %w", i, err)
			}
			rec.Timestamp = parsed
		}
		amount, ok := fields["amount"]
		if !ok {
			return nil, fmt.Errorf("anomalies[%d].amount is required", i)
		}
		n, ok := amount.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("anomalies[%d].amount must be a number", i)
		}
		rec.Amount = n.NumberValue
		records = append(records, rec)
	}
	return records, nil
}

// stringValue accepts string or numeric values so integer IDs survive the JSON mapping.
func stringValue(v *structpb.Value) string {
	if v == nil {
		return ""
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return kind.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
	default:
		return ""
	}
}
