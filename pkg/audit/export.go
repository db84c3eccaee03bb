package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"
)

// Export serializes events in the requested format. Unknown formats
// fall back to JSON.
func Export(events []*Event, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

func exportJSON(events []*Event) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

func exportNDJSON(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func exportCSV(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID",
		"EventType",
		"Severity",
		"Timestamp",
		"UserID",
		"TenantID",
		"IPAddress",
		"UserAgent",
		"Endpoint",
		"Details",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		var details string
		if event.Details != nil {
			b, err := json.Marshal(event.Details)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal details: %w", err)
			}
			details = string(b)
		}

		row := []string{
			event.ID,
			string(event.EventType),
			string(event.Severity),
			event.Timestamp.Format(time.RFC3339),
			event.UserID,
			event.TenantID,
			event.IPAddress,
			event.UserAgent,
			event.Endpoint,
			details,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
