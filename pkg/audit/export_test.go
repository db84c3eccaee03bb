package audit

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []*Event {
	return []*Event{
		{
			ID:        "id-1",
			EventType: EventTypeIPBlocked,
			Severity:  SeverityWarn,
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			IPAddress: "203.0.113.7",
			Endpoint:  "/api/v1/portfolio",
			Details:   map[string]interface{}{"reason": "not-whitelisted"},
		},
		{
			ID:        "id-2",
			EventType: EventTypeAuthLoginFailed,
			Severity:  SeverityWarn,
			Timestamp: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
			UserID:    "user-9",
		},
	}
}

func TestExportJSON(t *testing.T) {
	data, err := Export(sampleEvents(), ExportFormatJSON)
	require.NoError(t, err)

	var decoded []*Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "id-1", decoded[0].ID)
	assert.Equal(t, EventTypeAuthLoginFailed, decoded[1].EventType)
}

func TestExportNDJSON(t *testing.T) {
	data, err := Export(sampleEvents(), ExportFormatNDJSON)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "id-1", first.ID)
}

func TestExportCSV(t *testing.T) {
	data, err := Export(sampleEvents(), ExportFormatCSV)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "ID", records[0][0])
	assert.Equal(t, "id-1", records[1][0])
	assert.Equal(t, "ip-blocked", records[1][1])
	assert.Contains(t, records[1][9], "not-whitelisted")
	assert.Equal(t, "user-9", records[2][4])
}

func TestExportUnknownFormatFallsBackToJSON(t *testing.T) {
	data, err := Export(sampleEvents(), ExportFormat("xml"))
	require.NoError(t, err)

	var decoded []*Event
	assert.NoError(t, json.Unmarshal(data, &decoded))
}
