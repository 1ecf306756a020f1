package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlens/fincorr/internal/models"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(&out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCorrelateCommand(t *testing.T) {
	path := writeCSV(t, `id,customer_id,type,timestamp,amount
1,C1,fraud,2024-03-01T10:00:00Z,100
2,C1,fraud,2024-03-01T10:50:00Z,200
3,C1,fraud,2024-03-01T11:35:00Z,300
4,C2,wire,2024-03-01T10:00:00Z,50
`)

	out, err := run(t, "correlate", "--file", path)
	require.NoError(t, err)

	var result models.CorrelatedAlerts
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Groups, 3)
	assert.Equal(t, 2, result.Groups[0].Count)
	assert.Equal(t, "3", result.Groups[1].Members[0].ID)
	assert.Equal(t, "C2", result.Groups[2].CustomerID)
}

func TestCorrelateCommandSortsOnRequest(t *testing.T) {
	path := writeCSV(t, `id,customer_id,type,timestamp,amount
2,C1,fraud,2024-03-01T10:20:00Z,200
9,C0,fraud,2024-03-01T09:00:00Z,1
1,C1,fraud,2024-03-01T10:00:00Z,100
`)

	out, err := run(t, "correlate", "--file", path, "--sort", "--window", "30m")
	require.NoError(t, err)

	var result models.CorrelatedAlerts
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Groups, 2)
	assert.Equal(t, "C0", result.Groups[0].CustomerID)
	assert.Equal(t, "1", result.Groups[1].Members[0].ID)
	assert.Equal(t, 2, result.Groups[1].Count)
}

func TestCorrelateCommandRejectsMissingFields(t *testing.T) {
	path := writeCSV(t, "id,customer_id,type,timestamp,amount\n1,,fraud,2024-03-01T10:00:00Z,1\n")
	_, err := run(t, "correlate", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_id")

	_, err = run(t, "correlate")
	require.Error(t, err)
}

func TestSLACommand(t *testing.T) {
	out, err := run(t, "sla", "--window", "3", "--sla-ms", "25", "10", "20", "30", "40")
	require.NoError(t, err)

	var snap models.SLASnapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Equal(t, 3, snap.Count)
	assert.InDelta(t, 30, snap.AverageLatencyMS, 1e-9)
	assert.Equal(t, 40.0, snap.MaxLatencyMS)
	assert.Equal(t, 20.0, snap.MinLatencyMS)
	assert.Equal(t, int64(2), snap.SLABreaches)

	_, err = run(t, "sla", "fast")
	require.Error(t, err)
}
