package sim

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingLifecycle(t *testing.T) {
	s := newTestSimulation(0)
	dir := t.TempDir()

	_, err := s.StopRecording(dir)
	assert.Error(t, err)

	s.StartRecording("test_run")
	for i := 0; i < 5; i++ {
		s.Step(1)
	}

	csvPath, err := s.StopRecording(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(csvPath), "test_run_"))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6) // header plus five ticks
	assert.Equal(t, "time_step", records[0][0])
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "5.00", records[5][1])

	matches, err := filepath.Glob(filepath.Join(dir, "test_run_*_summary.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	var summary RunSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, "test_run", summary.Name)
	assert.Equal(t, 5, summary.TotalSteps)
	assert.InDelta(t, 5.0, summary.SimulationTime, 1e-9)
}

func TestStopRecordingWithoutRecords(t *testing.T) {
	s := newTestSimulation(0)
	s.StartRecording("empty")

	_, err := s.StopRecording(t.TempDir())
	assert.Error(t, err)
}
