package sim

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"trafficsim/models"
)

// MetricsRecord is one tick of recorded simulation metrics.
type MetricsRecord struct {
	TimeStep        int     `json:"timeStep"`
	SimulationTime  float64 `json:"simulationTime"`
	VehiclesSpawned int     `json:"vehiclesSpawned"`
	VehiclesPassed  int     `json:"vehiclesPassed"`
	QueuedVehicles  int     `json:"queuedVehicles"`
	AverageWaitTime float64 `json:"averageWaitTime"`
	Throughput      float64 `json:"throughput"`
}

type RunSummary struct {
	Name            string  `json:"name"`
	TotalSteps      int     `json:"totalSteps"`
	SimulationTime  float64 `json:"simulationTime"`
	VehiclesSpawned int     `json:"vehiclesSpawned"`
	VehiclesPassed  int     `json:"vehiclesPassed"`
	AverageWaitTime float64 `json:"averageWaitTime"`
	FinalThroughput float64 `json:"finalThroughput"`
	WallRuntime     float64 `json:"wallRuntime"`
	Timestamp       string  `json:"timestamp"`
}

// Recorder accumulates one metrics record per tick for later export.
type Recorder struct {
	Name      string
	StartTime time.Time
	Records   []MetricsRecord
	step      int
}

// StartRecording begins capturing per-tick metrics under the given run name.
// An active recording is discarded.
func (s *Simulation) StartRecording(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder = &Recorder{Name: name, StartTime: time.Now()}
	log.Infof("recording metrics as %q", name)
}

// StopRecording saves the captured run into dir and stops capturing. Returns
// the path of the written CSV.
func (s *Simulation) StopRecording(dir string) (string, error) {
	s.mu.Lock()
	rec := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	if rec == nil || len(rec.Records) == 0 {
		return "", fmt.Errorf("no recording in progress")
	}
	return rec.save(dir)
}

func (r *Recorder) Record(m models.Metrics, queued int) {
	r.step++
	r.Records = append(r.Records, MetricsRecord{
		TimeStep:        r.step,
		SimulationTime:  m.SimulationTime,
		VehiclesSpawned: m.VehiclesSpawned,
		VehiclesPassed:  m.VehiclesPassed,
		QueuedVehicles:  queued,
		AverageWaitTime: m.AverageWaitTime,
		Throughput:      m.Throughput,
	})
}

func (r *Recorder) save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create statistics directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	csvPath := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", r.Name, stamp))

	f, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"time_step", "simulation_time", "vehicles_spawned", "vehicles_passed", "queued_vehicles", "average_wait_time", "throughput"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, rec := range r.Records {
		row := []string{
			fmt.Sprintf("%d", rec.TimeStep),
			fmt.Sprintf("%.2f", rec.SimulationTime),
			fmt.Sprintf("%d", rec.VehiclesSpawned),
			fmt.Sprintf("%d", rec.VehiclesPassed),
			fmt.Sprintf("%d", rec.QueuedVehicles),
			fmt.Sprintf("%.2f", rec.AverageWaitTime),
			fmt.Sprintf("%.4f", rec.Throughput),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	last := r.Records[len(r.Records)-1]
	summary := RunSummary{
		Name:            r.Name,
		TotalSteps:      last.TimeStep,
		SimulationTime:  last.SimulationTime,
		VehiclesSpawned: last.VehiclesSpawned,
		VehiclesPassed:  last.VehiclesPassed,
		AverageWaitTime: last.AverageWaitTime,
		FinalThroughput: last.Throughput,
		WallRuntime:     time.Since(r.StartTime).Seconds(),
		Timestamp:       time.Now().Format("2006-01-02 15:04:05"),
	}

	summaryPath := filepath.Join(dir, fmt.Sprintf("%s_%s_summary.json", r.Name, stamp))
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	log.Infof("saved %d metric records to %s", len(r.Records), csvPath)
	return csvPath, nil
}
