package models

// PriorityVehicleInfo is the per-vehicle view exposed for queued priority
// vehicles.
type PriorityVehicleInfo struct {
	ID       string   `json:"id"`
	Approach Approach `json:"approach"`
	WaitTime float64  `json:"wait_time"`
}

type IntersectionSnapshot struct {
	ID               string                   `json:"id"`
	CurrentPhase     Phase                    `json:"current_phase"`
	PhaseProgress    float64                  `json:"phase_progress"`
	OverrideActive   bool                     `json:"is_override_active"`
	QueueLengths     map[Approach]int         `json:"queue_lengths"`
	TotalQueueLength int                      `json:"total_queue_length"`
	AverageWaitTime  float64                  `json:"average_wait_time"`
	VehiclesPassed   int                      `json:"vehicles_passed"`
	SignalColors     map[Approach]SignalColor `json:"signal_colors"`
	PriorityVehicles []PriorityVehicleInfo    `json:"priority_vehicles"`
}

type Metrics struct {
	SimulationTime          float64 `json:"simulation_time"`
	VehiclesSpawned         int     `json:"total_vehicles_spawned"`
	VehiclesPassed          int     `json:"total_vehicles_passed"`
	PriorityVehiclesSpawned int     `json:"total_priority_vehicles_spawned"`
	TotalWaitTime           float64 `json:"total_wait_time"`
	AverageWaitTime         float64 `json:"average_wait_time"`
	Throughput              float64 `json:"throughput"`
	Running                 bool    `json:"is_running"`
}

// Snapshot is one internally consistent view of the whole simulation, taken
// under the same lock as the tick.
type Snapshot struct {
	Intersections []IntersectionSnapshot `json:"intersections"`
	Metrics       Metrics                `json:"metrics"`
}

// ControlSummary counts signals per control mode.
type ControlSummary struct {
	TotalSignals     int `json:"total_signals"`
	AutomaticSignals int `json:"automatic_signals"`
	ManualSignals    int `json:"manual_signals"`
	AISignals        int `json:"ai_signals"`
}
