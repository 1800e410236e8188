package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trafficsim/models"
)

type failingRates struct{ calls int }

func (f *failingRates) SpawnRates(string) (map[models.Approach]float64, error) {
	f.calls++
	return nil, errors.New("feed down")
}

func (f *failingRates) Advance(int) {}

func newTestSimulation(spawnRate float64) *Simulation {
	cfg := DefaultConfig()
	cfg.NumIntersections = 1
	cfg.SpawnRate = spawnRate
	cfg.PriorityProbability = 0
	cfg.Seed = 1
	return New(cfg, UniformRates(spawnRate))
}

func TestSimulationStepAdvancesTime(t *testing.T) {
	s := newTestSimulation(0)

	s.Step(1.5)
	s.Step(0.5)
	assert.InDelta(t, 2.0, s.SimTime(), 1e-9)

	s.Step(-1)
	assert.InDelta(t, 2.0, s.SimTime(), 1e-9)
}

func TestSimulationStartStopIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumIntersections = 1
	cfg.SpawnRate = 0
	cfg.Seed = 1
	cfg.TickInterval = 5 * time.Millisecond
	s := New(cfg, UniformRates(0))

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, s.SimTime(), 0.0)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())

	stopped := s.SimTime()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, s.SimTime())
}

func TestSimulationReset(t *testing.T) {
	s := newTestSimulation(0)

	_, err := s.AddPriorityVehicle("intersection_1", "east")
	require.NoError(t, err)
	require.NoError(t, s.SubmitOverride("intersection_1", "north", "red", "manual", nil))
	s.Step(1)

	s.Reset()

	m := s.Metrics()
	assert.Zero(t, m.SimulationTime)
	assert.Zero(t, m.VehiclesSpawned)
	assert.Zero(t, m.VehiclesPassed)
	assert.False(t, m.Running)

	snap := s.Snapshot()
	require.Len(t, snap.Intersections, 1)
	assert.Zero(t, snap.Intersections[0].TotalQueueLength)
	assert.Equal(t, models.PhaseNorthSouthGreen, snap.Intersections[0].CurrentPhase)

	summary := s.ControlSummary()
	assert.Equal(t, summary.TotalSignals, summary.AutomaticSignals)
}

func TestSimulationSpawnRespectsCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumIntersections = 1
	cfg.SpawnRate = 0.5
	cfg.PriorityProbability = 0
	cfg.MaxVehiclesPerIntersection = 3
	cfg.Seed = 42
	s := New(cfg, UniformRates(0.5))

	// tiny deltas so nothing passes through while the queues fill
	for i := 0; i < 300; i++ {
		s.Step(0.001)
	}

	m := s.Metrics()
	assert.Greater(t, m.VehiclesSpawned, 0)
	snap := s.Snapshot()
	assert.LessOrEqual(t, snap.Intersections[0].TotalQueueLength, 3)
}

func TestSimulationRateProviderFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumIntersections = 1
	cfg.SpawnRate = 0.5
	cfg.PriorityProbability = 0
	cfg.Seed = 7
	provider := &failingRates{}
	s := New(cfg, provider)

	for i := 0; i < 100; i++ {
		s.Step(0.001)
	}

	assert.Equal(t, 100, s.RateFailures())
	assert.Equal(t, 100, provider.calls)
	// the uniform default keeps the simulation fed
	assert.Greater(t, s.Metrics().VehiclesSpawned, 0)
}

func TestSimulationOverrideLifecycle(t *testing.T) {
	s := newTestSimulation(0)

	err := s.SubmitOverride("intersection_9", "north", "red", "manual", nil)
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
	err = s.SubmitOverride("intersection_1", "up", "red", "manual", nil)
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
	err = s.SubmitOverride("intersection_1", "north", "blue", "manual", nil)
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	duration := 10.0
	require.NoError(t, s.SubmitOverride("intersection_1", "north", "red", "manual", &duration))

	st, err := s.SignalStatus("intersection_1", "north")
	require.NoError(t, err)
	assert.Equal(t, models.Red, st.Signal)
	assert.Equal(t, models.ModeManual, st.Mode)

	// eleven simulated seconds later the override has timed out
	for i := 0; i < 11; i++ {
		s.Step(1)
	}

	st, err = s.SignalStatus("intersection_1", "north")
	require.NoError(t, err)
	assert.Equal(t, models.ModeAutomatic, st.Mode)
	assert.False(t, st.OverrideActive)
	// at t=11 the machine is still in NS_GREEN
	assert.Equal(t, models.Green, st.Signal)
}

func TestSimulationPriorityVehicleScenario(t *testing.T) {
	s := newTestSimulation(0)

	for i := 0; i < 5; i++ {
		s.Step(1)
	}
	snap := s.Snapshot()
	require.Equal(t, models.PhaseNorthSouthGreen, snap.Intersections[0].CurrentPhase)

	id, err := s.AddPriorityVehicle("intersection_1", "east")
	require.NoError(t, err)

	s.Step(0.1)
	snap = s.Snapshot()
	x := snap.Intersections[0]
	assert.Equal(t, models.PhaseEastWestGreen, x.CurrentPhase)
	assert.True(t, x.OverrideActive)
	assert.Equal(t, models.Green, x.SignalColors[models.East])
	require.Len(t, x.PriorityVehicles, 1)
	assert.Equal(t, id, x.PriorityVehicles[0].ID)

	// the vehicle crosses at speed 1.0, then preemption releases
	for i := 0; i < 12; i++ {
		s.Step(0.1)
	}
	snap = s.Snapshot()
	x = snap.Intersections[0]
	assert.False(t, x.OverrideActive)
	assert.Empty(t, x.PriorityVehicles)
	assert.Equal(t, 1, x.VehiclesPassed)

	m := s.Metrics()
	assert.Equal(t, 1, m.VehiclesPassed)
	assert.Equal(t, 1, m.PriorityVehiclesSpawned)
	assert.Greater(t, m.Throughput, 0.0)
}

func TestSimulationMetricsThroughputFloor(t *testing.T) {
	s := newTestSimulation(0)
	s.Step(0.5)

	// denominator is clamped to one second of sim time
	m := s.Metrics()
	assert.Zero(t, m.Throughput)
	assert.InDelta(t, 0.5, m.SimulationTime, 1e-9)
}

func TestSimulationInvalidPriorityVehicleTarget(t *testing.T) {
	s := newTestSimulation(0)

	_, err := s.AddPriorityVehicle("nope", "east")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
	_, err = s.AddPriorityVehicle("intersection_1", "sideways")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}
