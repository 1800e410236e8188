package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"trafficsim/models"
)

// RateProvider supplies per-approach spawn probabilities, advanced in lockstep
// with simulation time. Implementations may fail transiently; the driver falls
// back to a uniform default rate and keeps running.
type RateProvider interface {
	SpawnRates(intersectionID string) (map[models.Approach]float64, error)
	Advance(steps int)
}

// UniformRates is the trivial provider: the same probability everywhere.
type UniformRates float64

func (u UniformRates) SpawnRates(string) (map[models.Approach]float64, error) {
	rates := make(map[models.Approach]float64, 4)
	for _, a := range models.Approaches() {
		rates[a] = float64(u)
	}
	return rates, nil
}

func (u UniformRates) Advance(int) {}

type Config struct {
	NumIntersections           int
	SpawnRate                  float64 // fallback per-approach probability
	PriorityProbability        float64
	SimulationSpeed            float64
	MaxVehiclesPerIntersection int
	TickInterval               time.Duration
	Seed                       int64
}

func DefaultConfig() Config {
	return Config{
		NumIntersections:           4,
		SpawnRate:                  0.1,
		PriorityProbability:        0.05,
		SimulationSpeed:            1.0,
		MaxVehiclesPerIntersection: 50,
		TickInterval:               100 * time.Millisecond,
	}
}

// Simulation is the clock. All mutable state hangs off it behind one mutex;
// a whole tick is a single critical section so readers always observe an
// internally consistent state.
type Simulation struct {
	mu sync.Mutex

	cfg           Config
	intersections []*Intersection
	byID          map[string]*Intersection
	controller    *SignalController
	rates         RateProvider
	recorder      *Recorder
	rng           *rand.Rand

	simTime  float64
	lastWall time.Time
	running  bool
	stop     chan struct{}
	done     chan struct{}

	vehiclesSpawned         int
	priorityVehiclesSpawned int
	rateFailures            int
}

func New(cfg Config, rates RateProvider) *Simulation {
	if cfg.NumIntersections <= 0 {
		cfg.NumIntersections = 1
	}
	if cfg.SimulationSpeed <= 0 {
		cfg.SimulationSpeed = 1.0
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if rates == nil {
		rates = UniformRates(cfg.SpawnRate)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulation{
		cfg:   cfg,
		byID:  make(map[string]*Intersection),
		rates: rates,
		rng:   rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < cfg.NumIntersections; i++ {
		x := NewIntersection(fmt.Sprintf("intersection_%d", i+1))
		s.intersections = append(s.intersections, x)
		s.byID[x.ID] = x
	}
	s.controller = NewSignalController(s.byID, 0)
	return s
}

// Start launches the ticking goroutine. No-op when already running.
func (s *Simulation) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.lastWall = time.Now()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	log.Infof("simulation started: %d intersections, speed %.1fx", len(s.intersections), s.cfg.SimulationSpeed)
}

// Stop signals the loop and waits for the in-flight tick to complete, bounded.
// No-op when already stopped.
func (s *Simulation) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Warnf("timed out waiting for simulation loop to exit")
	}
}

// Reset stops the driver and returns everything to initial values.
func (s *Simulation) Reset() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.simTime = 0
	s.vehiclesSpawned = 0
	s.priorityVehiclesSpawned = 0
	s.rateFailures = 0
	for _, x := range s.intersections {
		x.Reset(0)
	}
	s.controller.Reset(0)
	if s.recorder != nil {
		s.recorder = nil
	}
	log.Infof("simulation reset")
}

func (s *Simulation) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Simulation) tick(wall time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dt := wall.Sub(s.lastWall).Seconds() * s.cfg.SimulationSpeed
	s.lastWall = wall
	if dt <= 0 {
		return
	}
	s.advance(dt)
}

// Step advances the simulation by an explicit sim-time delta through the same
// code path as the ticker loop. Useful for lockstep drivers and tests.
func (s *Simulation) Step(dt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dt <= 0 {
		return
	}
	s.advance(dt)
}

// advance runs one full tick. Callers hold s.mu.
func (s *Simulation) advance(dt float64) {
	s.simTime += dt
	s.rates.Advance(1)
	s.spawnVehicles()
	s.controller.Tick(s.simTime)
	for _, x := range s.intersections {
		x.UpdateVehicles(s.simTime, dt)
	}
	if s.recorder != nil {
		s.recorder.Record(s.metricsLocked(), s.queueTotalLocked())
	}
}

func (s *Simulation) spawnVehicles() {
	for _, x := range s.intersections {
		rates, err := s.rates.SpawnRates(x.ID)
		if err != nil {
			s.rateFailures++
			log.Debugf("rate provider unavailable for %s, using default rate: %v", x.ID, err)
			rates = nil
		}

		for _, a := range models.Approaches() {
			p := s.cfg.SpawnRate
			if rates != nil {
				p = rates[a]
			}
			if p < 0 {
				p = 0
			} else if p > 0.5 {
				p = 0.5
			}
			if s.rng.Float64() >= p {
				continue
			}
			if x.TotalQueueLength() >= s.cfg.MaxVehiclesPerIntersection {
				continue
			}
			s.spawnVehicle(x, a)
		}
	}
}

func (s *Simulation) spawnVehicle(x *Intersection, a models.Approach) {
	kind := models.VehicleNormal
	speed := 0.8 + s.rng.Float64()*0.4
	if s.rng.Float64() < s.cfg.PriorityProbability {
		kind = models.VehiclePriority
		speed = 1.0
	}

	x.AddVehicle(&models.Vehicle{
		ID:          uuid.NewString(),
		Approach:    a,
		Kind:        kind,
		Speed:       speed,
		ArrivalTime: s.simTime,
	})

	s.vehiclesSpawned++
	if kind == models.VehiclePriority {
		s.priorityVehiclesSpawned++
	}
}

// AddPriorityVehicle injects a priority vehicle on one approach and returns
// its id.
func (s *Simulation) AddPriorityVehicle(intersectionID, approach string) (string, error) {
	a, err := models.ParseApproach(approach)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.byID[intersectionID]
	if !ok {
		return "", fmt.Errorf("unknown intersection %q: %w", intersectionID, models.ErrInvalidTarget)
	}

	v := &models.Vehicle{
		ID:          uuid.NewString(),
		Approach:    a,
		Kind:        models.VehiclePriority,
		Speed:       1.0,
		ArrivalTime: s.simTime,
	}
	x.AddVehicle(v)
	s.vehiclesSpawned++
	s.priorityVehiclesSpawned++
	log.Infof("priority vehicle %s added at %s %s", v.ID, intersectionID, a)
	return v.ID, nil
}

// SubmitOverride parses and installs an external signal command.
func (s *Simulation) SubmitOverride(intersectionID, approach, signal, mode string, duration *float64) error {
	a, err := models.ParseApproach(approach)
	if err != nil {
		return err
	}
	sig, err := models.ParseSignalColor(signal)
	if err != nil {
		return err
	}
	m, err := models.ParseControlMode(mode)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SetSignal(intersectionID, a, sig, m, duration, s.simTime)
}

// ClearOverride reverts one approach to automatic control.
func (s *Simulation) ClearOverride(intersectionID, approach string) error {
	a, err := models.ParseApproach(approach)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SetAutomatic(intersectionID, a, s.simTime)
}

func (s *Simulation) SignalStatus(intersectionID, approach string) (models.SignalStatus, error) {
	a, err := models.ParseApproach(approach)
	if err != nil {
		return models.SignalStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Status(intersectionID, a)
}

func (s *Simulation) ControlSummary() models.ControlSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Summary()
}

// Snapshot copies the full observable state under the tick lock.
func (s *Simulation) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.Snapshot{Metrics: s.metricsLocked()}
	for _, x := range s.intersections {
		snap.Intersections = append(snap.Intersections, x.Snapshot())
	}
	return snap
}

func (s *Simulation) Metrics() models.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsLocked()
}

func (s *Simulation) metricsLocked() models.Metrics {
	passed := 0
	totalWait := 0.0
	for _, x := range s.intersections {
		passed += x.VehiclesPassed
		totalWait += x.TotalWaitTime
	}

	avgWait := 0.0
	if passed > 0 {
		avgWait = totalWait / float64(passed)
	}
	denom := s.simTime
	if denom < 1 {
		denom = 1
	}

	return models.Metrics{
		SimulationTime:          s.simTime,
		VehiclesSpawned:         s.vehiclesSpawned,
		VehiclesPassed:          passed,
		PriorityVehiclesSpawned: s.priorityVehiclesSpawned,
		TotalWaitTime:           totalWait,
		AverageWaitTime:         avgWait,
		Throughput:              float64(passed) / denom,
		Running:                 s.running,
	}
}

func (s *Simulation) queueTotalLocked() int {
	total := 0
	for _, x := range s.intersections {
		total += x.TotalQueueLength()
	}
	return total
}

// Running reports whether the ticking goroutine is active.
func (s *Simulation) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SimTime returns the current simulated time in seconds.
func (s *Simulation) SimTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.simTime
}

// RateFailures counts ticks that fell back to the uniform default rate.
func (s *Simulation) RateFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateFailures
}
