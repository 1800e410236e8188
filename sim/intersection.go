package sim

import (
	"trafficsim/models"
)

// DefaultPhaseDurations is the standard cycle: 20s + 20s + 15s + 5s = 60s.
func DefaultPhaseDurations() map[models.Phase]float64 {
	return map[models.Phase]float64{
		models.PhaseNorthSouthGreen: 20,
		models.PhaseEastWestGreen:   20,
		models.PhaseLeftTurns:       15,
		models.PhaseAllRed:          5,
	}
}

// Intersection is one signalized intersection: the phase state machine, the
// four approach queues, and the approach-level signal overrides pushed down by
// the arbitration layer. It is not safe for concurrent use; the Simulation
// lock guards it.
type Intersection struct {
	ID             string
	Durations      map[models.Phase]float64
	CurrentPhase   models.Phase
	PhaseStart     float64
	PhaseElapsed   float64
	PreemptActive  bool
	PreemptPhase   models.Phase
	Queues         map[models.Approach][]*models.Vehicle
	VehiclesPassed int
	TotalWaitTime  float64

	overrides map[models.Approach]models.SignalColor
}

func NewIntersection(id string) *Intersection {
	x := &Intersection{
		ID:           id,
		Durations:    DefaultPhaseDurations(),
		CurrentPhase: models.PhaseNorthSouthGreen,
		Queues:       make(map[models.Approach][]*models.Vehicle),
		overrides:    make(map[models.Approach]models.SignalColor),
	}
	for _, a := range models.Approaches() {
		x.Queues[a] = nil
	}
	return x
}

func (x *Intersection) AddVehicle(v *models.Vehicle) {
	x.Queues[v.Approach] = append(x.Queues[v.Approach], v)
}

func (x *Intersection) QueueLength(a models.Approach) int {
	return len(x.Queues[a])
}

func (x *Intersection) TotalQueueLength() int {
	total := 0
	for _, q := range x.Queues {
		total += len(q)
	}
	return total
}

// PriorityVehicles returns all queued priority vehicles, in approach order.
func (x *Intersection) PriorityVehicles() []*models.Vehicle {
	var out []*models.Vehicle
	for _, a := range models.Approaches() {
		for _, v := range x.Queues[a] {
			if v.Priority() {
				out = append(out, v)
			}
		}
	}
	return out
}

// preemptionPhase picks the phase granting right-of-way to the earliest
// arrived priority vehicle across all queues. Only one forced phase can be
// active, so later arrivals on the losing axis keep waiting.
func (x *Intersection) preemptionPhase() (models.Phase, bool) {
	var earliest *models.Vehicle
	for _, a := range models.Approaches() {
		for _, v := range x.Queues[a] {
			if !v.Priority() {
				continue
			}
			if earliest == nil || v.ArrivalTime < earliest.ArrivalTime {
				earliest = v
			}
		}
	}
	if earliest == nil {
		return "", false
	}
	switch earliest.Approach {
	case models.North, models.South:
		return models.PhaseNorthSouthGreen, true
	default:
		return models.PhaseEastWestGreen, true
	}
}

// UpdatePhase runs one step of the phase state machine. Preemption is checked
// before normal progression; while it is active, duration-based advancement is
// suspended until no priority vehicle remains.
func (x *Intersection) UpdatePhase(now float64) {
	x.PhaseElapsed = now - x.PhaseStart

	required, pending := x.preemptionPhase()

	switch {
	case pending && !x.PreemptActive:
		x.PreemptActive = true
		x.PreemptPhase = required
		x.CurrentPhase = required
		x.PhaseStart = now
		x.PhaseElapsed = 0
	case x.PreemptActive:
		if !pending {
			x.PreemptActive = false
			x.PreemptPhase = ""
			x.PhaseStart = now
			x.PhaseElapsed = 0
		}
	default:
		if x.PhaseElapsed >= x.Durations[x.CurrentPhase] {
			x.CurrentPhase = x.CurrentPhase.Next()
			x.PhaseStart = now
			x.PhaseElapsed = 0
		}
	}
}

// phaseColor projects the current phase onto one approach. LEFT_TURNS grants
// green everywhere, ALL_RED red everywhere.
func (x *Intersection) phaseColor(a models.Approach) models.SignalColor {
	switch x.CurrentPhase {
	case models.PhaseNorthSouthGreen:
		if a == models.North || a == models.South {
			return models.Green
		}
		return models.Red
	case models.PhaseEastWestGreen:
		if a == models.East || a == models.West {
			return models.Green
		}
		return models.Red
	case models.PhaseLeftTurns:
		return models.Green
	default:
		return models.Red
	}
}

// SignalColor returns the effective signal for an approach: a live override
// shadows the phase projection.
func (x *Intersection) SignalColor(a models.Approach) models.SignalColor {
	if c, ok := x.overrides[a]; ok {
		return c
	}
	return x.phaseColor(a)
}

func (x *Intersection) CanMove(a models.Approach) bool {
	return x.SignalColor(a) == models.Green
}

// SetOverride pins one approach's signal independent of the phase.
func (x *Intersection) SetOverride(a models.Approach, c models.SignalColor) {
	x.overrides[a] = c
}

func (x *Intersection) ClearOverride(a models.Approach) {
	delete(x.overrides, a)
}

// UpdateVehicles refreshes wait times and moves vehicles whose approach shows
// green. Queue order is preserved; this is a counting model, so a blocked
// vehicle holds nobody behind it back.
func (x *Intersection) UpdateVehicles(now, dt float64) {
	for _, a := range models.Approaches() {
		queue := x.Queues[a]
		if len(queue) == 0 {
			continue
		}

		for _, v := range queue {
			v.UpdateWaitTime(now)
		}

		canMove := x.CanMove(a)
		remaining := queue[:0]
		for _, v := range queue {
			if v.Move(canMove, dt) {
				x.VehiclesPassed++
				x.TotalWaitTime += v.WaitTime
				continue
			}
			remaining = append(remaining, v)
		}
		x.Queues[a] = remaining
	}
}

// AverageWaitTime averages over vehicles currently queued, not passed ones.
func (x *Intersection) AverageWaitTime() float64 {
	total := 0.0
	count := 0
	for _, q := range x.Queues {
		for _, v := range q {
			total += v.WaitTime
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// PhaseProgress reports elapsed/duration for the current phase, clamped to 1.
func (x *Intersection) PhaseProgress() float64 {
	d := x.Durations[x.CurrentPhase]
	if d <= 0 {
		return 1
	}
	p := x.PhaseElapsed / d
	if p > 1 {
		return 1
	}
	return p
}

// Reset returns the intersection to its initial state with the phase timer
// anchored at now.
func (x *Intersection) Reset(now float64) {
	x.CurrentPhase = models.PhaseNorthSouthGreen
	x.PhaseStart = now
	x.PhaseElapsed = 0
	x.PreemptActive = false
	x.PreemptPhase = ""
	x.VehiclesPassed = 0
	x.TotalWaitTime = 0
	for _, a := range models.Approaches() {
		x.Queues[a] = nil
	}
	x.overrides = make(map[models.Approach]models.SignalColor)
}

// Snapshot copies the externally visible state of this intersection.
func (x *Intersection) Snapshot() models.IntersectionSnapshot {
	snap := models.IntersectionSnapshot{
		ID:               x.ID,
		CurrentPhase:     x.CurrentPhase,
		PhaseProgress:    x.PhaseProgress(),
		OverrideActive:   x.PreemptActive,
		QueueLengths:     make(map[models.Approach]int, 4),
		TotalQueueLength: x.TotalQueueLength(),
		AverageWaitTime:  x.AverageWaitTime(),
		VehiclesPassed:   x.VehiclesPassed,
		SignalColors:     make(map[models.Approach]models.SignalColor, 4),
	}
	for _, a := range models.Approaches() {
		snap.QueueLengths[a] = len(x.Queues[a])
		snap.SignalColors[a] = x.SignalColor(a)
	}
	for _, v := range x.PriorityVehicles() {
		snap.PriorityVehicles = append(snap.PriorityVehicles, models.PriorityVehicleInfo{
			ID:       v.ID,
			Approach: v.Approach,
			WaitTime: v.WaitTime,
		})
	}
	return snap
}
