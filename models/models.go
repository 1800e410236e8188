package models

import (
	"errors"
	"fmt"
)

// ErrInvalidTarget marks requests naming an unknown intersection or approach,
// or carrying a malformed signal/mode value. Callers check with errors.Is.
var ErrInvalidTarget = errors.New("invalid target")

type Approach string

const (
	North Approach = "north"
	South Approach = "south"
	East  Approach = "east"
	West  Approach = "west"
)

// Approaches returns the four compass approaches in fixed order.
func Approaches() []Approach {
	return []Approach{North, South, East, West}
}

func ParseApproach(s string) (Approach, error) {
	switch Approach(s) {
	case North, South, East, West:
		return Approach(s), nil
	}
	return "", fmt.Errorf("unknown approach %q: %w", s, ErrInvalidTarget)
}

type SignalColor string

const (
	Red    SignalColor = "red"
	Yellow SignalColor = "yellow"
	Green  SignalColor = "green"
)

func ParseSignalColor(s string) (SignalColor, error) {
	switch SignalColor(s) {
	case Red, Yellow, Green:
		return SignalColor(s), nil
	}
	return "", fmt.Errorf("unknown signal %q: %w", s, ErrInvalidTarget)
}

type ControlMode string

const (
	ModeAutomatic ControlMode = "automatic"
	ModeManual    ControlMode = "manual"
	ModeAI        ControlMode = "ai"
)

func ParseControlMode(s string) (ControlMode, error) {
	switch ControlMode(s) {
	case ModeAutomatic, ModeManual, ModeAI:
		return ControlMode(s), nil
	}
	return "", fmt.Errorf("unknown control mode %q: %w", s, ErrInvalidTarget)
}

type VehicleKind string

const (
	VehicleNormal   VehicleKind = "normal"
	VehiclePriority VehicleKind = "priority"
)

// Phase is one interval of the signal cycle. The order is total and cyclic.
type Phase string

const (
	PhaseNorthSouthGreen Phase = "north_south_green"
	PhaseEastWestGreen   Phase = "east_west_green"
	PhaseLeftTurns       Phase = "left_turns"
	PhaseAllRed          Phase = "all_red"
)

func (p Phase) Next() Phase {
	switch p {
	case PhaseNorthSouthGreen:
		return PhaseEastWestGreen
	case PhaseEastWestGreen:
		return PhaseLeftTurns
	case PhaseLeftTurns:
		return PhaseAllRed
	default:
		return PhaseNorthSouthGreen
	}
}

// Vehicle is one unit of demand on a single approach. Position is a scalar
// crossing progress in [0,1); the vehicle leaves its queue when it reaches 1.
type Vehicle struct {
	ID          string      `json:"id"`
	Approach    Approach    `json:"approach"`
	Kind        VehicleKind `json:"kind"`
	Speed       float64     `json:"-"`
	ArrivalTime float64     `json:"-"`
	WaitTime    float64     `json:"wait_time"`
	Position    float64     `json:"-"`
	HasPassed   bool        `json:"-"`
}

func (v *Vehicle) Priority() bool {
	return v.Kind == VehiclePriority
}

func (v *Vehicle) UpdateWaitTime(now float64) {
	v.WaitTime = now - v.ArrivalTime
}

// Move advances crossing progress by Speed*dt when movement is permitted and
// reports whether the vehicle has passed through the intersection.
func (v *Vehicle) Move(canMove bool, dt float64) bool {
	if !canMove {
		return false
	}
	v.Position += v.Speed * dt
	if v.Position >= 1.0 {
		v.HasPassed = true
		return true
	}
	return false
}

// SignalCommand pins one approach's signal outside normal cycling. At most one
// live command exists per (intersection, approach); a new one replaces it.
type SignalCommand struct {
	IntersectionID string      `json:"intersection_id"`
	Approach       Approach    `json:"approach"`
	Signal         SignalColor `json:"signal"`
	Mode           ControlMode `json:"mode"`
	Timestamp      float64     `json:"timestamp"`
	Duration       *float64    `json:"duration,omitempty"`
}

func (c *SignalCommand) Expired(now float64) bool {
	return c.Duration != nil && now-c.Timestamp >= *c.Duration
}

// SignalStatus is the externally observable truth for one approach. It always
// matches the live command when one exists, and the phase machine's projection
// otherwise.
type SignalStatus struct {
	IntersectionID string      `json:"intersection_id"`
	Approach       Approach    `json:"approach"`
	Signal         SignalColor `json:"signal"`
	Mode           ControlMode `json:"mode"`
	LastUpdated    float64     `json:"last_updated"`
	OverrideActive bool        `json:"override_active"`
}
