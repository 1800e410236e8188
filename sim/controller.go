package sim

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"trafficsim/models"
)

// SignalController reconciles automatic cycling, special-vehicle preemption,
// and manual/ai commands into the single signal exposed per approach.
// Precedence: manual > ai > preemption > automatic. It shares the Simulation
// lock with everything else that mutates intersections.
type SignalController struct {
	intersections map[string]*Intersection
	statuses      map[string]map[models.Approach]*models.SignalStatus
	commands      map[string]map[models.Approach]*models.SignalCommand

	// self-healing observability counters
	TimeoutReversions    int
	IntegrityCorrections int
}

func NewSignalController(intersections map[string]*Intersection, now float64) *SignalController {
	c := &SignalController{
		intersections: intersections,
		statuses:      make(map[string]map[models.Approach]*models.SignalStatus),
		commands:      make(map[string]map[models.Approach]*models.SignalCommand),
	}
	for id := range intersections {
		c.statuses[id] = make(map[models.Approach]*models.SignalStatus)
		c.commands[id] = make(map[models.Approach]*models.SignalCommand)
		for _, a := range models.Approaches() {
			c.statuses[id][a] = &models.SignalStatus{
				IntersectionID: id,
				Approach:       a,
				Signal:         models.Red,
				Mode:           models.ModeAutomatic,
				LastUpdated:    now,
			}
		}
	}
	return c
}

func (c *SignalController) lookup(id string, a models.Approach) (*Intersection, error) {
	x, ok := c.intersections[id]
	if !ok {
		return nil, fmt.Errorf("unknown intersection %q: %w", id, models.ErrInvalidTarget)
	}
	if _, ok := c.statuses[id][a]; !ok {
		return nil, fmt.Errorf("unknown approach %q: %w", a, models.ErrInvalidTarget)
	}
	return x, nil
}

// SetSignal installs a manual or ai command for one approach and immediately
// pushes the signal down into the intersection's projection. Re-issuing the
// same command refreshes its timestamp and duration.
func (c *SignalController) SetSignal(id string, a models.Approach, signal models.SignalColor, mode models.ControlMode, duration *float64, now float64) error {
	x, err := c.lookup(id, a)
	if err != nil {
		return err
	}
	if mode != models.ModeManual && mode != models.ModeAI {
		return fmt.Errorf("mode %q cannot install an override: %w", mode, models.ErrInvalidTarget)
	}

	c.commands[id][a] = &models.SignalCommand{
		IntersectionID: id,
		Approach:       a,
		Signal:         signal,
		Mode:           mode,
		Timestamp:      now,
		Duration:       duration,
	}

	st := c.statuses[id][a]
	st.Signal = signal
	st.Mode = mode
	st.LastUpdated = now
	st.OverrideActive = true

	x.SetOverride(a, signal)

	log.Infof("signal set: %s %s -> %s (%s)", id, a, signal, mode)
	return nil
}

// SetAutomatic clears any live command for the approach and hands it back to
// the phase machine. No-op when already automatic.
func (c *SignalController) SetAutomatic(id string, a models.Approach, now float64) error {
	x, err := c.lookup(id, a)
	if err != nil {
		return err
	}

	delete(c.commands[id], a)
	x.ClearOverride(a)

	st := c.statuses[id][a]
	st.Mode = models.ModeAutomatic
	st.OverrideActive = false
	st.Signal = x.SignalColor(a)
	st.LastUpdated = now
	return nil
}

// SetAllAutomatic reverts every approach of one intersection.
func (c *SignalController) SetAllAutomatic(id string, now float64) error {
	if _, ok := c.intersections[id]; !ok {
		return fmt.Errorf("unknown intersection %q: %w", id, models.ErrInvalidTarget)
	}
	for _, a := range models.Approaches() {
		if err := c.SetAutomatic(id, a, now); err != nil {
			return err
		}
	}
	return nil
}

// Status returns a copy of the observable status for one approach.
func (c *SignalController) Status(id string, a models.Approach) (models.SignalStatus, error) {
	if _, err := c.lookup(id, a); err != nil {
		return models.SignalStatus{}, err
	}
	return *c.statuses[id][a], nil
}

// Tick runs one arbitration pass over every intersection: snapshot the live
// commands, let the phase machine advance or preempt, reapply the commands so
// automatic recomputation cannot clobber them, expire timed-out commands, and
// verify that each surviving command still matches the observable status.
func (c *SignalController) Tick(now float64) {
	for id, x := range c.intersections {
		pinned := make(map[models.Approach]*models.SignalCommand, len(c.commands[id]))
		for a, cmd := range c.commands[id] {
			pinned[a] = cmd
		}

		x.UpdatePhase(now)

		for a, cmd := range pinned {
			x.SetOverride(a, cmd.Signal)
		}

		// automatic approaches track the machine's projection
		for _, a := range models.Approaches() {
			st := c.statuses[id][a]
			if st.Mode != models.ModeAutomatic {
				continue
			}
			if sig := x.SignalColor(a); sig != st.Signal {
				st.Signal = sig
				st.LastUpdated = now
			}
		}

		for a, cmd := range c.commands[id] {
			if !cmd.Expired(now) {
				continue
			}
			if err := c.SetAutomatic(id, a, now); err != nil {
				continue
			}
			c.TimeoutReversions++
			log.Infof("override timeout: %s %s reverted to automatic", id, a)
		}

		for a, cmd := range c.commands[id] {
			st := c.statuses[id][a]
			if st.Signal == cmd.Signal {
				continue
			}
			st.Signal = cmd.Signal
			st.Mode = cmd.Mode
			st.LastUpdated = now
			st.OverrideActive = true
			x.SetOverride(a, cmd.Signal)
			c.IntegrityCorrections++
			log.Warnf("signal integrity: %s %s expected %s, reapplied", id, a, cmd.Signal)
		}
	}
}

// Summary counts signals by control mode. Read-only.
func (c *SignalController) Summary() models.ControlSummary {
	var s models.ControlSummary
	for _, approaches := range c.statuses {
		for _, st := range approaches {
			s.TotalSignals++
			switch st.Mode {
			case models.ModeManual:
				s.ManualSignals++
			case models.ModeAI:
				s.AISignals++
			default:
				s.AutomaticSignals++
			}
		}
	}
	return s
}

// Reset drops every command and returns all statuses to automatic, tracking
// the freshly reset intersections.
func (c *SignalController) Reset(now float64) {
	for id, x := range c.intersections {
		c.commands[id] = make(map[models.Approach]*models.SignalCommand)
		for _, a := range models.Approaches() {
			st := c.statuses[id][a]
			st.Signal = x.SignalColor(a)
			st.Mode = models.ModeAutomatic
			st.LastUpdated = now
			st.OverrideActive = false
		}
	}
	c.TimeoutReversions = 0
	c.IntegrityCorrections = 0
}
