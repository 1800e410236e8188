package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseApproach(t *testing.T) {
	for _, s := range []string{"north", "south", "east", "west"} {
		a, err := ParseApproach(s)
		require.NoError(t, err)
		assert.Equal(t, Approach(s), a)
	}

	_, err := ParseApproach("northeast")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = ParseApproach("North")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestParseSignalColor(t *testing.T) {
	c, err := ParseSignalColor("green")
	require.NoError(t, err)
	assert.Equal(t, Green, c)

	_, err = ParseSignalColor("blue")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestParseControlMode(t *testing.T) {
	m, err := ParseControlMode("ai")
	require.NoError(t, err)
	assert.Equal(t, ModeAI, m)

	_, err = ParseControlMode("remote")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestPhaseCycle(t *testing.T) {
	assert.Equal(t, PhaseEastWestGreen, PhaseNorthSouthGreen.Next())
	assert.Equal(t, PhaseLeftTurns, PhaseEastWestGreen.Next())
	assert.Equal(t, PhaseAllRed, PhaseLeftTurns.Next())
	assert.Equal(t, PhaseNorthSouthGreen, PhaseAllRed.Next())
}

func TestVehicleMove(t *testing.T) {
	v := &Vehicle{ID: "v1", Approach: North, Kind: VehicleNormal, Speed: 0.4}

	assert.False(t, v.Move(false, 1.0))
	assert.Zero(t, v.Position)

	assert.False(t, v.Move(true, 1.0))
	assert.InDelta(t, 0.4, v.Position, 1e-9)
	assert.False(t, v.HasPassed)

	assert.False(t, v.Move(true, 1.0))
	assert.True(t, v.Move(true, 1.0))
	assert.True(t, v.HasPassed)
}

func TestVehicleWaitTime(t *testing.T) {
	v := &Vehicle{ID: "v1", ArrivalTime: 3.5}
	v.UpdateWaitTime(10)
	assert.InDelta(t, 6.5, v.WaitTime, 1e-9)
}

func TestVehiclePriority(t *testing.T) {
	assert.False(t, (&Vehicle{Kind: VehicleNormal}).Priority())
	assert.True(t, (&Vehicle{Kind: VehiclePriority}).Priority())
}

func TestSignalCommandExpiry(t *testing.T) {
	open := &SignalCommand{Timestamp: 0}
	assert.False(t, open.Expired(1e9))

	d := 10.0
	timed := &SignalCommand{Timestamp: 5, Duration: &d}
	assert.False(t, timed.Expired(14.9))
	assert.True(t, timed.Expired(15))
	assert.True(t, timed.Expired(20))
}
