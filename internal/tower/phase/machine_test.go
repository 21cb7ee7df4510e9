package phase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
	"github.com/autopeer-io/airtraffic/pkg/rand"
)

// lowest always draws 0: every Chance fires and every Range yields its lower bound.
type lowest struct{}

func (lowest) Intn(int) int { return 0 }

func newAircraft(t *testing.T, id string, typ v1alpha1.FlightType) *fleet.Aircraft {
	t.Helper()
	r := fleet.NewRegistry(nil)
	_, err := r.AddAirline("A", 1, 1)
	require.NoError(t, err)
	a, err := r.Register(id, typ, "A")
	require.NoError(t, err)
	return a
}

func TestForcedTaxiViolation(t *testing.T) {
	a := newAircraft(t, "X-1", v1alpha1.FlightTypeCommercial)
	m := New(a, false, Options{Random: rand.Constant{}, ForcedViolators: []string{"X-1"}})

	out, err := m.Depart(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.False(t, out.Faulted)
	assert.Equal(t, v1alpha1.PhaseCruising, m.Phase())

	require.NotNil(t, out.Violation)
	assert.Equal(t, v1alpha1.PhaseTaxiing, out.Violation.Phase)
	assert.Equal(t, 30.0, out.Violation.PermissibleSpeed)
	assert.Equal(t, 630.0, out.Violation.Speed)
	assert.Contains(t, out.Violation.Reason, "speed violation")
	assert.True(t, a.Snapshot().HasActiveViolation)
}

func TestArrivalCompletes(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}, ForcedViolators: []string{"PK-101"}})

	out, err := m.Arrive(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Nil(t, out.Violation)

	s := a.Snapshot()
	assert.Equal(t, v1alpha1.PhaseAtGate, s.Phase)
	assert.False(t, s.InAir)
	assert.Zero(t, s.X)
	assert.Zero(t, s.Speed)
	assert.Equal(t, v1alpha1.FlightTypeCommercial, s.Type)
}

func TestLandingEntryKeepsApproachSpeedUnchecked(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}})

	ctx := context.Background()
	for _, ev := range []string{EventHold, EventApproach, EventLand} {
		require.NoError(t, m.Event(ctx, ev))
	}

	s := a.Snapshot()
	assert.Equal(t, v1alpha1.PhaseLanding, s.Phase)
	assert.Equal(t, 290.0, s.Speed, "approach speed carried into landing")
	assert.Equal(t, 500.0, s.Altitude)
	assert.False(t, s.HasActiveViolation)
	assert.Nil(t, m.Violation())

	require.NoError(t, m.landingRoll(ctx))
	assert.Nil(t, m.Violation())
}

func TestGroundFaultAbortsCycle(t *testing.T) {
	a := newAircraft(t, "AB-201", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: lowest{}})

	out, err := m.Arrive(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.True(t, out.Faulted)
	assert.Equal(t, v1alpha1.PhaseTaxiing, m.Phase())

	s := a.Snapshot()
	assert.True(t, s.HasFault)
	assert.Equal(t, v1alpha1.FlightTypeEmergency, s.Type, "in-air transition promoted the aircraft")

	// Holding at 400 km/h perturbed by -200 breaks the holding envelope first.
	require.NotNil(t, out.Violation)
	assert.Equal(t, v1alpha1.PhaseHolding, out.Violation.Phase)
	assert.Equal(t, 600.0, out.Violation.PermissibleSpeed)

	err = m.Event(context.Background(), EventPark)
	assert.ErrorIs(t, err, ErrFaulted)
}

func TestDepartureGroundFault(t *testing.T) {
	a := newAircraft(t, "FX-301", v1alpha1.FlightTypeCargo)
	m := New(a, false, Options{Random: lowest{}})

	out, err := m.Depart(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Faulted)
	assert.False(t, out.Completed)
	assert.Equal(t, v1alpha1.PhaseTaxiing, m.Phase())
}

func TestArrivalCannotTakeOff(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}})
	ctx := context.Background()

	for _, ev := range []string{EventHold, EventApproach, EventLand, EventTaxi} {
		require.NoError(t, m.Event(ctx, ev))
	}
	err := m.Event(ctx, EventTakeoff)
	assert.ErrorIs(t, err, ErrArrivalTakeoff)
	assert.Equal(t, v1alpha1.PhaseTaxiing, m.Phase())

	_, err = m.Depart(ctx)
	assert.Error(t, err)
}

func TestInvalidTransition(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}})
	assert.Error(t, m.Event(context.Background(), EventLand), "cannot land from waiting")
	assert.Equal(t, v1alpha1.PhaseWaiting, m.Phase())
}

func TestCheckViolationIsIdempotent(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}})

	a.Update(func(s *fleet.State) {
		s.Phase = v1alpha1.PhaseCruising
		s.InAir = true
		s.Speed = 950
		s.Altitude = 11000
	})
	assert.True(t, m.CheckViolation())
	first := m.Violation()
	require.NotNil(t, first)
	assert.Equal(t, 950.0, first.Speed)
	assert.Equal(t, 900.0, first.PermissibleSpeed)

	a.Update(func(s *fleet.State) { s.Altitude = 15000 })
	assert.True(t, m.CheckViolation())
	assert.Equal(t, first, m.Violation(), "the first snapshot is kept")
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		state  fleet.State
		reason string
	}{
		{"legal holding", fleet.State{Phase: v1alpha1.PhaseHolding, Speed: 500, Altitude: 10000, InAir: true}, ""},
		{"slow holding", fleet.State{Phase: v1alpha1.PhaseHolding, Speed: 300, InAir: true}, "speed violation"},
		{"fast taxi", fleet.State{Phase: v1alpha1.PhaseTaxiing, Speed: 31}, "speed violation"},
		{"gate creep", fleet.State{Phase: v1alpha1.PhaseAtGate, Speed: 10}, ""},
		{"high climb", fleet.State{Phase: v1alpha1.PhaseClimbing, Speed: 300, Altitude: 9500, InAir: true}, "altitude violation"},
		{"high cruise", fleet.State{Phase: v1alpha1.PhaseCruising, Speed: 850, Altitude: 12001, InAir: true}, "altitude violation"},
		{"low approach", fleet.State{Phase: v1alpha1.PhaseApproaching, Speed: 250, Altitude: 900, InAir: true}, "altitude violation"},
		{"landing floor", fleet.State{Phase: v1alpha1.PhaseLanding, Speed: 80}, ""},
		{"outside airspace", fleet.State{Phase: v1alpha1.PhaseHolding, Speed: 500, X: 5001, InAir: true}, "position violation"},
		{"ground ignores airspace", fleet.State{Phase: v1alpha1.PhaseTaxiing, Speed: 20, X: 9000}, ""},
		{"waiting", fleet.State{Phase: v1alpha1.PhaseWaiting, Speed: 999}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(tt.state)
			if tt.reason == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.reason)
		})
	}
}

func TestPermissibleSpeed(t *testing.T) {
	assert.Equal(t, 30.0, PermissibleSpeed(v1alpha1.PhaseTaxiing))
	assert.Equal(t, 240.0, PermissibleSpeed(v1alpha1.PhaseLanding))
	assert.Equal(t, 10.0, PermissibleSpeed(v1alpha1.PhaseAtGate))
	assert.Equal(t, 463.0, PermissibleSpeed(v1alpha1.PhaseClimbing))
}

func TestCancelledCycle(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	m := New(a, true, Options{Random: rand.Constant{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := m.Arrive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, out.Completed)
}

func TestPacingUsesClock(t *testing.T) {
	a := newAircraft(t, "PK-103", v1alpha1.FlightTypeCommercial)
	clk := clocktesting.NewFakeClock(time.Now())
	m := New(a, false, Options{Random: rand.Constant{}, Clock: clk, PhaseDelay: time.Second, StepDelay: time.Second})

	done := make(chan Outcome)
	go func() {
		out, _ := m.Depart(context.Background())
		done <- out
	}()

	deadline := time.After(10 * time.Second)
	for {
		select {
		case out := <-done:
			assert.True(t, out.Completed)
			return
		case <-deadline:
			t.Fatal("departure did not finish")
		default:
			if clk.HasWaiters() {
				clk.Step(time.Second)
			}
			time.Sleep(time.Millisecond)
		}
	}
}
