package fleet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/airtraffic/pkg/apis/atc/v1alpha1"
)

func TestAirlineCounters(t *testing.T) {
	a := NewAirline("A", 1, 2)

	require.NoError(t, a.AddAircraft())
	assert.ErrorIs(t, a.AddAircraft(), ErrAirlineFull)

	assert.True(t, a.AdmitFlight())
	assert.True(t, a.AdmitFlight())
	assert.False(t, a.AdmitFlight())

	a.CompleteFlight()
	a.CompleteFlight()
	a.CompleteFlight()
	n, flights := a.Counts()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, flights, "counters never go below zero")
}

func TestAdmitFlightConcurrent(t *testing.T) {
	a := NewAirline("A", 1, 3)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.AdmitFlight() {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, admitted)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.AddAirline("AirBlue", 4, 4)
	require.NoError(t, err)
	_, err = r.AddAirline("AirBlue", 4, 4)
	assert.ErrorIs(t, err, ErrDuplicateAirline)

	_, err = r.Register("AB-203", v1alpha1.FlightTypeCommercial, "AirBlue")
	require.NoError(t, err)
	_, err = r.Register("AB-203", v1alpha1.FlightTypeEmergency, "AirBlue")
	assert.ErrorIs(t, err, ErrDuplicateAircraft)

	_, err = r.Register("ZZ-1", v1alpha1.FlightTypeCargo, "Nobody")
	assert.ErrorIs(t, err, ErrUnknownAirline)
}

func TestRegisterRespectsCapacity(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.AddAirline("FedEx", 1, 1)
	require.NoError(t, err)

	_, err = r.Register("FX-301", v1alpha1.FlightTypeCargo, "FedEx")
	require.NoError(t, err)
	_, err = r.Register("FX-302", v1alpha1.FlightTypeEmergency, "FedEx")
	assert.ErrorIs(t, err, ErrAirlineFull)
}

func TestDefaultRosterLoads(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Load(DefaultRoster()))
	assert.Len(t, r.Aircraft(), 16)
	assert.Equal(t, []string{"PIA", "AirBlue", "FedEx", "Pakistan Airforce", "Blue Dart", "AghaKhan Air"}, r.Airlines())

	for _, st := range r.Status() {
		assert.LessOrEqual(t, st.Aircraft, st.MaxAircraft, st.Name)
	}
}

func TestLoadUnknownType(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Load([]AirlineSpec{{Name: "X", MaxAircraft: 1, MaxFlights: 1, Aircraft: []AircraftSpec{{ID: "X-1", Type: "Glider"}}}})
	assert.Error(t, err)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(nil)
	require.NoError(t, r.Load([]AirlineSpec{
		{Name: "A", MaxAircraft: 4, MaxFlights: 4, Aircraft: []AircraftSpec{
			{ID: "A-1", Type: "Commercial"},
			{ID: "A-2", Type: "Commercial"},
			{ID: "A-3", Type: "Emergency"},
		}},
		{Name: "B", MaxAircraft: 2, MaxFlights: 1, Aircraft: []AircraftSpec{
			{ID: "B-1", Type: "Commercial"},
		}},
	}))
	return r
}

func TestAcquireRoundRobin(t *testing.T) {
	r := newTestRegistry(t)

	first := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, first)
	assert.Equal(t, "A-1", first.ID)
	assert.False(t, first.Snapshot().Available)

	r.Release(first)
	second := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, second)
	assert.Equal(t, "A-2", second.ID, "cursor advances past the last assignment")

	third := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, third)
	assert.Equal(t, "A-1", third.ID)

	assert.Nil(t, r.Acquire(v1alpha1.FlightTypeCommercial, "A"), "both commercial aircraft are busy")
	assert.Nil(t, r.Acquire(v1alpha1.FlightTypeCargo, "A"))

	b := r.Acquire(v1alpha1.FlightTypeCommercial, "B")
	require.NotNil(t, b)
	assert.Equal(t, "B", r.AirlineOf(b).Name)
}

func TestAcquireSkipsFaultedAndViolating(t *testing.T) {
	r := newTestRegistry(t)
	all := r.Aircraft()

	all[0].Update(func(s *State) { s.HasFault = true })
	all[1].MarkViolation()
	assert.Nil(t, r.Acquire(v1alpha1.FlightTypeCommercial, "A"))

	all[0].ResetForNextFlight()
	a := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, a)
	assert.Equal(t, "A-1", a.ID)
}

func TestEmergencyFallsBackToCommercial(t *testing.T) {
	r := newTestRegistry(t)

	em := r.Acquire(v1alpha1.FlightTypeEmergency, "A")
	require.NotNil(t, em)
	assert.Equal(t, "A-3", em.ID)

	fallback := r.Acquire(v1alpha1.FlightTypeEmergency, "A")
	require.NotNil(t, fallback)
	assert.Equal(t, v1alpha1.FlightTypeCommercial, fallback.Type())

	assert.Nil(t, r.Acquire(v1alpha1.FlightTypeEmergency, "B-other"))
}

func TestAcquireConcurrentExclusive(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	got := make(chan *Aircraft, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a := r.Acquire(v1alpha1.FlightTypeCommercial, "A"); a != nil {
				got <- a
			}
		}()
	}
	wg.Wait()
	close(got)

	seen := map[string]bool{}
	for a := range got {
		assert.False(t, seen[a.ID], "aircraft %s assigned twice", a.ID)
		seen[a.ID] = true
	}
	assert.Len(t, seen, 2)
}

func TestResetForNextFlight(t *testing.T) {
	r := newTestRegistry(t)
	a := r.Acquire(v1alpha1.FlightTypeCommercial, "B")
	require.NotNil(t, a)

	a.Update(func(s *State) {
		s.Type = v1alpha1.FlightTypeEmergency
		s.Phase = v1alpha1.PhaseCruising
		s.Speed, s.Altitude, s.X, s.Y = 850, 11000, 300, -200
		s.InAir = true
	})
	assert.True(t, a.MarkViolation())
	assert.False(t, a.MarkViolation(), "violation is only flagged once")

	st := r.Status()
	assert.Equal(t, 1, st[1].InAir)

	a.ResetForNextFlight()
	s := a.Snapshot()
	assert.Equal(t, "B-1", s.ID)
	assert.Equal(t, "B", s.Airline)
	assert.Equal(t, v1alpha1.FlightTypeCommercial, s.Type)
	assert.Equal(t, v1alpha1.PhaseWaiting, s.Phase)
	assert.Zero(t, s.Speed)
	assert.Zero(t, s.X)
	assert.False(t, s.HasActiveViolation)
	assert.False(t, s.InAir)
	assert.True(t, s.Available)
}

func TestDeregisterFreesSlot(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.AddAirline("FedEx", 1, 1)
	require.NoError(t, err)
	_, err = r.Register("FX-301", v1alpha1.FlightTypeCargo, "FedEx")
	require.NoError(t, err)

	require.NoError(t, r.Deregister("FX-301"))
	assert.Empty(t, r.Aircraft())
	assert.Equal(t, 0, r.Status()[0].Aircraft)
	assert.Nil(t, r.Acquire(v1alpha1.FlightTypeCargo, "FedEx"))

	// The id and the capacity are free again.
	_, err = r.Register("FX-301", v1alpha1.FlightTypeEmergency, "FedEx")
	require.NoError(t, err)

	assert.ErrorIs(t, r.Deregister("FX-999"), ErrUnknownAircraft)
}

func TestDeregisterRefusesAssignedAircraft(t *testing.T) {
	r := newTestRegistry(t)

	a := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, a)
	assert.ErrorIs(t, r.Deregister(a.ID), ErrAircraftInUse)
	assert.Len(t, r.Aircraft(), 4)

	r.Release(a)
	require.NoError(t, r.Deregister(a.ID))
	assert.Len(t, r.Aircraft(), 3)
}

func TestDeregisterKeepsRoundRobinOrder(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Load([]AirlineSpec{{Name: "A", MaxAircraft: 3, MaxFlights: 3, Aircraft: []AircraftSpec{
		{ID: "C-1", Type: "Commercial"},
		{ID: "C-2", Type: "Commercial"},
		{ID: "C-3", Type: "Commercial"},
	}}}))

	for _, want := range []string{"C-1", "C-2"} {
		a := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
		require.NotNil(t, a)
		require.Equal(t, want, a.ID)
		r.Release(a)
	}
	require.NoError(t, r.Deregister("C-1"))

	next := r.Acquire(v1alpha1.FlightTypeCommercial, "A")
	require.NotNil(t, next)
	assert.Equal(t, "C-3", next.ID, "cursor still points past the last assignment")
}
