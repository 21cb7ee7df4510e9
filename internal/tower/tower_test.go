package tower

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/pkg/fifo"
	"github.com/autopeer-io/airtraffic/pkg/options"
	"github.com/autopeer-io/airtraffic/pkg/rand"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

func testConfig(t *testing.T, report *bytes.Buffer) *Config {
	t.Helper()

	sim := options.NewSimulationOptions()
	sim.Duration = time.Second
	sim.Tick = 10 * time.Millisecond
	sim.PhaseDelay = 0
	sim.StepDelay = 0
	sim.ListenerInterval = 10 * time.Millisecond
	sim.EmergencyRetryInterval = time.Millisecond
	sim.ForcedViolators = []string{"TA-1"}

	fo := options.NewFifoOptions()
	fo.Dir = t.TempDir()
	fo.ConnectAttempts = 200
	fo.ConnectInterval = 10 * time.Millisecond
	fo.ControlAttempts = 200
	fo.ControlInterval = 10 * time.Millisecond
	fo.ReadyPollInterval = 10 * time.Millisecond

	ho := options.NewHttpOptions()
	ho.Addr = ""

	return &Config{
		SimulationOptions: sim,
		FifoOptions:       fo,
		HttpOptions:       ho,
		Fleet: []fleet.AirlineSpec{{
			Name: "Test Air", MaxAircraft: 2, MaxFlights: 1,
			Aircraft: []fleet.AircraftSpec{{ID: "TA-1", Type: "Commercial"}},
		}},
		Timetable: schedule.Timetable{Extra: []schedule.FlightSpec{
			{FlightNumber: "TA101-D", Airline: "Test Air", Type: "Commercial", Direction: "East"},
			{FlightNumber: "GH101-D", Airline: "Ghost", Type: "Commercial", Direction: "West"},
		}},
		Report: report,
		Random: rand.Constant{},
	}
}

func makePipes(t *testing.T, fo *options.FifoOptions) {
	t.Helper()
	for _, name := range []string{fo.Violations, fo.Cleared, fo.Control} {
		require.NoError(t, fifo.Make(fo.Path(name), 0o666))
	}
}

// processor plays the violation processor: it signals readiness, reads one
// violation and clears it.
func processor(t *testing.T, fo *options.FifoOptions) <-chan *wire.Violation {
	t.Helper()
	got := make(chan *wire.Violation, 1)

	go func() {
		ctrl, err := os.OpenFile(fo.Path(fo.Control), os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer ctrl.Close()
		_, _ = ctrl.Write(wire.ReadyTokenBytes())
	}()

	go func() {
		defer close(got)
		in, err := os.OpenFile(fo.Path(fo.Violations), os.O_RDONLY, 0)
		if err != nil {
			return
		}
		defer in.Close()

		var v wire.Violation
		if ok, err := wire.ReadRecord(in, &v); err != nil || !ok {
			return
		}

		out, err := os.OpenFile(fo.Path(fo.Cleared), os.O_WRONLY, 0)
		if err != nil {
			return
		}
		defer out.Close()
		_ = wire.WriteRecord(out, &wire.ViolationCleared{ViolationID: v.ViolationID, FlightNumber: v.FlightNumber})
		got <- &v
	}()

	return got
}

func TestTowerRun(t *testing.T) {
	var report bytes.Buffer
	cfg := testConfig(t, &report)
	makePipes(t, cfg.FifoOptions)
	got := processor(t, cfg.FifoOptions)

	tw, err := cfg.NewTower()
	require.NoError(t, err)
	assert.NotEmpty(t, tw.RunID())
	assert.Nil(t, tw.Stats())

	require.NoError(t, tw.Run(context.Background()))
	assert.True(t, tw.Ready())

	select {
	case v := <-got:
		require.NotNil(t, v)
		assert.Equal(t, "TA101-D", v.FlightNumber)
		assert.Equal(t, "Test Air", v.Airline)
		assert.Equal(t, wire.PaymentStatusUnpaid, v.PaymentStatus)
	case <-time.After(5 * time.Second):
		t.Fatal("no violation received")
	}

	stats := tw.Stats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Flights)
	assert.Equal(t, 1, stats.ViolationsIssued)
	assert.Equal(t, 1, stats.ViolationsPerAirline["Test Air"])
	assert.Contains(t, report.String(), "Test Air")
}

func TestTowerConnectExhausted(t *testing.T) {
	cfg := testConfig(t, &bytes.Buffer{})
	cfg.FifoOptions.ConnectAttempts = 3
	cfg.FifoOptions.ConnectInterval = time.Millisecond
	cfg.FifoOptions.Cleanup = true

	tw, err := cfg.NewTower()
	require.NoError(t, err)

	// Nobody reads the violation pipe, so opening it for writing never succeeds.
	err = tw.Run(context.Background())
	require.ErrorIs(t, err, fifo.ErrRetriesExhausted)
	assert.False(t, tw.Ready())

	for _, name := range []string{"atc_to_avn.fifo", "avn_to_atc.fifo", "avn_ctrl.fifo"} {
		_, err := os.Stat(filepath.Join(cfg.FifoOptions.Dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}
}

func TestTowerStopsWhileWaitingForToken(t *testing.T) {
	cfg := testConfig(t, &bytes.Buffer{})
	fo := cfg.FifoOptions
	makePipes(t, fo)

	reader := make(chan *os.File, 1)
	go func() {
		f, err := os.OpenFile(fo.Path(fo.Violations), os.O_RDONLY, 0)
		if err == nil {
			reader <- f
		}
	}()
	t.Cleanup(func() {
		select {
		case f := <-reader:
			_ = f.Close()
		default:
		}
	})

	tw, err := cfg.NewTower()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = tw.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, tw.Ready())
	assert.Nil(t, tw.Stats())
}

func TestNewTowerRejectsBadFleet(t *testing.T) {
	cfg := testConfig(t, &bytes.Buffer{})
	cfg.Fleet = append(cfg.Fleet, fleet.AirlineSpec{
		Name: "Copy Air", MaxAircraft: 1, MaxFlights: 1,
		Aircraft: []fleet.AircraftSpec{{ID: "TA-1", Type: "Cargo"}},
	})

	_, err := cfg.NewTower()
	assert.ErrorIs(t, err, fleet.ErrDuplicateAircraft)
}
