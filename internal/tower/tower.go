// Package tower wires the control authority together: it connects the
// named pipes shared with the violation processor, seeds the timetable,
// waits for the readiness handshake and runs the dispatch coordinator.
package tower

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/airtraffic/internal/tower/dispatch"
	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/notifier"
	"github.com/autopeer-io/airtraffic/internal/tower/phase"
	"github.com/autopeer-io/airtraffic/internal/tower/runway"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/internal/tower/server"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
	"github.com/autopeer-io/airtraffic/pkg/fifo"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/rand"
	"github.com/autopeer-io/airtraffic/pkg/wire"
)

const fifoPerm = 0o666

// Tower is one run of the control authority.
type Tower struct {
	cfg    *Config
	runID  string
	logger log.Logger
	clock  clock.WithTicker
	random rand.Source
	report io.Writer

	fleet     *fleet.Registry
	runways   *runway.Allocator
	scheduler *schedule.Scheduler
	tracker   *violation.Tracker

	ready atomic.Bool
	stats atomic.Pointer[dispatch.Stats]
}

// RunID identifies the run in every log line.
func (t *Tower) RunID() string { return t.runID }

// Ready reports whether the readiness token has been received.
func (t *Tower) Ready() bool { return t.ready.Load() }

// Stats returns the final statistics, or nil before the run has finished.
func (t *Tower) Stats() *dispatch.Stats { return t.stats.Load() }

// Run executes the simulation alongside the auxiliary servers. It returns
// once the simulation is over, or earlier if a server fails or ctx is done.
func (t *Tower) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	servers := server.NewManager(&server.Config{
		HttpOptions: t.cfg.HttpOptions,
		Ready:       t.Ready,
		Logger:      t.logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return servers.Start(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return t.simulate(ctx)
	})
	return g.Wait()
}

type channels struct {
	violations *fifo.Endpoint
	cleared    *fifo.Endpoint
	control    *fifo.Endpoint
}

func (c *channels) all() []*fifo.Endpoint {
	return []*fifo.Endpoint{c.cleared, c.violations, c.control}
}

func (t *Tower) newChannels() *channels {
	o := t.cfg.FifoOptions
	endpoint := func(name string, mode fifo.Mode, attempts int, interval time.Duration) *fifo.Endpoint {
		return fifo.NewEndpoint(fifo.Config{
			Path:     o.Path(name),
			Mode:     mode,
			Attempts: attempts,
			Interval: interval,
		}, t.logger.WithName("fifo"))
	}
	return &channels{
		violations: endpoint(o.Violations, fifo.ModeWrite, o.ConnectAttempts, o.ConnectInterval),
		cleared:    endpoint(o.Cleared, fifo.ModeRead, o.ConnectAttempts, o.ConnectInterval),
		control:    endpoint(o.Control, fifo.ModeRead, o.ControlAttempts, o.ControlInterval),
	}
}

// makeChannels creates the pipes that do not exist yet.
func (t *Tower) makeChannels(ch *channels) error {
	for _, e := range ch.all() {
		if err := fifo.Make(e.Path(), fifoPerm); err != nil {
			return err
		}
	}
	return nil
}

// closeChannels closes every endpoint and removes the pipes when cleanup is set.
func (t *Tower) closeChannels(ch *channels) {
	var paths []string
	for _, e := range ch.all() {
		if err := e.Close(); err != nil {
			t.logger.Error(err, "Failed to close channel", "fifo", e.Path())
		}
		paths = append(paths, e.Path())
	}
	if t.cfg.FifoOptions.Cleanup {
		if err := fifo.Remove(paths...); err != nil {
			t.logger.Error(err, "Failed to remove channels")
		}
	}
}

func (t *Tower) simulate(ctx context.Context) error {
	sim := t.cfg.SimulationOptions
	ch := t.newChannels()

	if t.cfg.FifoOptions.Create {
		if err := t.makeChannels(ch); err != nil {
			return fmt.Errorf("failed to create channels: %w", err)
		}
	}
	defer t.closeChannels(ch)

	coordinator := dispatch.New(dispatch.Config{
		Fleet:                  t.fleet,
		Runways:                t.runways,
		Scheduler:              t.scheduler,
		Tracker:                t.tracker,
		Sink:                   notifier.NewFifoSink(ch.violations),
		Clearances:             notifier.NewFifoSource(ch.cleared, t.logger.WithName("clearances")),
		Clock:                  t.clock,
		Logger:                 t.logger.WithName("dispatch"),
		Duration:               sim.Duration,
		Tick:                   sim.Tick,
		MaxConcurrentFlights:   sim.MaxConcurrentFlights,
		RescheduleDelay:        sim.RescheduleDelay,
		EmergencyRetries:       sim.EmergencyRetries,
		EmergencyRetryInterval: sim.EmergencyRetryInterval,
		ListenerInterval:       sim.ListenerInterval,
		Phase: phase.Options{
			Random:          t.random,
			PhaseDelay:      sim.PhaseDelay,
			StepDelay:       sim.StepDelay,
			ForcedViolators: sim.ForcedViolators,
		},
	})

	// The inbound channel and its listener come first so clearances are
	// consumed from the moment the violation processor starts writing.
	if err := ch.cleared.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect clearance channel: %w", err)
	}
	listenCtx, stopListener := context.WithCancel(ctx)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		coordinator.Listen(listenCtx)
	}()
	defer func() {
		stopListener()
		<-listenerDone
	}()

	if err := ch.violations.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect violation channel: %w", err)
	}
	if err := ch.control.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect control channel: %w", err)
	}

	if err := t.seed(); err != nil {
		return err
	}

	t.logger.Info("Waiting for the violation processor", "token", wire.ReadyToken)
	if err := fifo.AwaitToken(ctx, ch.control, wire.ReadyToken, t.cfg.FifoOptions.ReadyPollInterval); err != nil {
		if errors.Is(err, context.Canceled) {
			t.logger.Info("Stopped before the violation processor was ready")
			return nil
		}
		return fmt.Errorf("failed to receive readiness token: %w", err)
	}
	t.ready.Store(true)
	t.logger.Info("Violation processor ready, starting simulation", "duration", sim.Duration)

	if err := coordinator.Run(ctx); err != nil {
		return fmt.Errorf("control loop: %w", err)
	}

	stats := coordinator.Stats()
	t.stats.Store(&stats)
	if err := stats.Report(t.report); err != nil {
		t.logger.Error(err, "Failed to write report")
	}
	t.logger.Info("Simulation finished", "flights", stats.Flights, "violations", stats.ViolationsIssued)
	return nil
}

// seed adds the timetable to the scheduler. Flights of airlines absent
// from the fleet are skipped.
func (t *Tower) seed() error {
	entries, err := t.cfg.Timetable.Build(t.random, t.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to build timetable: %w", err)
	}

	added := 0
	for _, e := range entries {
		if _, ok := t.fleet.Airline(e.Airline); !ok {
			t.logger.Warn("Skipping flight of unknown airline", "flight", e.FlightNumber, "airline", e.Airline)
			continue
		}
		t.scheduler.Add(e)
		added++
	}
	t.logger.Info("Timetable seeded", "flights", added, "skipped", len(entries)-added)
	return nil
}
