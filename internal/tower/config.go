package tower

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/runway"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/internal/tower/violation"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/options"
	"github.com/autopeer-io/airtraffic/pkg/rand"
)

// Config holds everything needed to build a Tower.
type Config struct {
	SimulationOptions *options.SimulationOptions
	FifoOptions       *options.FifoOptions
	HttpOptions       *options.HttpOptions

	Fleet     []fleet.AirlineSpec
	Timetable schedule.Timetable

	// Report receives the end of run summary. Defaults to stdout.
	Report io.Writer

	// Random and Clock override the seeded generator and the wall clock.
	Random rand.Source
	Clock  clock.WithTicker
	Logger log.Logger
}

// NewTower validates the fleet and builds the domain objects. No pipe is
// touched until Run.
func (cfg *Config) NewTower() (*Tower, error) {
	if cfg.SimulationOptions == nil || cfg.FifoOptions == nil {
		return nil, fmt.Errorf("simulation and fifo options are required")
	}

	runID := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = log.Std()
	}
	logger = logger.WithValues("run", runID)

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	src := cfg.Random
	if src == nil {
		src = rand.New(cfg.SimulationOptions.Seed)
	}
	report := cfg.Report
	if report == nil {
		report = os.Stdout
	}

	registry := fleet.NewRegistry(logger.WithName("fleet"))
	if err := registry.Load(cfg.Fleet); err != nil {
		return nil, fmt.Errorf("failed to load fleet: %w", err)
	}

	return &Tower{
		cfg:       cfg,
		runID:     runID,
		logger:    logger,
		clock:     clk,
		random:    src,
		report:    report,
		fleet:     registry,
		runways:   runway.NewAllocator(logger.WithName("runway")),
		scheduler: schedule.New(schedule.Options{MaxReschedules: cfg.SimulationOptions.MaxReschedules, Clock: clk, Logger: logger.WithName("scheduler")}),
		tracker:   violation.NewTracker(clk, logger.WithName("violation")),
	}, nil
}
