package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SimulationOptions)(nil)

// SimulationOptions tunes the control loop, the flight supervisor and the
// pacing of the phase state machine.
type SimulationOptions struct {
	// Duration is the wall-clock length of the run.
	Duration time.Duration `json:"duration" mapstructure:"duration"`
	// Tick is the control loop period.
	Tick time.Duration `json:"tick" mapstructure:"tick"`
	// Seed feeds the random source. Zero picks one from the clock.
	Seed int64 `json:"seed" mapstructure:"seed"`

	// MaxConcurrentFlights bounds the number of flight tasks in progress.
	MaxConcurrentFlights int `json:"max-concurrent-flights" mapstructure:"max-concurrent-flights"`
	// MaxReschedules cancels a flight once its reschedule count reaches it.
	MaxReschedules int `json:"max-reschedules" mapstructure:"max-reschedules"`
	// RescheduleDelay is added to a flight's scheduled time on every requeue.
	RescheduleDelay time.Duration `json:"reschedule-delay" mapstructure:"reschedule-delay"`

	EmergencyRetries       int           `json:"emergency-retries" mapstructure:"emergency-retries"`
	EmergencyRetryInterval time.Duration `json:"emergency-retry-interval" mapstructure:"emergency-retry-interval"`

	// PhaseDelay is the pause between two phases of a flight.
	PhaseDelay time.Duration `json:"phase-delay" mapstructure:"phase-delay"`
	// StepDelay is the pause between two steps inside landing or take-off.
	StepDelay time.Duration `json:"step-delay" mapstructure:"step-delay"`

	// ListenerInterval is the polling period of the violation-cleared pipe.
	ListenerInterval time.Duration `json:"listener-interval" mapstructure:"listener-interval"`

	// ForcedViolators lists aircraft whose taxi speed is pushed over the limit.
	ForcedViolators []string `json:"forced-violators" mapstructure:"forced-violators"`
}

// NewSimulationOptions creates a SimulationOptions object with default parameters.
func NewSimulationOptions() *SimulationOptions {
	return &SimulationOptions{
		Duration:               5 * time.Minute,
		Tick:                   time.Second,
		MaxConcurrentFlights:   32,
		MaxReschedules:         5,
		RescheduleDelay:        15 * time.Second,
		EmergencyRetries:       10,
		EmergencyRetryInterval: 100 * time.Millisecond,
		PhaseDelay:             time.Second,
		StepDelay:              500 * time.Millisecond,
		ListenerInterval:       100 * time.Millisecond,
		ForcedViolators:        []string{"PK-101", "PK-102"},
	}
}

func (o *SimulationOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Duration <= 0 {
		errs = append(errs, fmt.Errorf("--simulation.duration must be positive"))
	}
	if o.Tick <= 0 || o.ListenerInterval <= 0 {
		errs = append(errs, fmt.Errorf("--simulation.tick and --simulation.listener-interval must be positive"))
	}
	if o.MaxConcurrentFlights < 1 {
		errs = append(errs, fmt.Errorf("--simulation.max-concurrent-flights must be at least 1"))
	}
	if o.MaxReschedules < 1 {
		errs = append(errs, fmt.Errorf("--simulation.max-reschedules must be at least 1"))
	}
	if o.RescheduleDelay < 0 || o.PhaseDelay < 0 || o.StepDelay < 0 || o.EmergencyRetryInterval < 0 {
		errs = append(errs, fmt.Errorf("--simulation delays must not be negative"))
	}
	if o.EmergencyRetries < 0 {
		errs = append(errs, fmt.Errorf("--simulation.emergency-retries must not be negative"))
	}

	return errs
}

func (o *SimulationOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.DurationVar(&o.Duration, join(prefixes, "simulation.duration"), o.Duration, "Length of the simulation run.")
	fs.DurationVar(&o.Tick, join(prefixes, "simulation.tick"), o.Tick, "Control loop period.")
	fs.Int64Var(&o.Seed, join(prefixes, "simulation.seed"), o.Seed, "Seed for the random source; 0 picks one from the clock.")
	fs.IntVar(&o.MaxConcurrentFlights, join(prefixes, "simulation.max-concurrent-flights"), o.MaxConcurrentFlights, "Maximum number of flights simulated at once.")
	fs.IntVar(&o.MaxReschedules, join(prefixes, "simulation.max-reschedules"), o.MaxReschedules, "Reschedule count at which a flight is cancelled.")
	fs.DurationVar(&o.RescheduleDelay, join(prefixes, "simulation.reschedule-delay"), o.RescheduleDelay, "Delay added to a flight on every requeue.")
	fs.IntVar(&o.EmergencyRetries, join(prefixes, "simulation.emergency-retries"), o.EmergencyRetries, "Runway retries for emergency flights before requeueing.")
	fs.DurationVar(&o.EmergencyRetryInterval, join(prefixes, "simulation.emergency-retry-interval"), o.EmergencyRetryInterval, "Pause between emergency runway retries.")
	fs.DurationVar(&o.PhaseDelay, join(prefixes, "simulation.phase-delay"), o.PhaseDelay, "Pause between two flight phases.")
	fs.DurationVar(&o.StepDelay, join(prefixes, "simulation.step-delay"), o.StepDelay, "Pause between landing and take-off steps.")
	fs.DurationVar(&o.ListenerInterval, join(prefixes, "simulation.listener-interval"), o.ListenerInterval, "Polling period of the violation-cleared pipe.")
	fs.StringSliceVar(&o.ForcedViolators, join(prefixes, "simulation.forced-violators"), o.ForcedViolators, "Aircraft whose taxi speed is forced over the limit.")
}
