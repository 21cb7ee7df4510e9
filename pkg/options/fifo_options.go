package options

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*FifoOptions)(nil)

// FifoOptions configures the named pipes shared with the violation processor.
type FifoOptions struct {
	// Dir is the directory holding every pipe.
	Dir string `json:"dir" mapstructure:"dir"`

	// Violations carries violation records from the tower.
	Violations string `json:"violations" mapstructure:"violations"`
	// Cleared carries violation-cleared records to the tower.
	Cleared string `json:"cleared" mapstructure:"cleared"`
	// Control carries the readiness token to the tower.
	Control string `json:"control" mapstructure:"control"`

	// Create makes missing pipes at startup.
	Create bool `json:"create" mapstructure:"create"`
	// Cleanup removes the pipes on exit.
	Cleanup bool `json:"cleanup" mapstructure:"cleanup"`

	ConnectAttempts int           `json:"connect-attempts" mapstructure:"connect-attempts"`
	ConnectInterval time.Duration `json:"connect-interval" mapstructure:"connect-interval"`
	ControlAttempts int           `json:"control-attempts" mapstructure:"control-attempts"`
	ControlInterval time.Duration `json:"control-interval" mapstructure:"control-interval"`

	// ReadyPollInterval is how often the control pipe is polled for the token.
	ReadyPollInterval time.Duration `json:"ready-poll-interval" mapstructure:"ready-poll-interval"`
}

// NewFifoOptions creates a FifoOptions object with default parameters.
func NewFifoOptions() *FifoOptions {
	return &FifoOptions{
		Dir:               ".",
		Violations:        "atc_to_avn.fifo",
		Cleared:           "avn_to_atc.fifo",
		Control:           "avn_ctrl.fifo",
		Create:            true,
		ConnectAttempts:   10,
		ConnectInterval:   500 * time.Millisecond,
		ControlAttempts:   20,
		ControlInterval:   time.Second,
		ReadyPollInterval: 500 * time.Millisecond,
	}
}

// Path returns name resolved against Dir.
func (o *FifoOptions) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

func (o *FifoOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Violations == "" || o.Cleared == "" || o.Control == "" {
		errs = append(errs, fmt.Errorf("--fifo pipe names must not be empty"))
	}
	if o.ConnectAttempts < 1 || o.ControlAttempts < 1 {
		errs = append(errs, fmt.Errorf("--fifo attempts must be at least 1"))
	}
	if o.ConnectInterval <= 0 || o.ControlInterval <= 0 || o.ReadyPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("--fifo intervals must be positive"))
	}

	return errs
}

func (o *FifoOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Dir, join(prefixes, "fifo.dir"), o.Dir, "Directory holding the named pipes.")
	fs.StringVar(&o.Violations, join(prefixes, "fifo.violations"), o.Violations, "Pipe carrying violation records to the violation processor.")
	fs.StringVar(&o.Cleared, join(prefixes, "fifo.cleared"), o.Cleared, "Pipe carrying violation-cleared records from the violation processor.")
	fs.StringVar(&o.Control, join(prefixes, "fifo.control"), o.Control, "Pipe carrying the readiness token from the violation processor.")
	fs.BoolVar(&o.Create, join(prefixes, "fifo.create"), o.Create, "Create missing pipes at startup.")
	fs.BoolVar(&o.Cleanup, join(prefixes, "fifo.cleanup"), o.Cleanup, "Remove the pipes on exit.")
	fs.IntVar(&o.ConnectAttempts, join(prefixes, "fifo.connect-attempts"), o.ConnectAttempts, "Open attempts for the record pipes.")
	fs.DurationVar(&o.ConnectInterval, join(prefixes, "fifo.connect-interval"), o.ConnectInterval, "Delay between open attempts for the record pipes.")
	fs.IntVar(&o.ControlAttempts, join(prefixes, "fifo.control-attempts"), o.ControlAttempts, "Open attempts for the control pipe.")
	fs.DurationVar(&o.ControlInterval, join(prefixes, "fifo.control-interval"), o.ControlInterval, "Delay between open attempts for the control pipe.")
	fs.DurationVar(&o.ReadyPollInterval, join(prefixes, "fifo.ready-poll-interval"), o.ReadyPollInterval, "Polling interval while waiting for the readiness token.")
}
