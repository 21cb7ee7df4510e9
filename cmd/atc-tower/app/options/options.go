package options

import (
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/airtraffic/internal/tower"
	"github.com/autopeer-io/airtraffic/internal/tower/fleet"
	"github.com/autopeer-io/airtraffic/internal/tower/schedule"
	"github.com/autopeer-io/airtraffic/pkg/app"
	"github.com/autopeer-io/airtraffic/pkg/log"
	"github.com/autopeer-io/airtraffic/pkg/options"
)

type TowerOptions struct {
	SimulationOptions *options.SimulationOptions `json:"simulation" mapstructure:"simulation"`
	FifoOptions       *options.FifoOptions       `json:"fifo" mapstructure:"fifo"`
	HttpOptions       *options.HttpOptions       `json:"http" mapstructure:"http"`
	Log               *log.Options               `json:"log" mapstructure:"log"`

	// Fleet and Timetable come from the config file only. Empty values
	// select the stock roster and timetable.
	Fleet     []fleet.AirlineSpec `json:"fleet" mapstructure:"fleet"`
	Timetable schedule.Timetable  `json:"timetable" mapstructure:"timetable"`
}

var (
	_ app.NamedFlagSetOptions = (*TowerOptions)(nil)
	_ app.LoggerOptions       = (*TowerOptions)(nil)
)

func NewTowerOptions() *TowerOptions {
	o := &TowerOptions{
		SimulationOptions: options.NewSimulationOptions(),
		FifoOptions:       options.NewFifoOptions(),
		HttpOptions:       options.NewHttpOptions(),
		Log:               log.NewOptions(),
	}

	return o
}

func (o *TowerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.SimulationOptions.AddFlags(fss.FlagSet("simulation"))
	o.FifoOptions.AddFlags(fss.FlagSet("fifo"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *TowerOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *TowerOptions) Complete() error {
	if len(o.Fleet) == 0 {
		o.Fleet = fleet.DefaultRoster()
	}
	if len(o.Timetable.Airlines) == 0 && len(o.Timetable.Extra) == 0 {
		o.Timetable = schedule.DefaultTimetable()
	}
	return nil
}

func (o *TowerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.SimulationOptions.Validate()...)
	errs = append(errs, o.FifoOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if len(o.Fleet) == 0 {
		errs = append(errs, fmt.Errorf("fleet must declare at least one airline"))
	}
	return utilerrors.NewAggregate(errs)
}

func (o *TowerOptions) Config() (*tower.Config, error) {
	return &tower.Config{
		SimulationOptions: o.SimulationOptions,
		FifoOptions:       o.FifoOptions,
		HttpOptions:       o.HttpOptions,
		Fleet:             o.Fleet,
		Timetable:         o.Timetable,
	}, nil
}
