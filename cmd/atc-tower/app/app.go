package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/airtraffic/cmd/atc-tower/app/options"
	"github.com/autopeer-io/airtraffic/pkg/app"
)

const (
	commandName = "atc-tower"
	commandDesc = `The ATC tower is the control authority of the airport simulation. It
schedules arrivals and departures, assigns runways and aircraft, simulates
every flight phase and reports speed violations to the violation processor
over named pipes.

Fleet, timetable and forced violators are read from the --config file.`
)

func NewApp() *app.App {
	opts := options.NewTowerOptions()
	application := app.NewApp(
		commandName,
		"Launch the ATC tower simulation",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.TowerOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		tower, err := cfg.NewTower()
		if err != nil {
			return fmt.Errorf("failed to create tower: %w", err)
		}

		return tower.Run(ctx)
	}
}
