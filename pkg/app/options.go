package app

import (
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/airtraffic/pkg/log"
)

// NamedFlagSetOptions is implemented by the options of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in the fields that were not set by flags or the config file.
	Complete() error

	// Validate checks the completed options.
	Validate() error
}

// LoggerOptions is implemented by options carrying a log section. The
// global logger is initialised from it before the run function is called.
type LoggerOptions interface {
	LogOptions() *log.Options
}
