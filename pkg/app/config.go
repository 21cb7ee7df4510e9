package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/airtraffic/pkg/log"
)

const configFlagName = "config"

var cfgFile string

// addConfigFlag registers --config and prepares viper to read the file and
// the environment. Flag names map to nested keys, so --simulation.tick and
// simulation.tick in the file refer to the same setting.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from the specified YAML file.")

	viper.SetEnvPrefix(strings.ReplaceAll(strings.ToUpper(basename), "-", "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads the config file, if any, and decodes every setting into opts.
func loadConfig(fs *pflag.FlagSet, opts any) error {
	if err := viper.BindPFlags(fs); err != nil {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %s: %w", cfgFile, err)
		}
	}

	if err := viper.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// watchConfig re-applies the log level whenever the config file changes.
func watchConfig() {
	if cfgFile == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		level := viper.GetString("log.level")
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Failed to apply log level", "file", e.Name)
			return
		}
		log.Info("Configuration changed, log level applied", "file", e.Name, "op", e.Op.String(), "level", level)
	})
	viper.WatchConfig()
}
