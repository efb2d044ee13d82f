package qpconfig

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigOptions selects the config file and environment prefix of a command.
type ConfigOptions struct {
	// FilePath is optional. Any format viper reads (.yaml, .json, .toml) works.
	FilePath string

	// EnvPrefix "QPRELAYD" maps the --interval flag to QPRELAYD_INTERVAL.
	EnvPrefix string
}

// InitFileConfig returns a viper instance loaded from the config file and the environment, and
// copies its values into every flag of cmd that was not set on the command line. Precedence is
// flag, then environment, then file, then the flag default.
//
// Structured settings without a flag (the networks section) are read from the returned instance
// by Load.
func InitFileConfig(cmd *cobra.Command, options ConfigOptions) (*viper.Viper, error) {
	v := viper.New()

	if options.FilePath != "" {
		v.SetConfigFile(options.FilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", options.FilePath, err)
		}
	}

	v.SetEnvPrefix(options.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}
	return v, nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			bindErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
		}
	})
	return bindErr
}
