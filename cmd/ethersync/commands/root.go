package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cfg "github.com/ethersync/ethersync/config"
	"github.com/ethersync/ethersync/libs/log"
)

var (
	conf   = cfg.DefaultConfig()
	logger = log.MustNewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
)

// RootCommand constructs the root command-line entry point.
func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ethersync",
		Short: "block download pipeline for an Ethereum-protocol node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}

			if home := viper.GetString("home"); home != "" {
				viper.SetConfigName("config")
				viper.AddConfigPath(home)
				if err := viper.ReadInConfig(); err != nil {
					if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
						return err
					}
				}
			}

			conf = cfg.DefaultConfig()
			if err := viper.Unmarshal(conf); err != nil {
				return err
			}
			if err := conf.ValidateBasic(); err != nil {
				return fmt.Errorf("error in config file: %w", err)
			}

			var err error
			logger, err = log.NewDefaultLogger(conf.LogFormat, conf.LogLevel)
			return err
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("home", "", "directory holding an optional config file")
	cmd.PersistentFlags().String("log_level", conf.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log_format", conf.LogFormat, "log format (plain|text|json)")

	return cmd
}
