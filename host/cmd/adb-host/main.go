package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"adbridge/host/bridge"
	"adbridge/host/config"
	"adbridge/protocol"
)

// options are the persistent flags shared by every subcommand
type options struct {
	configPath string
	device     string
	baud       int
	logLevel   string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "adb-host",
		Short: "Host tool for the single-wire bus bridge",
		Long: `adb-host talks to the bus bridge firmware over USB serial. It sends
command words to devices on the bus and prints the raw bytes they answer.`,
		Version:       protocol.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringVarP(&opts.device, "device", "d", "", "serial device (overrides config)")
	flags.IntVar(&opts.baud, "baud", 0, "baud rate (overrides config, ignored by USB CDC)")
	flags.StringVar(&opts.logLevel, "log-level", "", "trace, debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(newSendCmd(opts))
	rootCmd.AddCommand(newResetCmd(opts))
	rootCmd.AddCommand(newStatsCmd(opts))
	rootCmd.AddCommand(newReplCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// load merges the config file with flag overrides
func (o *options) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.device != "" {
		cfg.Serial.Device = o.device
	}
	if o.baud != 0 {
		cfg.Serial.Baud = o.baud
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}

// connect loads the configuration and opens the bridge
func (o *options) connect() (*bridge.Bridge, zerolog.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := newLogger(cfg.Log.Level)
	log.Debug().Str("device", cfg.Serial.Device).Int("baud", cfg.Serial.Baud).Msg("connecting")

	b, err := bridge.Open(cfg, log)
	if err != nil {
		return nil, log, err
	}
	return b, log, nil
}
