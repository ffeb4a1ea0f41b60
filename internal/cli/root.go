// Package cli implements the eqiva command line tool: one cobra sub-command
// per thermostat operation, run against the targets given with --target.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/ble"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
	"github.com/nerrad567/eqiva-core/internal/infrastructure/logging"
)

// Output formats for --output.
const (
	OutputPrint    = "print"
	OutputCommands = "commands"
	OutputJSON     = "json"
	OutputNone     = "none"
)

// SourceCLI tags requests in logs.
const SourceCLI = "cli"

// Options holds what the commands need from the outside world.
type Options struct {
	// Version is reported by --version and in log lines.
	Version string

	// Stdout receives command output, Stderr logs and progress.
	Stdout io.Writer
	Stderr io.Writer

	// OpenRadio opens the Bluetooth adapter. Default: ble.Open.
	OpenRadio func(logger *logging.Logger) (eqiva.Radio, error)

	// Clock stamps status requests and vacations. Default: SystemClock.
	Clock eqiva.Clock
}

// app carries the per-invocation state shared by the sub-commands.
type app struct {
	opts       Options
	v          *viper.Viper
	configFile string
	targets    []string
	output     string
	logger     *logging.Logger
}

// NewRootCmd builds the eqiva command tree.
//
// Parameters:
//   - opts: Output writers and the radio factory
//
// Returns:
//   - *cobra.Command: Root command ready to Execute
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.OpenRadio == nil {
		opts.OpenRadio = openBLE
	}
	if opts.Clock == nil {
		opts.Clock = eqiva.SystemClock{}
	}

	a := &app{opts: opts, v: viper.New()}

	root := &cobra.Command{
		Use:   "eqiva",
		Short: "Command line interface for Eqiva Smart Radiator Thermostats",
		Long: `Command line interface for Eqiva Smart Radiator Thermostats.

Targets are MAC addresses or aliases from the ~/.known_eqivas file; an alias
matches every thermostat whose alias text contains it.`,
		Version:           opts.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.init(cmd) },
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Configuration file (YAML, same layout as the daemon's)")
	flags.StringArrayVarP(&a.targets, "target", "t", nil, "Thermostat MAC address or alias (repeatable)")
	flags.StringVarP(&a.output, "output", "o", OutputPrint, "Output format: print, commands, json or none")
	flags.String("alias-file", "", "Alias file (default ~/.known_eqivas)")
	flags.Int("scan-timeout", int(eqiva.DefaultScanTimeout/time.Second), "Scan timeout in seconds")
	flags.Int("settle-delay", 2000, "Pause after each command in milliseconds") //nolint:mnd // device default
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")

	for key, flag := range map[string]string{
		"eqiva.alias_file":   "alias-file",
		"eqiva.scan_timeout": "scan-timeout",
		"eqiva.settle_delay": "settle-delay",
		"logging.level":      "log-level",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(a.deviceCommands()...)
	root.AddCommand(a.scanCmd(), a.aliasesCmd(), a.tokenCmd())
	return root
}

// init reads the optional config file and environment, then builds the logger.
func (a *app) init(_ *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("EQIVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("security.jwt.secret", "EQIVA_SECURITY_JWT_SECRET", "EQIVA_JWT_SECRET")
	v.SetDefault("security.jwt.access_token_ttl", 60) //nolint:mnd // minutes, as the daemon

	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	switch a.output {
	case OutputPrint, OutputCommands, OutputJSON, OutputNone:
	default:
		return fmt.Errorf("invalid output format %q: must be print, commands, json or none", a.output)
	}

	a.logger = logging.NewWriter(config.LoggingConfig{
		Level:  v.GetString("logging.level"),
		Format: "text",
	}, a.opts.Version, a.opts.Stderr)
	return nil
}

// runnerOptions builds the runner settings from flags and config.
func (a *app) runnerOptions(radio eqiva.Radio, listener eqiva.ScanListener) eqiva.RunnerOptions {
	return eqiva.RunnerOptions{
		Radio:       radio,
		Clock:       a.opts.Clock,
		ScanTimeout: time.Duration(a.v.GetInt("eqiva.scan_timeout")) * time.Second,
		SettleDelay: time.Duration(a.v.GetInt("eqiva.settle_delay")) * time.Millisecond,
		Listener:    listener,
		Logger:      a.logger,
	}
}

func openBLE(logger *logging.Logger) (eqiva.Radio, error) {
	adapter, err := ble.Open(logger)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// errNoTargets is returned by device commands without --target.
var errNoTargets = errors.New("no thermostat given: use --target <mac|alias>")
