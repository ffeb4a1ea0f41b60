package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/eqiva-core/internal/alias"
	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// request is one parsed device command.
type request struct {
	command string
	params  map[string]any
}

// builder turns positional arguments into a request.
type builder func(args []string) (request, error)

func fixed(command string) builder {
	return func([]string) (request, error) { return request{command: command}, nil }
}

func (a *app) deviceCommands() []*cobra.Command {
	return []*cobra.Command{
		a.deviceCmd(&cobra.Command{
			Use:     "temp <temp|on|off|comfort|eco>",
			Short:   "Set temperature from 4.5 to 30.0°C in steps of 0.5°C, or one of on, off, comfort, eco",
			Example: "  eqiva -t kitchen temp 21.5",
			Args:    cobra.ExactArgs(1),
		}, buildTemp),
		a.deviceCmd(&cobra.Command{Use: "on", Short: "Open the valve fully (30.0°C)", Args: cobra.NoArgs}, fixed(eqiva.CommandOn)),
		a.deviceCmd(&cobra.Command{Use: "off", Short: "Close the valve (4.5°C)", Args: cobra.NoArgs}, fixed(eqiva.CommandOff)),
		a.deviceCmd(&cobra.Command{Use: "comfort", Short: "Switch to the comfort temperature", Args: cobra.NoArgs}, fixed(eqiva.CommandComfort)),
		a.deviceCmd(&cobra.Command{Use: "eco", Short: "Switch to the eco temperature", Args: cobra.NoArgs}, fixed(eqiva.CommandEco)),
		a.deviceCmd(&cobra.Command{
			Use:       "mode <auto|manual>",
			Short:     "Set mode to auto or manual",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"auto", "manual"},
		}, func(args []string) (request, error) {
			return request{command: eqiva.CommandMode, params: map[string]any{"mode": args[0]}}, nil
		}),
		a.deviceCmd(&cobra.Command{Use: "boost [on|off]", Short: "Start or stop boost", Args: cobra.MaximumNArgs(1)},
			onOff(eqiva.CommandBoost)),
		a.deviceCmd(&cobra.Command{Use: "lock [on|off]", Short: "Lock or unlock the thermostat", Args: cobra.MaximumNArgs(1)},
			onOff(eqiva.CommandLock)),
		a.deviceCmd(&cobra.Command{Use: "status", Short: "Synchronise time and get status information", Args: cobra.NoArgs},
			fixed(eqiva.CommandStatus)),
		a.deviceCmd(&cobra.Command{
			Use:   "vacation <YYYY-MM-DD hh:mm|hh:mm|hh> <temp>",
			Short: "Hold a temperature until a date, for hours and minutes from now, or for hours",
			Example: `  eqiva -t office vacation 2026-12-24 18:00 16.0
  eqiva -t office vacation 2:30 18.0
  eqiva -t office vacation 48 16.0`,
			Args: cobra.RangeArgs(2, 3), //nolint:mnd // date and time may be separate words
		}, buildVacation),
		a.deviceCmd(&cobra.Command{
			Use:   "program [<day>] [<temp> <hh:mm> ...] [<temp>]",
			Short: "Request all programs, the program of a day, or set a program of up to 7 events",
			Long: `Request all programs, the program of a day, or set a program of up to 7 events.

<day> is one of mon, tue, wed, thu, fri, sat, sun, weekend, work, everyday,
today or tomorrow. Each <temp> <hh:mm> pair holds temp until hh:mm (steps of
10 minutes); a trailing <temp> holds until midnight.`,
			Example: "  eqiva -t kitchen program work 17.0 06:00 21.0 22:00 17.0",
		}, buildProgram),
		a.deviceCmd(&cobra.Command{
			Use:     "offset <temp>",
			Short:   "Set offset temperature from -3.5 to 3.5°C in steps of 0.5°C",
			Example: "  eqiva -t kitchen offset -- -1.5",
			Args:    cobra.ExactArgs(1),
		}, func(args []string) (request, error) {
			return request{command: eqiva.CommandOffset, params: map[string]any{"temperature": args[0]}}, nil
		}),
		a.deviceCmd(&cobra.Command{
			Use:   "comforteco <comfort> <eco>",
			Short: "Set comfort and eco temperature from 4.5 to 30.0°C in steps of 0.5°C",
			Args:  cobra.ExactArgs(2), //nolint:mnd // comfort and eco
		}, func(args []string) (request, error) {
			return request{command: eqiva.CommandComfortEco, params: map[string]any{"comfort": args[0], "eco": args[1]}}, nil
		}),
		a.deviceCmd(&cobra.Command{
			Use:   "openwindow <temp> <minutes>",
			Short: "Set temperature and minutes (steps of 5, max. 995) after an open window has been detected",
			Args:  cobra.ExactArgs(2), //nolint:mnd // temperature and minutes
		}, func(args []string) (request, error) {
			return request{command: eqiva.CommandOpenWindow, params: map[string]any{"temperature": args[0], "minutes": args[1]}}, nil
		}),
		a.deviceCmd(&cobra.Command{Use: "reset", Short: "Perform factory reset", Args: cobra.NoArgs}, fixed(eqiva.CommandReset)),
		a.deviceCmd(&cobra.Command{Use: "serial", Short: "Request serial number and firmware version", Args: cobra.NoArgs},
			fixed(eqiva.CommandSerial)),
		a.deviceCmd(&cobra.Command{Use: "name", Short: "Request the device name", Args: cobra.NoArgs}, fixed(eqiva.CommandName)),
		a.deviceCmd(&cobra.Command{Use: "vendor", Short: "Request the vendor", Args: cobra.NoArgs}, fixed(eqiva.CommandVendor)),
		a.deviceCmd(&cobra.Command{Use: "dump", Short: "Request the full state of the thermostat", Args: cobra.NoArgs},
			fixed(eqiva.CommandDump)),
	}
}

// deviceCmd wires build into cmd's RunE.
func (a *app) deviceCmd(cmd *cobra.Command, build builder) *cobra.Command {
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		req, err := build(args)
		if err != nil {
			return err
		}
		return a.execute(cmd.Context(), req)
	}
	return cmd
}

func buildTemp(args []string) (request, error) {
	switch v := strings.ToLower(args[0]); v {
	case eqiva.CommandOn, eqiva.CommandOff, eqiva.CommandComfort, eqiva.CommandEco:
		return request{command: v}, nil
	default:
		return request{command: eqiva.CommandSetTemperature, params: map[string]any{"temperature": v}}, nil
	}
}

func onOff(command string) builder {
	return func(args []string) (request, error) {
		if len(args) == 0 {
			return request{command: command}, nil
		}
		return request{command: command, params: map[string]any{"on": args[0]}}, nil
	}
}

func buildVacation(args []string) (request, error) {
	temp := args[len(args)-1]
	period := strings.Join(args[:len(args)-1], " ")
	params := map[string]any{"temperature": temp}
	if strings.Contains(period, ":") {
		params["until"] = period
	} else {
		params["hours"] = period
	}
	return request{command: eqiva.CommandVacation, params: params}, nil
}

// buildProgram maps "[day] [temp hh:mm]... [temp]" onto the program
// parameters. A program ending in a time holds the first temperature until
// midnight.
func buildProgram(args []string) (request, error) {
	if len(args) == 0 {
		return request{command: eqiva.CommandProgram}, nil
	}
	params := map[string]any{"day": args[0]}
	rest := args[1:]
	if len(rest) == 0 {
		return request{command: eqiva.CommandProgram, params: params}, nil
	}

	var events []any
	for i := 0; i+1 < len(rest); i += 2 {
		events = append(events, map[string]any{"temperature": rest[i], "until": rest[i+1]})
	}
	last := rest[0]
	if len(rest)%2 == 1 {
		last = rest[len(rest)-1]
	}
	events = append(events, map[string]any{"temperature": last, "until": "24:00"})

	params["events"] = events
	return request{command: eqiva.CommandProgram, params: params}, nil
}

// execute validates req, resolves the targets and runs the request.
func (a *app) execute(ctx context.Context, req request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(a.targets) == 0 {
		return errNoTargets
	}
	if _, err := eqiva.ParseCommand(req.command, req.params, a.opts.Clock.Now()); err != nil {
		return err
	}

	aliases, err := a.aliases()
	if err != nil {
		return err
	}
	targets := aliases.Resolve(a.targets)
	if err := eqiva.CheckCapacity(len(targets)); err != nil {
		return err
	}

	radio, err := a.opts.OpenRadio(a.logger)
	if err != nil {
		return fmt.Errorf("opening bluetooth adapter: %w", err)
	}
	controller, err := eqiva.NewController(eqiva.ControllerOptions{
		Runner: eqiva.NewRunner(a.runnerOptions(radio, nil)),
		Clock:  a.opts.Clock,
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	outcome, err := controller.Execute(ctx, eqiva.Request{
		Command:    req.command,
		Parameters: req.params,
		Targets:    targets,
		Source:     SourceCLI,
	})
	if err != nil {
		return err
	}

	for _, addr := range outcome.Results.Failed() {
		a.logger.Error("command failed", "address", addr, "error", outcome.Results[addr])
	}
	if err := render(a.opts.Stdout, a.output, outcome.States); err != nil {
		return err
	}
	if failed := outcome.Results.Failed(); len(failed) > 0 {
		return fmt.Errorf("%s failed on %s: %w", req.command, strings.Join(failed, ", "), outcome.Results.Err())
	}
	return nil
}

// aliases loads the alias file from --alias-file, the config or the default
// location.
func (a *app) aliases() (*alias.File, error) {
	path := a.v.GetString("eqiva.alias_file")
	if path == "" {
		var err error
		if path, err = alias.DefaultPath(); err != nil {
			a.logger.Warn("no alias file", "error", err)
			return &alias.File{}, nil
		}
	}
	return alias.Load(path)
}
