package eqiva

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Command names accepted by ParseCommand (MQTT and HTTP payloads).
const (
	CommandSetTemperature = "set_temperature"
	CommandOn             = "on"
	CommandOff            = "off"
	CommandComfort        = "comfort"
	CommandEco            = "eco"
	CommandMode           = "mode"
	CommandBoost          = "boost"
	CommandLock           = "lock"
	CommandStatus         = "status"
	CommandVacation       = "vacation"
	CommandProgram        = "program"
	CommandOffset         = "offset"
	CommandComfortEco     = "comfort_eco"
	CommandOpenWindow     = "open_window"
	CommandReset          = "reset"
	CommandSerial         = "serial"
	CommandName           = "name"
	CommandVendor         = "vendor"
	CommandDump           = "dump"
)

// ParseCommand builds the command sequence for a named request.
//
// Parameters:
//   - name: One of the Command* names
//   - params: Command parameters as decoded from JSON
//   - now: Reference time for status clock sync, relative days and vacations
//
// Returns:
//   - []Command: Commands to send in order
//   - error: ErrUnknownCommand or ValidationError
func ParseCommand(name string, params map[string]any, now time.Time) ([]Command, error) { //nolint:gocyclo // flat command switch
	p := paramReader(params)
	switch strings.ToLower(name) {
	case CommandSetTemperature, "temperature", "temp":
		t, err := p.setpoint("temperature")
		if err != nil {
			return nil, err
		}
		return []Command{SetTemperature(t)}, nil
	case CommandOn:
		return []Command{TurnOn()}, nil
	case CommandOff:
		return []Command{TurnOff()}, nil
	case CommandComfort:
		return []Command{ComfortTemperature()}, nil
	case CommandEco:
		return []Command{EcoTemperature()}, nil
	case CommandMode:
		mode, err := p.str("mode")
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(mode) {
		case "auto":
			return []Command{SetModeAuto()}, nil
		case "manual":
			return []Command{SetModeManual()}, nil
		default:
			return nil, invalid("mode", mode, "must be auto or manual")
		}
	case CommandBoost:
		on, err := p.flag("on", true)
		if err != nil {
			return nil, err
		}
		return []Command{Boost(on)}, nil
	case CommandLock:
		on, err := p.flag("on", true)
		if err != nil {
			return nil, err
		}
		return []Command{Lock(on)}, nil
	case CommandStatus:
		return []Command{RequestStatus(now)}, nil
	case CommandVacation:
		return parseVacation(p, now)
	case CommandProgram:
		return parseProgram(p, now)
	case CommandOffset:
		v, err := p.number("temperature")
		if err != nil {
			return nil, err
		}
		t, err := NewTemperature(v)
		if err != nil {
			return nil, err
		}
		cmd, err := SetOffset(t)
		if err != nil {
			return nil, err
		}
		return []Command{cmd}, nil
	case CommandComfortEco:
		comfort, err := p.setpoint("comfort")
		if err != nil {
			return nil, err
		}
		eco, err := p.setpoint("eco")
		if err != nil {
			return nil, err
		}
		return []Command{SetComfortEco(comfort, eco)}, nil
	case CommandOpenWindow:
		t, err := p.setpoint("temperature")
		if err != nil {
			return nil, err
		}
		minutes, err := p.whole("minutes")
		if err != nil {
			return nil, err
		}
		cfg, err := NewOpenWindowConfig(t, minutes)
		if err != nil {
			return nil, err
		}
		return []Command{SetOpenWindow(cfg)}, nil
	case CommandReset:
		return []Command{FactoryReset()}, nil
	case CommandSerial:
		return []Command{RequestSerial()}, nil
	case CommandName:
		return []Command{RequestName()}, nil
	case CommandVendor:
		return []Command{RequestVendor()}, nil
	case CommandDump:
		return DeviceInfo(now), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}

func parseVacation(p paramReader, now time.Time) ([]Command, error) {
	t, err := p.setpoint("temperature")
	if err != nil {
		return nil, err
	}
	var until time.Time
	switch {
	case p.has("until"):
		s, err := p.str("until")
		if err != nil {
			return nil, err
		}
		until, err = ParseVacationEnd(s, now)
		if err != nil {
			return nil, err
		}
	case p.has("hours"):
		h, err := p.number("hours")
		if err != nil {
			return nil, err
		}
		if h <= 0 {
			return nil, invalid("hours", h, "must be positive")
		}
		until = now.Add(time.Duration(h * float64(time.Hour)))
	default:
		return nil, invalid("vacation", nil, "until or hours required")
	}
	v, err := NewVacation(until)
	if err != nil {
		return nil, err
	}
	cmd, err := SetVacation(t, v)
	if err != nil {
		return nil, err
	}
	return []Command{cmd}, nil
}

func parseProgram(p paramReader, now time.Time) ([]Command, error) {
	day := Everyday
	if p.has("day") {
		s, err := p.str("day")
		if err != nil {
			return nil, err
		}
		if day, err = ParseDay(s); err != nil {
			return nil, err
		}
	}

	raw, ok := p["events"]
	if !ok {
		cmd, err := RequestProgram(day, now)
		if err != nil {
			return nil, err
		}
		return []Command{cmd}, nil
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, invalid("events", raw, "must be a list")
	}
	events := make([]Event, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("events", item, "entry %d must be an object", i)
		}
		ep := paramReader(m)
		t, err := ep.setpoint("temperature")
		if err != nil {
			return nil, err
		}
		until, err := ep.str("until")
		if err != nil {
			return nil, err
		}
		hour, minute, err := ParseClock(until)
		if err != nil {
			return nil, err
		}
		e, err := NewEvent(t, hour, minute)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	prog, err := NewProgram(events...)
	if err != nil {
		return nil, err
	}
	cmd, err := SetProgram(day, prog, now)
	if err != nil {
		return nil, err
	}
	return []Command{cmd}, nil
}

// ParseClock parses "HH:MM" (or "HH") for schedule events.
func ParseClock(s string) (hour, minute int, err error) {
	hs, ms, found := strings.Cut(strings.TrimSpace(s), ":")
	hour, err = strconv.Atoi(hs)
	if err != nil {
		return 0, 0, invalid("time", s, "expected HH:MM")
	}
	if found {
		if minute, err = strconv.Atoi(ms); err != nil {
			return 0, 0, invalid("time", s, "expected HH:MM")
		}
	}
	return hour, minute, nil
}

// ParseVacationEnd accepts "YYYY-MM-DD HH:MM", RFC 3339, or a relative
// "HH:MM" / "HH" offset from now.
func ParseVacationEnd(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(VacationTimeLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(now.Location()), nil
	}
	h, m, err := ParseClock(s)
	if err != nil || h < 0 || m < 0 || m > 59 {
		return time.Time{}, invalid("until", s, "expected YYYY-MM-DD HH:MM, RFC 3339 or HH:MM offset")
	}
	return now.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute), nil
}

// paramReader reads typed values from a JSON-decoded parameter map.
type paramReader map[string]any

func (p paramReader) has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p paramReader) number(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, invalid(key, nil, "missing parameter")
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, invalid(key, n, "not a number")
		}
		return f, nil
	default:
		return 0, invalid(key, v, "not a number")
	}
}

// whole is number restricted to integral values.
func (p paramReader) whole(key string) (int, error) {
	v, err := p.number(key)
	if err != nil {
		return 0, err
	}
	if math.IsInf(v, 0) || math.Trunc(v) != v {
		return 0, invalid(key, v, "must be a whole number")
	}
	return int(v), nil
}

func (p paramReader) setpoint(key string) (Temperature, error) {
	v, err := p.number(key)
	if err != nil {
		return Temperature{}, err
	}
	t, err := NewSetpoint(v)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Field = key
		}
		return Temperature{}, err
	}
	return t, nil
}

func (p paramReader) str(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", invalid(key, nil, "missing parameter")
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, v, "not a string")
	}
	return s, nil
}

func (p paramReader) flag(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "on", "true", "1":
			return true, nil
		case "off", "false", "0":
			return false, nil
		}
	}
	return false, invalid(key, v, "must be on or off")
}
