package eqiva

import (
	"time"
)

// GATT characteristics of the thermostat.
const (
	// RequestCharacteristic receives command frames (write with response).
	RequestCharacteristic = "3fa4585a-ce4a-3bad-db4b-b8df8179ea09"

	// NotifyCharacteristic pushes status, serial and program frames.
	NotifyCharacteristic = "d0e8434d-cd29-0996-af41-6c90f4e0eb2a"

	// NameCharacteristic holds the device name string (read only).
	NameCharacteristic = "00002a24-0000-1000-8000-00805f9b34fb"

	// VendorCharacteristic holds the vendor string (read only).
	VendorCharacteristic = "00002a29-0000-1000-8000-00805f9b34fb"
)

// Request op-codes.
const (
	opSerial         byte = 0x00
	opStatus         byte = 0x03
	opSetProgram     byte = 0x10
	opComfortEco     byte = 0x11
	opOffset         byte = 0x13
	opOpenWindow     byte = 0x14
	opRequestProgram byte = 0x20
	opMode           byte = 0x40
	opTemperature    byte = 0x41
	opComfort        byte = 0x43
	opEco            byte = 0x44
	opBoost          byte = 0x45
	opLock           byte = 0x80
	opReset          byte = 0xf0

	modeAutoByte   byte = 0x00
	modeManualByte byte = 0x40
	vacationFlag   byte = 0x80
	flagOn         byte = 0xff
)

// CommandKind names an operation for logging, acks and results.
type CommandKind string

// Supported command kinds.
const (
	KindSetTemperature CommandKind = "set_temperature"
	KindOn             CommandKind = "on"
	KindOff            CommandKind = "off"
	KindComfort        CommandKind = "comfort"
	KindEco            CommandKind = "eco"
	KindModeAuto       CommandKind = "mode_auto"
	KindModeManual     CommandKind = "mode_manual"
	KindBoost          CommandKind = "boost"
	KindLock           CommandKind = "lock"
	KindStatus         CommandKind = "status"
	KindVacation       CommandKind = "vacation"
	KindRequestProgram CommandKind = "request_program"
	KindSetProgram     CommandKind = "set_program"
	KindOffset         CommandKind = "offset"
	KindComfortEco     CommandKind = "comfort_eco"
	KindOpenWindow     CommandKind = "open_window"
	KindReset          CommandKind = "reset"
	KindSerial         CommandKind = "serial"
	KindName           CommandKind = "name"
	KindVendor         CommandKind = "vendor"
)

// Command is an encoded request. Write commands carry one or more frames for
// the request characteristic, written in order before a single settle wait.
// Read commands carry the characteristic to read instead.
type Command struct {
	kind   CommandKind
	frames [][]byte
	read   string
}

// Kind returns the operation name.
func (c Command) Kind() CommandKind { return c.kind }

// Frames returns copies of the request frames.
func (c Command) Frames() [][]byte {
	out := make([][]byte, len(c.frames))
	for i, f := range c.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// ReadCharacteristic returns the characteristic read by this command, or ""
// for write commands.
func (c Command) ReadCharacteristic() string { return c.read }

func write(kind CommandKind, frames ...[]byte) Command {
	return Command{kind: kind, frames: frames}
}

// SetTemperature sets the target temperature (switches to manual hold until
// the next program event when in AUTO).
func SetTemperature(t Temperature) Command {
	return write(KindSetTemperature, []byte{opTemperature, t.Byte()})
}

// TurnOn sets the maximum set point (valve fully open).
func TurnOn() Command {
	return write(KindOn, []byte{opTemperature, TemperatureOn.Byte()})
}

// TurnOff sets the minimum set point (valve closed).
func TurnOff() Command {
	return write(KindOff, []byte{opTemperature, TemperatureOff.Byte()})
}

// ComfortTemperature switches to the configured comfort temperature.
func ComfortTemperature() Command {
	return write(KindComfort, []byte{opComfort})
}

// EcoTemperature switches to the configured eco temperature.
func EcoTemperature() Command {
	return write(KindEco, []byte{opEco})
}

// SetModeAuto follows the weekly program.
func SetModeAuto() Command {
	return write(KindModeAuto, []byte{opMode, modeAutoByte})
}

// SetModeManual holds the current set point.
func SetModeManual() Command {
	return write(KindModeManual, []byte{opMode, modeManualByte})
}

// Boost starts or stops the boost valve cycle.
func Boost(on bool) Command {
	return write(KindBoost, []byte{opBoost, flag(on)})
}

// Lock enables or disables the device keypad lock.
func Lock(on bool) Command {
	var b byte
	if on {
		b = 0x01
	}
	return write(KindLock, []byte{opLock, b})
}

func flag(on bool) byte {
	if on {
		return flagOn
	}
	return 0
}

// RequestStatus asks for a STATUS notification and syncs the device clock
// to now.
func RequestStatus(now time.Time) Command {
	return write(KindStatus, []byte{
		opStatus,
		byte(now.Year() % 100), //nolint:mnd // two-digit year
		byte(now.Month()),
		byte(now.Day()),
		byte(now.Hour()),
		byte(now.Minute()),
		byte(now.Second()),
	})
}

// SetVacation holds temp until the vacation ends.
func SetVacation(temp Temperature, v Vacation) (Command, error) {
	if !v.Active() {
		return Command{}, invalid("vacation", v, "end time required")
	}
	b := v.Bytes()
	return write(KindVacation, []byte{opMode, temp.Byte() + vacationFlag, b[0], b[1], b[2], b[3]}), nil
}

// RequestProgram asks for the program of day; groups and relative days
// produce one frame per weekday.
func RequestProgram(day Day, now time.Time) (Command, error) {
	days := day.Resolve(now)
	if len(days) == 0 {
		return Command{}, invalid("day", day, "unknown day")
	}
	frames := make([][]byte, 0, len(days))
	for _, d := range days {
		frames = append(frames, []byte{opRequestProgram, byte(d)})
	}
	return write(KindRequestProgram, frames...), nil
}

// SetProgram stores p for day; groups and relative days produce one frame
// per weekday.
func SetProgram(day Day, p Program, now time.Time) (Command, error) {
	if len(p.events) == 0 {
		return Command{}, invalid("program", 0, "must contain 1 to %d events", MaxEvents)
	}
	days := day.Resolve(now)
	if len(days) == 0 {
		return Command{}, invalid("day", day, "unknown day")
	}
	body := p.Bytes()
	frames := make([][]byte, 0, len(days))
	for _, d := range days {
		frame := make([]byte, 0, 2+ProgramSize) //nolint:mnd // op-code + day
		frame = append(frame, opSetProgram, byte(d))
		frame = append(frame, body[:]...)
		frames = append(frames, frame)
	}
	return write(KindSetProgram, frames...), nil
}

// SetOffset stores the temperature offset (-3.5 to 3.5).
func SetOffset(offset Temperature) (Command, error) {
	if c := offset.Celsius(); c < -MaxOffset || c > MaxOffset {
		return Command{}, invalid("offset", c, "must be between -%.1f and %.1f", MaxOffset, MaxOffset)
	}
	return write(KindOffset, []byte{opOffset, byte(offset.half + offsetBias)}), nil
}

// SetComfortEco stores the comfort and eco temperatures.
func SetComfortEco(comfort, eco Temperature) Command {
	return write(KindComfortEco, []byte{opComfortEco, comfort.Byte(), eco.Byte()})
}

// SetOpenWindow stores the open-window configuration.
func SetOpenWindow(cfg OpenWindowConfig) Command {
	b := cfg.Bytes()
	return write(KindOpenWindow, []byte{opOpenWindow, b[0], b[1]})
}

// FactoryReset restores factory settings.
func FactoryReset() Command {
	return write(KindReset, []byte{opReset})
}

// RequestSerial asks for a SERIAL notification.
func RequestSerial() Command {
	return write(KindSerial, []byte{opSerial})
}

// RequestName reads the device name characteristic.
func RequestName() Command {
	return Command{kind: KindName, read: NameCharacteristic}
}

// RequestVendor reads the vendor characteristic.
func RequestVendor() Command {
	return Command{kind: KindVendor, read: VendorCharacteristic}
}

// DeviceInfo is the full dump sequence: name, vendor, serial, status and
// the program of every weekday.
func DeviceInfo(now time.Time) []Command {
	program, _ := RequestProgram(Everyday, now) //nolint:errcheck // Everyday always resolves
	return []Command{RequestName(), RequestVendor(), RequestSerial(), RequestStatus(now), program}
}
