package eqiva

import (
	"encoding/json"
	"fmt"
)

// Schedule limits.
const (
	// MaxEvents is the number of event slots in one day program.
	MaxEvents = 7

	// ProgramSize is the wire size of a day program.
	ProgramSize = MaxEvents * 2

	// EndOfDay is the terminating event hour.
	EndOfDay = 24

	slotsPerHour   = 6
	minutesPerSlot = 10
)

// Event is one schedule transition: hold Temperature until Hour:Minute.
type Event struct {
	temp   Temperature
	hour   uint8
	minute uint8
}

// NewEvent validates a schedule transition.
//
// Parameters:
//   - temp: Temperature to hold until the given time
//   - hour: 0-24 (24 closes the day)
//   - minute: 0-50 in steps of 10 (must be 0 when hour is 24)
func NewEvent(temp Temperature, hour, minute int) (Event, error) {
	if hour < 0 || hour > EndOfDay {
		return Event{}, invalid("hour", hour, "must be between 0 and 24")
	}
	if minute < 0 || minute > 50 || minute%minutesPerSlot != 0 {
		return Event{}, invalid("minute", minute, "must be one of 0, 10, 20, 30, 40, 50")
	}
	if hour == EndOfDay && minute != 0 {
		return Event{}, invalid("minute", minute, "must be 0 at 24:00")
	}
	return Event{temp: temp, hour: uint8(hour), minute: uint8(minute)}, nil
}

func eventFromBytes(temp, slot byte) (Event, error) {
	hour := int(slot) / slotsPerHour
	minute := int(slot) % slotsPerHour * minutesPerSlot
	e, err := NewEvent(TemperatureFromByte(temp), hour, minute)
	if err != nil {
		return Event{}, fmt.Errorf("event slot %#02x: %w", slot, err)
	}
	return e, nil
}

// Temperature returns the held temperature.
func (e Event) Temperature() Temperature { return e.temp }

// Hour returns the end hour.
func (e Event) Hour() int { return int(e.hour) }

// Minute returns the end minute.
func (e Event) Minute() int { return int(e.minute) }

// Until returns the end time as "HH:MM".
func (e Event) Until() string {
	return fmt.Sprintf("%02d:%02d", e.hour, e.minute)
}

// IsSet reports whether the slot carries a transition (hour 0 means unset).
func (e Event) IsSet() bool { return e.hour != 0 }

// Bytes returns the wire form [temperature, hour*6 + minute/10].
func (e Event) Bytes() [2]byte {
	return [2]byte{e.temp.Byte(), e.hour*slotsPerHour + e.minute/minutesPerSlot}
}

// MarshalJSON renders {"temperature": {...}, "until": "HH:MM"}.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Temperature Temperature `json:"temperature"`
		Until       string      `json:"until"`
	}{e.temp, e.Until()})
}

// UnmarshalJSON reads the MarshalJSON form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Temperature Temperature `json:"temperature"`
		Until       string      `json:"until"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var hour, minute int
	if _, err := fmt.Sscanf(raw.Until, "%d:%d", &hour, &minute); err != nil {
		return invalid("until", raw.Until, "want HH:MM")
	}
	ev, err := NewEvent(raw.Temperature, hour, minute)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("%s until %s", e.temp, e.Until())
}

// Program is the schedule of one weekday: up to seven events in order.
type Program struct {
	events []Event
}

// NewProgram builds a program from 1-7 events.
func NewProgram(events ...Event) (Program, error) {
	if len(events) == 0 || len(events) > MaxEvents {
		return Program{}, invalid("program", len(events), "must contain 1 to %d events", MaxEvents)
	}
	return Program{events: append([]Event(nil), events...)}, nil
}

// ProgramFromBytes decodes the 14-byte wire form. All seven slots are read;
// slots with hour 0 are kept but reported as unset by Event.IsSet.
func ProgramFromBytes(b []byte) (Program, error) {
	if len(b) < ProgramSize {
		return Program{}, &ProtocolError{Frame: b, Reason: fmt.Sprintf("program needs %d bytes, got %d", ProgramSize, len(b))}
	}
	events := make([]Event, 0, MaxEvents)
	for i := 0; i < ProgramSize; i += 2 {
		e, err := eventFromBytes(b[i], b[i+1])
		if err != nil {
			return Program{}, &ProtocolError{Frame: b, Reason: err.Error()}
		}
		events = append(events, e)
	}
	return Program{events: events}, nil
}

// Events returns a copy of every event slot.
func (p Program) Events() []Event {
	return append([]Event(nil), p.events...)
}

// ActiveEvents returns the events that carry a transition.
func (p Program) ActiveEvents() []Event {
	active := make([]Event, 0, len(p.events))
	for _, e := range p.events {
		if e.IsSet() {
			active = append(active, e)
		}
	}
	return active
}

// Bytes returns the 14-byte wire form, zero padded.
func (p Program) Bytes() [ProgramSize]byte {
	var out [ProgramSize]byte
	for i, e := range p.events {
		b := e.Bytes()
		out[2*i] = b[0]
		out[2*i+1] = b[1]
	}
	return out
}

// MarshalJSON renders the active events as an array.
func (p Program) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ActiveEvents())
}

// UnmarshalJSON reads the MarshalJSON form: up to seven events.
func (p *Program) UnmarshalJSON(data []byte) error {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return err
	}
	if len(events) > MaxEvents {
		return invalid("program", len(events), "must contain at most %d events", MaxEvents)
	}
	p.events = events
	return nil
}
