package eqiva

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	vacationStep    = 30 * time.Minute
	vacationMinYear = 2000
	vacationMaxYear = 2255

	// VacationTimeLayout is the display format of a vacation end.
	VacationTimeLayout = "2006-01-02 15:04"
)

// Vacation is an optional end time for a vacation override, floored to a
// 30-minute boundary. The zero value means no vacation.
type Vacation struct {
	until time.Time
}

// NoVacation is the inactive vacation.
var NoVacation = Vacation{}

// NewVacation floors until to the previous 30-minute boundary (seconds
// dropped) in until's location.
func NewVacation(until time.Time) (Vacation, error) {
	if until.IsZero() {
		return Vacation{}, invalid("vacation", until, "end time required")
	}
	if y := until.Year(); y < vacationMinYear || y > vacationMaxYear {
		return Vacation{}, invalid("vacation", until.Format(VacationTimeLayout),
			"year must be between %d and %d", vacationMinYear, vacationMaxYear)
	}
	floored := time.Date(until.Year(), until.Month(), until.Day(),
		until.Hour(), until.Minute()-until.Minute()%30, 0, 0, until.Location()) //nolint:mnd // half hours
	return Vacation{until: floored}, nil
}

// VacationFromBytes decodes [day, year-2000, hour*2+minute/30, month] in the
// local time zone. A zero day byte yields NoVacation.
func VacationFromBytes(b []byte) (Vacation, error) {
	if len(b) < 4 { //nolint:mnd // vacation wire size
		return Vacation{}, &ProtocolError{Frame: b, Reason: "vacation needs 4 bytes"}
	}
	day, year, slot, month := int(b[0]), int(b[1]), int(b[2]), int(b[3])
	if day == 0 {
		return NoVacation, nil
	}
	if month < 1 || month > 12 || day > 31 || slot >= 48 { //nolint:mnd // calendar bounds
		return Vacation{}, &ProtocolError{Frame: b, Reason: "vacation date out of range"}
	}
	return Vacation{until: time.Date(vacationMinYear+year, time.Month(month), day,
		slot/2, slot%2*30, 0, 0, time.Local)}, nil //nolint:mnd // half-hour slots
}

// Active reports whether a vacation end is set.
func (v Vacation) Active() bool { return !v.until.IsZero() }

// Until returns the vacation end (zero time when inactive).
func (v Vacation) Until() time.Time { return v.until }

// Bytes returns the wire form; an inactive vacation encodes as zeros.
func (v Vacation) Bytes() [4]byte {
	if !v.Active() {
		return [4]byte{}
	}
	u := v.until
	return [4]byte{
		byte(u.Day()),
		byte(u.Year() - vacationMinYear),
		byte(u.Hour()*2 + u.Minute()/30), //nolint:mnd // half-hour slots
		byte(u.Month()),
	}
}

func (v Vacation) String() string {
	if !v.Active() {
		return "off"
	}
	return v.until.Format(VacationTimeLayout)
}

// MarshalJSON renders {"until": "2006-01-02 15:04"} or null when inactive.
func (v Vacation) MarshalJSON() ([]byte, error) {
	if !v.Active() {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]string{"until": v.String()})
}

// UnmarshalJSON reads the MarshalJSON form in the local time zone.
func (v *Vacation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = NoVacation
		return nil
	}
	var raw struct {
		Until string `json:"until"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	until, err := time.ParseInLocation(VacationTimeLayout, raw.Until, time.Local)
	if err != nil {
		return invalid("vacation", raw.Until, "want %s", VacationTimeLayout)
	}
	parsed, err := NewVacation(until)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// OpenWindow limits.
const (
	// MaxOpenWindowMinutes is the longest open-window duration.
	MaxOpenWindowMinutes = 995

	openWindowStep = 5
)

// OpenWindowConfig is the temperature held for a duration after the device
// detects an open window.
type OpenWindowConfig struct {
	temp    Temperature
	minutes uint16
}

// NewOpenWindowConfig validates minutes (0-995, multiple of 5).
func NewOpenWindowConfig(temp Temperature, minutes int) (OpenWindowConfig, error) {
	if minutes < 0 || minutes > MaxOpenWindowMinutes || minutes%openWindowStep != 0 {
		return OpenWindowConfig{}, invalid("minutes", minutes, "must be 0 to %d in steps of 5", MaxOpenWindowMinutes)
	}
	return OpenWindowConfig{temp: temp, minutes: uint16(minutes)}, nil
}

// OpenWindowFromBytes decodes [temperature, minutes/5].
func OpenWindowFromBytes(temp, slots byte) OpenWindowConfig {
	return OpenWindowConfig{temp: TemperatureFromByte(temp), minutes: uint16(slots) * openWindowStep}
}

// Temperature returns the open-window temperature.
func (o OpenWindowConfig) Temperature() Temperature { return o.temp }

// Minutes returns the open-window duration.
func (o OpenWindowConfig) Minutes() int { return int(o.minutes) }

// Bytes returns the wire form.
func (o OpenWindowConfig) Bytes() [2]byte {
	return [2]byte{o.temp.Byte(), byte(o.minutes / openWindowStep)}
}

func (o OpenWindowConfig) String() string {
	return fmt.Sprintf("%s for %d minutes", o.temp, o.minutes)
}

// MarshalJSON renders {"temperature": {...}, "minutes": 15}.
func (o OpenWindowConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Temperature Temperature `json:"temperature"`
		Minutes     int         `json:"minutes"`
	}{o.temp, o.Minutes()})
}

// UnmarshalJSON reads the MarshalJSON form.
func (o *OpenWindowConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Temperature Temperature `json:"temperature"`
		Minutes     int         `json:"minutes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := NewOpenWindowConfig(raw.Temperature, raw.Minutes)
	if err != nil {
		return err
	}
	*o = cfg
	return nil
}
