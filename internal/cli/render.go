package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

// programOrder lists the device weekdays Monday first.
var programOrder = []eqiva.Day{
	eqiva.Monday, eqiva.Tuesday, eqiva.Wednesday, eqiva.Thursday, eqiva.Friday,
	eqiva.Saturday, eqiva.Sunday,
}

// render writes states in the requested format, ordered by address.
func render(w io.Writer, format string, states map[string]eqiva.DeviceState) error {
	ordered := make([]eqiva.DeviceState, 0, len(states))
	for _, st := range states {
		ordered = append(ordered, st)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Address < ordered[j].Address })

	switch format {
	case OutputNone:
		return nil
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ordered)
	case OutputCommands:
		blocks := make([]string, len(ordered))
		for i, st := range ordered {
			blocks[i] = strings.Join(commandLines(st), "\n")
		}
		_, err := fmt.Fprintln(w, strings.Join(blocks, "\n\n"))
		return err
	default:
		blocks := make([]string, len(ordered))
		for i, st := range ordered {
			blocks[i] = strings.Join(humanLines(st), "\n")
		}
		_, err := fmt.Fprintln(w, strings.Join(blocks, "\n\n"))
		return err
	}
}

func humanTemp(t *eqiva.Temperature) string {
	if t == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C (%.1f°F)", t.Celsius(), t.Fahrenheit())
}

func commandTemp(t *eqiva.Temperature) string {
	if t == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", t.Celsius())
}

func humanModes(m eqiva.Mode) string {
	labels := m.Labels()
	for i, l := range labels {
		labels[i] = strings.ToLower(strings.ReplaceAll(l, "_", " "))
	}
	return strings.Join(labels, ", ")
}

// humanLines renders the "print" view of one thermostat.
func humanLines(st eqiva.DeviceState) []string {
	lines := []string{"", "Thermostat " + st.Address}
	if st.Name != "" {
		lines = append(lines, "  Name:                "+st.Name)
	}
	if st.Vendor != "" {
		lines = append(lines, "  Vendor:              "+st.Vendor)
	}
	if st.Serial != "" {
		lines = append(lines,
			"  Serial no.:          "+st.Serial,
			fmt.Sprintf("  Firmware:            %.2f", st.Firmware))
	}

	if st.Mode != nil {
		vacation := "off"
		if st.Vacation.Active() {
			vacation = humanTemp(st.Temperature) + " until " + st.Vacation.String()
		}
		valve := "n/a"
		if st.Valve != nil {
			valve = fmt.Sprintf("%d%%", *st.Valve)
		}
		openWindow := "n/a"
		if st.OpenWindow != nil {
			t := st.OpenWindow.Temperature()
			openWindow = fmt.Sprintf("%s for %d minutes", humanTemp(&t), st.OpenWindow.Minutes())
		}
		lines = append(lines,
			"  Modes:               "+humanModes(*st.Mode),
			"  Temperature:         "+humanTemp(st.Temperature),
			"  Vacation:            "+vacation,
			"  Valve:               "+valve,
			"",
			"  Comfort temperature: "+humanTemp(st.Comfort),
			"  Eco temperature:     "+humanTemp(st.Eco),
			"  Open window mode:    "+openWindow,
			"  Offset temperature:  "+humanTemp(st.Offset),
			"",
		)
	}

	for _, d := range programOrder {
		p, ok := st.Program(d)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("  Program on %s:", d.LongName()))
		for _, e := range p.ActiveEvents() {
			t := e.Temperature()
			lines = append(lines, fmt.Sprintf("    %s until %s", humanTemp(&t), e.Until()))
		}
		lines = append(lines, "")
	}
	return lines
}

// commandLines renders one thermostat as eqiva invocations that restore its
// configuration.
func commandLines(st eqiva.DeviceState) []string {
	prefix := "eqiva -t " + st.Address + " "
	var lines []string

	if st.Mode != nil {
		m := *st.Mode
		mode := "manual"
		if m.Has(eqiva.ModeAuto) {
			mode = "auto"
		}
		lines = append(lines,
			prefix+"mode "+mode,
			prefix+"boost "+onOffWord(m.Has(eqiva.ModeBoost)),
			prefix+"lock "+onOffWord(m.Has(eqiva.ModeLocked)),
			prefix+"temp "+commandTemp(st.Temperature),
		)
		if st.Vacation.Active() {
			lines = append(lines, prefix+"vacation "+st.Vacation.String()+" "+commandTemp(st.Temperature))
		}
		if st.Extended {
			ow := "n/a"
			if st.OpenWindow != nil {
				t := st.OpenWindow.Temperature()
				ow = fmt.Sprintf("%s %d", commandTemp(&t), st.OpenWindow.Minutes())
			}
			offset := commandTemp(st.Offset)
			if st.Offset != nil && st.Offset.Celsius() < 0 {
				offset = "-- " + offset
			}
			lines = append(lines,
				prefix+"comforteco "+commandTemp(st.Comfort)+" "+commandTemp(st.Eco),
				prefix+"openwindow "+ow,
				prefix+"offset "+offset,
			)
		}
	}

	for _, d := range programOrder {
		p, ok := st.Program(d)
		if !ok {
			continue
		}
		words := []string{prefix + "program", d.String()}
		for _, e := range p.ActiveEvents() {
			t := e.Temperature()
			words = append(words, commandTemp(&t))
			if e.Hour() != 24 { //nolint:mnd // end-of-day terminator
				words = append(words, e.Until())
			}
		}
		lines = append(lines, strings.Join(words, " "))
	}
	return lines
}

func onOffWord(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
