package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/eqiva-core/internal/bridges/eqiva"
)

var (
	eqivaThermostatTemperature = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "thermostat", "target_temp_celsius"),
		"Last reported set point in degrees celsius",
		[]string{"address", "alias"},
		nil,
	)
	eqivaThermostatValve = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "thermostat", "valve_percentage"),
		"Last reported valve opening in percentage (0-100)",
		[]string{"address", "alias"},
		nil,
	)
	eqivaThermostatMode = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "thermostat", "mode"),
		"Mode flags of the thermostat. Always 1. Label mode lists the active flags",
		[]string{"address", "alias", "mode"},
		nil,
	)
	eqivaThermostatBatteryLow = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "thermostat", "battery_low"),
		"1 if the thermostat reports a low battery",
		[]string{"address", "alias"},
		nil,
	)
	eqivaThermostatLastSeen = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "thermostat", "last_seen_timestamp_seconds"),
		"Unix time of the last state received from the thermostat",
		[]string{"address", "alias"},
		nil,
	)
	eqivaThermostats = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "", "thermostats"),
		"Number of registered thermostats",
		nil,
		nil,
	)
	eqivaRequests = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "controller", "requests_total"),
		"Commands executed by the controller",
		nil,
		nil,
	)
	eqivaRequestsFailed = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "controller", "requests_failed_total"),
		"Commands that failed for at least one thermostat",
		nil,
		nil,
	)
	eqivaDevicesUpdated = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "controller", "device_updates_total"),
		"Device states produced by the controller",
		nil,
		nil,
	)
	eqivaWebSocketClients = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "websocket", "clients"),
		"Connected WebSocket clients",
		nil,
		nil,
	)
	eqivaWebSocketDropped = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "websocket", "dropped_events_total"),
		"Events discarded because a client's send queue was full",
		nil,
		nil,
	)
	eqivaMQTTConnected = prometheus.NewDesc(
		prometheus.BuildFQName("eqiva", "mqtt", "connected"),
		"1 if the MQTT broker connection is up",
		nil,
		nil,
	)
)

// collector exports the registry and controller counters on every scrape.
type collector struct {
	server *Server
}

// Describe implements prometheus.Collector.
func (c collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- eqivaThermostatTemperature
	ch <- eqivaThermostatValve
	ch <- eqivaThermostatMode
	ch <- eqivaThermostatBatteryLow
	ch <- eqivaThermostatLastSeen
	ch <- eqivaThermostats
	ch <- eqivaRequests
	ch <- eqivaRequestsFailed
	ch <- eqivaDevicesUpdated
	ch <- eqivaWebSocketClients
	ch <- eqivaWebSocketDropped
	ch <- eqivaMQTTConnected
}

// Collect implements prometheus.Collector.
func (c collector) Collect(ch chan<- prometheus.Metric) {
	s := c.server
	list := s.registry.List(context.Background())
	ch <- prometheus.MustNewConstMetric(eqivaThermostats, prometheus.GaugeValue, float64(len(list)))

	for i := range list {
		t := &list[i]
		if t.LastSeen != nil {
			ch <- prometheus.MustNewConstMetric(eqivaThermostatLastSeen, prometheus.GaugeValue,
				float64(t.LastSeen.Unix()), t.Address, t.Alias)
		}
		if t.Mode == nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(eqivaThermostatMode, prometheus.GaugeValue, 1,
			t.Address, t.Alias, t.Mode.String())
		ch <- prometheus.MustNewConstMetric(eqivaThermostatBatteryLow, prometheus.GaugeValue,
			boolValue(t.Mode.Has(eqiva.ModeBatteryLow)), t.Address, t.Alias)
		if t.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(eqivaThermostatTemperature, prometheus.GaugeValue,
				*t.Temperature, t.Address, t.Alias)
		}
		if t.Valve != nil {
			ch <- prometheus.MustNewConstMetric(eqivaThermostatValve, prometheus.GaugeValue,
				float64(*t.Valve), t.Address, t.Alias)
		}
	}

	stats := s.controller.Stats()
	ch <- prometheus.MustNewConstMetric(eqivaRequests, prometheus.CounterValue, float64(stats.Requests))
	ch <- prometheus.MustNewConstMetric(eqivaRequestsFailed, prometheus.CounterValue, float64(stats.Failed))
	ch <- prometheus.MustNewConstMetric(eqivaDevicesUpdated, prometheus.CounterValue, float64(stats.DevicesUpdated))
	ch <- prometheus.MustNewConstMetric(eqivaWebSocketClients, prometheus.GaugeValue, float64(s.hub.ClientCount()))
	ch <- prometheus.MustNewConstMetric(eqivaWebSocketDropped, prometheus.CounterValue, float64(s.hub.Dropped()))
	if s.mqtt != nil {
		ch <- prometheus.MustNewConstMetric(eqivaMQTTConnected, prometheus.GaugeValue, boolValue(s.mqtt.IsConnected()))
	}
}

// metricsHandler serves the thermostat collector, Go runtime metrics and
// extra from a private registry.
func (s *Server) metricsHandler(extra ...prometheus.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector{server: s},
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(extra...)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
