// Package thermostat keeps the catalogue of known Eqiva thermostats and the
// log of commands sent to them.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                         thermostat                               │
//	│                                                                  │
//	│  ┌──────────────────┐    ┌──────────────────┐                    │
//	│  │     Registry     │    │    Repository    │                    │
//	│  │  (registry.go)   │───▶│ (repository.go)  │──▶ thermostats     │
//	│  │ • cache          │    │ • SQLite upsert  │                    │
//	│  │ • RecordState    │    └──────────────────┘                    │
//	│  │ • HomeKit view   │                                            │
//	│  └──────────────────┘    ┌──────────────────┐                    │
//	│                          │   CommandLog     │──▶ command_log     │
//	│                          │ (commandlog.go)  │                    │
//	│                          └──────────────────┘                    │
//	└──────────────────────────────────────────────────────────────────┘
//
// The Registry implements eqiva.StateRecorder, so every state produced by the
// MQTT bridge, the poller or the HTTP API lands here. It also lists addresses
// for the poller. CommandLog implements eqiva.CommandLogger.
//
// # Usage
//
//	repo := thermostat.NewSQLiteRepository(db.DB)
//	registry := thermostat.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	controller, _ := eqiva.NewController(eqiva.ControllerOptions{
//	    Runner:     runner,
//	    Recorders:  []eqiva.StateRecorder{registry},
//	    CommandLog: thermostat.NewCommandLog(db.DB),
//	})
//
// # Thread Safety
//
// Registry and CommandLog are safe for concurrent use.
package thermostat
