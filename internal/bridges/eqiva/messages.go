package eqiva

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MQTT message types exchanged between controllers and the eqiva bridge.

// Protocol is the protocol identifier carried in acks and state messages.
const Protocol = "eqiva"

// CommandMessage asks the bridge to run a command on one or more thermostats.
// Topic: eqiva/command/{address}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the caller's identifier for the target (optional).
	DeviceID string `json:"device_id,omitempty"`

	// Command is one of the Command* names (e.g. "set_temperature", "boost").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"temperature": 21.5} for set_temperature
	//   {"day": "mon", "events": [{"temperature": 19, "until": "06:00"}]} for program
	Parameters map[string]any `json:"parameters,omitempty"`

	// Targets overrides the topic address with several addresses or aliases.
	Targets []string `json:"targets,omitempty"`

	// Source indicates where the command originated ("mqtt", "api", "poller").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command reached the device.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the run did not finish within the command timeout.
	AckTimeout AckStatus = "timeout"
)

// AckMessage reports the outcome of a command for one address.
// Topic: eqiva/ack/{address}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is one of the Code* constants (e.g. "DEVICE_UNREACHABLE").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// StateMessage carries the last known state of a thermostat.
// Topic: eqiva/state/{address}
// QoS: 1, Retained: Yes
type StateMessage struct {
	Timestamp time.Time   `json:"timestamp"`
	Protocol  string      `json:"protocol"`
	Address   string      `json:"address"`
	State     DeviceState `json:"state"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates recent runs failed for every device.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: eqiva/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version,omitempty"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	DevicesManaged int               `json:"devices_managed"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
}

// MarshalJSON renders the timestamp as RFC 3339.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON accepts an RFC 3339 timestamp or none.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an accepted acknowledgment for address.
func NewAckMessage(cmd CommandMessage, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgment carrying err's code.
func NewAckError(cmd CommandMessage, address string, err error) AckMessage {
	code := ErrorCode(err)
	status := AckFailed
	if code == CodeTimeout {
		status = AckTimeout
	}
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
		Error:     &AckError{Code: code, Message: err.Error()},
	}
}

// NewStateMessage wraps a device snapshot for publishing.
func NewStateMessage(state DeviceState) StateMessage {
	return StateMessage{
		Timestamp: time.Now().UTC(),
		Protocol:  Protocol,
		Address:   state.Address,
		State:     state,
	}
}

// NewLWTMessage creates the Last Will and Testament published by the broker
// if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// TopicPrefix is the base topic for all bridge messages.
const TopicPrefix = "eqiva"

// CommandTopic returns the command topic for an address or alias.
// Example: eqiva/command/00-1A-22-0A-0B-0C
func CommandTopic(target string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, EncodeTopicAddress(target))
}

// AckTopic returns the acknowledgment topic for an address.
func AckTopic(address string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, EncodeTopicAddress(address))
}

// StateTopic returns the retained state topic for an address.
func StateTopic(address string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, EncodeTopicAddress(address))
}

// HealthTopic returns the retained health topic.
func HealthTopic() string {
	return TopicPrefix + "/health"
}

// CommandSubscribeTopic returns the subscription pattern for all commands.
func CommandSubscribeTopic() string {
	return TopicPrefix + "/command/#"
}

// StateSubscribeTopic returns the subscription pattern for all states.
func StateSubscribeTopic() string {
	return TopicPrefix + "/state/#"
}

// EncodeTopicAddress replaces the ':' separators of a MAC address with '-'.
// Example: "00:1A:22:0A:0B:0C" → "00-1A-22-0A-0B-0C"
func EncodeTopicAddress(address string) string {
	return strings.ReplaceAll(address, ":", "-")
}

// DecodeTopicAddress reverses EncodeTopicAddress for MAC addresses. Other
// tokens (aliases, advertised names) are returned unchanged.
func DecodeTopicAddress(encoded string) string {
	if IsEqivaAddress(encoded) {
		return NormalizeAddress(encoded)
	}
	return encoded
}
