package mqtt

import (
	"errors"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: QoS must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: invalid topic")

	// ErrTimeout is wrapped together with the operation's own error when the
	// broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt: no acknowledgement")
)

// checkTopic rejects empty topics and, for publishes, wildcards.
func checkTopic(topic string, publish bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if publish && strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: %d bytes", ErrInvalidTopic, len(topic))
	}
	return nil
}

// await waits up to ackTimeout for tok and wraps any failure in op.
func await(tok pahomqtt.Token, op error) error {
	if !tok.WaitTimeout(ackTimeout) {
		return fmt.Errorf("%w: %w after %v", op, ErrTimeout, ackTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}
