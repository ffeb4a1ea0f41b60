package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/eqiva-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second

	// quiesceMillis is how long Disconnect lets pending work drain.
	quiesceMillis = 1000

	maxQoS         = 2
	maxPayloadSize = 1 << 20
	maxTopicLength = 65535

	defaultRetryInterval = 2 * time.Second
	defaultMaxReconnect  = 2 * time.Minute
)

// brokerURL renders the broker address, switching to ssl:// for TLS.
func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// seconds converts a config value in seconds, using def when unset.
func seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

// buildClientOptions maps the mqtt config section onto paho options. The
// session is clean; subscriptions are renewed by the Client itself.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay, defaultRetryInterval)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay, defaultMaxReconnect)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// Will is the message the broker publishes for this client when the
// connection drops without a clean disconnect. The eqiva bridge uses it to
// flip its retained health topic to "offline".
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func (w *Will) apply(opts *pahomqtt.ClientOptions) {
	if w == nil || w.Topic == "" {
		return
	}
	opts.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retained)
}
