// Package mqtt wraps the paho client for the eqiva bridge.
//
// Client owns one broker session. Paho reconnects on its own; on every
// (re)connect Client renews the filters registered with Subscribe, so
// callers subscribe once at startup. A Will, when given to Connect, is
// the retained offline marker the broker publishes if the daemon dies.
//
// Publish and Subscribe block for at most ackTimeout waiting for the
// broker. A missing acknowledgement is reported as ErrTimeout wrapped in
// ErrPublishFailed or ErrSubscribeFailed. Publish topics may not contain
// wildcards.
//
// Handlers run on paho's delivery goroutine. A handler that returns an
// error or panics is logged through SetLogger and does not stop delivery.
//
// The package knows nothing about the eqiva/ topic tree; that lives in
// internal/bridges/eqiva.
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
//	    Topic:    eqiva.HealthTopic(),
//	    Payload:  offline,
//	    QoS:      cfg.MQTT.QoSLevel(),
//	    Retained: true,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(eqiva.CommandSubscribeTopic(), 1,
//	    func(topic string, payload []byte) error {
//	        return route(topic, payload)
//	    })
package mqtt
