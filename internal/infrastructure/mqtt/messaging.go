package mqtt

import (
	"fmt"
	"slices"
)

// Publish sends payload to topic and waits for the broker's acknowledgement.
// State and health topics are published retained; command acks are not.
//
// Parameters:
//   - topic: A concrete topic such as "eqiva/state/00-1A-22-0A-0B-01"
//   - payload: Message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for later subscribers
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected or a wrapped
//     ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, true); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// Subscribe registers handler for a topic filter ("eqiva/command/#").
// The subscription is remembered and renewed after every reconnect; a
// filter that the broker refuses is forgotten again.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := checkTopic(filter, false); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	sub := subscription{filter: filter, qos: qos, handler: handler}
	c.mu.Lock()
	c.subs[filter] = sub
	c.mu.Unlock()

	if err := await(c.paho.Subscribe(filter, qos, c.dispatch(handler)), ErrSubscribeFailed); err != nil {
		c.mu.Lock()
		delete(c.subs, filter)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe drops filter locally and at the broker. Messages already in
// flight may still reach the old handler.
func (c *Client) Unsubscribe(filter string) error {
	if err := checkTopic(filter, false); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.subs, filter)
	c.mu.Unlock()

	if !c.IsConnected() {
		// Nothing to tell the broker; a clean session forgets it on reconnect.
		return nil
	}
	return await(c.paho.Unsubscribe(filter), ErrSubscribeFailed)
}

// Filters returns the tracked subscription filters in sorted order.
func (c *Client) Filters() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for f := range c.subs {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
