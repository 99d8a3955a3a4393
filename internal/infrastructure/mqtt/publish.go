package mqtt

import "fmt"

// maxPayloadSize is the maximum payload size accepted for publishing (256 KB).
// Keyword and status payloads are small; anything larger indicates a bug.
const maxPayloadSize = 256 * 1024

// Publish sends a message to the specified topic.
//
// Parameters:
//   - topic: Target topic (e.g., "obscore/command/telescope")
//   - payload: Message payload (typically JSON)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether broker should retain the message for new subscribers
//
// Returns:
//   - error: ErrNotConnected, ErrInvalidTopic, ErrInvalidQoS, ErrTimeout,
//     or ErrPublishFailed wrapped with details
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: got %d", ErrInvalidQoS, qos)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: publish to %s", ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, err)
	}

	return nil
}

// PublishString is a convenience wrapper for publishing string payloads.
func (c *Client) PublishString(topic, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// PublishRetained publishes a retained message at the configured default QoS.
//
// Retained messages are delivered to new subscribers immediately on subscribe,
// making them suitable for state topics (device status, current keyword values).
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
