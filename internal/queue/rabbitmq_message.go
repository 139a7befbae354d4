package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded job plus the delivery needed to settle it.
type Message struct {
	Job         *Job
	DeliveryTag uint64
	Channel     *amqp.Channel
}

var _ MessageInterface = (*Message)(nil)

// Ack removes the job from the work queue.
func (m *Message) Ack() error {
	return m.Channel.Ack(m.DeliveryTag, false)
}

// Nack returns the job to the work queue when requeue is set and routes it
// to the dead-letter queue otherwise.
func (m *Message) Nack(requeue bool) error {
	return m.Channel.Nack(m.DeliveryTag, false, requeue)
}

// GetJob returns nil when the body could not be decoded.
func (m *Message) GetJob() *Job {
	return m.Job
}
