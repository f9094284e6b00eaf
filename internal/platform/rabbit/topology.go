package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueSpec declares one durable ingress queue and its dead-letter route.
type QueueSpec struct {
	Name       string
	MaxLength  int64 // queue length bound before the broker starts dead-lettering
	MessageTTL int64 // per-message TTL in milliseconds
}

// DeduplicationQueue is the single ingress queue all source types publish
// into.
const DeduplicationQueue = "deduplication"

// DefaultQueueSpecs returns the broker topology the ingestion side relies
// on. Expired or rejected messages route to "<queue>.dlq" via a per-queue
// dead-letter exchange.
func DefaultQueueSpecs() []QueueSpec {
	return []QueueSpec{
		{
			Name:       DeduplicationQueue,
			MaxLength:  1_000_000,
			MessageTTL: 24 * 60 * 60 * 1000, // 1 day
		},
	}
}

// DeclareTopology declares queues, dead-letter exchanges and dead-letter
// queues. Declarations are idempotent on the broker side, so this is safe to
// run at every startup.
func (p *Publisher) DeclareTopology(specs []QueueSpec) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	for _, spec := range specs {
		dlx := spec.Name + ".dlx"
		dlq := spec.Name + ".dlq"

		if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", dlx, err)
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, spec.Name, dlx, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", dlq, dlx, err)
		}

		args := amqp.Table{
			"x-max-length":              spec.MaxLength,
			"x-message-ttl":             spec.MessageTTL,
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": spec.Name,
		}
		if _, err := ch.QueueDeclare(spec.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", spec.Name, err)
		}

		p.log.Info("declared queue topology",
			"queue", spec.Name,
			"dead_letter_queue", dlq,
			"max_length", spec.MaxLength,
			"message_ttl_ms", spec.MessageTTL,
		)
	}
	return nil
}
