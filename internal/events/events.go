// Package events notifies interested parties after a message is committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ActionHeader          = "x-action"
	ActionMessageCreated  = "message.created"
	defaultPublishTimeout = 5 * time.Second
)

// Sink receives committed messages. Sinks run after the store transaction,
// so a failing sink never undoes an append.
type Sink interface {
	MessageCreated(ctx context.Context, conv *models.Conversation, msg *models.Message) error
}

// MessageCreated is the payload published for every new message.
type MessageCreated struct {
	ConversationID string          `json:"conversation_id"`
	LearnerID      int             `json:"learner_id"`
	MentorID       int             `json:"mentor_id"`
	Message        *models.Message `json:"message"`
}

func NewMessageCreated(conv *models.Conversation, msg *models.Message) MessageCreated {
	return MessageCreated{
		ConversationID: conv.ID,
		LearnerID:      conv.LearnerID,
		MentorID:       conv.MentorID,
		Message:        msg,
	}
}

// Fanout delivers to every sink and logs failures.
type Fanout struct {
	sinks []Sink
	log   *logger.Logger
}

func NewFanout(log *logger.Logger, sinks ...Sink) *Fanout {
	f := &Fanout{log: log}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Add(s Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// MessageCreated always returns nil; sink errors are logged.
func (f *Fanout) MessageCreated(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	for _, s := range f.sinks {
		if err := s.MessageCreated(ctx, conv, msg); err != nil && f.log != nil {
			f.log.Warn().
				Err(err).
				Str("conversation_id", conv.ID).
				Str("message_id", msg.ID).
				Str("sink", fmt.Sprintf("%T", s)).
				Msg("event sink failed")
		}
	}
	return nil
}

// Publisher is the part of *amqp.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes message.created events to a queue through the
// default exchange.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel Publisher
	queue   string
	timeout time.Duration
}

// DialAMQP connects to the broker and declares a durable queue.
func DialAMQP(url, queue string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare amqp queue: %w", err)
	}

	p := NewAMQPPublisher(ch, queue)
	p.conn = conn
	return p, nil
}

func NewAMQPPublisher(ch Publisher, queue string) *AMQPPublisher {
	return &AMQPPublisher{channel: ch, queue: queue, timeout: defaultPublishTimeout}
}

func (p *AMQPPublisher) MessageCreated(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	body, err := json.Marshal(NewMessageCreated(conv, msg))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    msg.ID,
			Timestamp:    msg.CreatedAt,
			Headers: amqp.Table{
				ActionHeader: ActionMessageCreated,
			},
			Body: body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
