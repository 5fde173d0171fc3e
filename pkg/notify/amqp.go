package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// message is the JSON document published for downstream consumers.
type message struct {
	Notification
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AMQP publishes notifications as JSON to the queue named by an
// "amqp:<queue>" channel.
type AMQP struct {
	conn *amqp.Connection
	ch   publisher
}

func DialAMQP(url string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	return &AMQP{conn: conn, ch: ch}, nil
}

func (a *AMQP) Notify(ctx context.Context, n Notification) error {
	queue := strings.TrimPrefix(n.Channel, "amqp:")
	if queue == "" {
		return fmt.Errorf("empty amqp queue in %q", n.Channel)
	}

	body, err := json.Marshal(message{Notification: n, Title: Title(n), Body: Body(n)})
	if err != nil {
		return err
	}

	return a.ch.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   n.SentAt,
			Body:        body,
		},
	)
}

func (a *AMQP) Close() error {
	if c, ok := a.ch.(*amqp.Channel); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
