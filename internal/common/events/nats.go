// Package events connects the notifier to the document change feed on NATS.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"group-notifier/internal/common/logger"

	natspkg "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// maxNakShift bounds the redelivery delay at NakDelay * 32.
const maxNakShift = 5

// MessageHandler handles one message payload. Returning nil acknowledges the
// message, a Permanent error terminates it and any other error asks JetStream
// to redeliver it later.
type MessageHandler func(ctx context.Context, data []byte) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that redelivery cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ConsumerConfig describes the durable pull consumer the feed is read with.
type ConsumerConfig struct {
	Stream     string
	Subject    string
	Durable    string
	AckWait    time.Duration
	NakDelay   time.Duration
	MaxDeliver int
}

type Client struct {
	nc     *natspkg.Conn
	logger logger.Logger
}

// NewClient connects with unlimited reconnects so a broker restart does not
// end the subscription.
func NewClient(url, name string, log logger.Logger) (*Client, error) {
	log = log.WithFields(map[string]interface{}{"component": "nats"})

	nc, err := natspkg.Connect(url,
		natspkg.Name(name),
		natspkg.MaxReconnects(-1),
		natspkg.ReconnectWait(2*time.Second),
		natspkg.DisconnectErrHandler(func(_ *natspkg.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		natspkg.ReconnectHandler(func(c *natspkg.Conn) {
			log.Info("nats reconnected", map[string]interface{}{"url": c.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &Client{nc: nc, logger: log}, nil
}

// Close drains subscriptions before closing so in-flight handlers finish.
func (c *Client) Close() {
	if c.nc == nil {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
	}
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// Ping reports whether the connection is usable.
func (c *Client) Ping(_ context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Consume binds a durable consumer on cfg.Stream, creating the stream if it
// does not exist, and feeds every message to handler. Instances sharing
// cfg.Durable split the messages between them.
func (c *Client) Consume(ctx context.Context, cfg ConsumerConfig, handler MessageHandler) (jetstream.ConsumeContext, error) {
	if c.nc == nil {
		return nil, fmt.Errorf("nats not connected")
	}
	js, err := jetstream.New(c.nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream, err := js.Stream(ctx, cfg.Stream)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			Storage:  jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("stream %s: %w", cfg.Stream, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("consumer %s: %w", cfg.Durable, err)
	}

	return consumer.Consume(func(msg jetstream.Msg) {
		err := handler(context.Background(), msg.Data())
		c.settle(msg, err, cfg.NakDelay)
	})
}

// ackable is the part of jetstream.Msg used to settle a delivery.
type ackable interface {
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Term() error
	NakWithDelay(delay time.Duration) error
}

// settle acknowledges, terminates or naks msg according to the handler
// result and returns the action taken.
func (c *Client) settle(msg ackable, handlerErr error, nakDelay time.Duration) string {
	var action string
	var err error

	switch {
	case handlerErr == nil:
		action, err = "ack", msg.Ack()
	case IsPermanent(handlerErr):
		c.logger.Warn("dropping message that cannot be processed", map[string]interface{}{
			"subject": msg.Subject(),
			"error":   handlerErr.Error(),
		})
		action, err = "term", msg.Term()
	default:
		delay := redeliveryDelay(msg, nakDelay)
		c.logger.Error("message handler failed, redelivering", map[string]interface{}{
			"subject": msg.Subject(),
			"delay":   delay.String(),
			"error":   handlerErr.Error(),
		})
		action, err = "nak", msg.NakWithDelay(delay)
	}

	if err != nil {
		c.logger.Error("failed to settle message", map[string]interface{}{
			"subject": msg.Subject(),
			"action":  action,
			"error":   err.Error(),
		})
	}
	return action
}

// redeliveryDelay doubles base with every delivery already made.
func redeliveryDelay(msg ackable, base time.Duration) time.Duration {
	shift := 0
	if md, err := msg.Metadata(); err == nil && md.NumDelivered > 1 {
		shift = int(md.NumDelivered - 1)
	}
	if shift > maxNakShift {
		shift = maxNakShift
	}
	return base << shift
}
