package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type publishChannel interface {
	queueDeclarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// link is one open connection plus its channel.
type link struct {
	ch    publishChannel
	close func() error
}

// dialTimeout bounds the TCP connect and AMQP handshake.  amqp.Dial alone
// waits up to 30s.
const dialTimeout = 3 * time.Second

func dialAMQP(url string) (*link, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	return &link{ch: ch, close: func() error {
		_ = ch.Close()
		return conn.Close()
	}}, nil
}

var errPublisherClosed = errors.New("publisher closed")

// dialing is a connection attempt shared by every caller that arrives while
// it is in flight.  link and err are set before done is closed.
type dialing struct {
	done chan struct{}
	link *link
	err  error
}

// Publisher sends persistent JSON messages to the email queues.  It holds a
// single connection, dialled on first use and redialled after a failure.
// The mutex only guards the fields; dialling happens outside it and callers
// stop waiting when their context ends.  Safe for concurrent use.
type Publisher struct {
	url  string
	log  *zap.Logger
	dial func(url string) (*link, error)

	mu      sync.Mutex
	link    *link
	pending *dialing
	closed  bool
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log, dial: dialAMQP}
}

// Enqueue marshals payload and publishes it to the named queue through the
// default exchange.  A broken link is dropped and the publish retried once on
// a fresh connection.
func (p *Publisher) Enqueue(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal %s: %w", queue, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	for attempt := 0; attempt < 2; attempt++ {
		var l *link
		if l, err = p.current(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, errPublisherClosed) {
				break
			}
			continue
		}
		err = l.ch.PublishWithContext(ctx, "", queue, false, false, msg)
		if err == nil {
			return nil
		}
		p.log.Warn("rabbitmq: publish failed, resetting connection",
			zap.String("queue", queue), zap.Error(err))
		p.drop(l)
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("rabbitmq: publish %s: %w", queue, err)
}

// current returns the open link, starting or joining a dial when there is
// none.
func (p *Publisher) current(ctx context.Context) (*link, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errPublisherClosed
	}
	if p.link != nil {
		l := p.link
		p.mu.Unlock()
		return l, nil
	}
	d := p.pending
	if d == nil {
		d = &dialing{done: make(chan struct{})}
		p.pending = d
		go p.connect(d)
	}
	p.mu.Unlock()

	select {
	case <-d.done:
		return d.link, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Publisher) connect(d *dialing) {
	l, err := p.dial(p.url)
	if err == nil {
		if derr := declareQueues(l.ch); derr != nil {
			_ = l.close()
			l, err = nil, fmt.Errorf("queue declare: %w", derr)
		}
	}

	p.mu.Lock()
	p.pending = nil
	switch {
	case err != nil:
	case p.closed:
		_ = l.close()
		l, err = nil, errPublisherClosed
	default:
		p.link = l
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("rabbitmq: connect failed", zap.Error(err))
	}
	d.link, d.err = l, err
	close(d.done)
}

// drop closes l unless another caller already replaced it.
func (p *Publisher) drop(l *link) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.link == l {
		_ = l.close()
		p.link = nil
	}
}

// Close releases the connection, if any.  A dial still in flight is closed
// as soon as it completes.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.link == nil {
		return nil
	}
	err := p.link.close()
	p.link = nil
	return err
}
