package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrBrokerUnavailable indica que a última conexão falhou e o publisher ainda
// aguarda o intervalo antes de discar de novo.
var ErrBrokerUnavailable = errors.New("amqp: broker indisponível")

const (
	defaultDialTimeout    = 3 * time.Second
	defaultRedialInterval = 10 * time.Second
	defaultPublishTimeout = 2 * time.Second
)

// AMQPPublisher mantém uma conexão com o RabbitMQ e a reabre sob demanda.
// Publicações nunca esperam mais que o timeout de conexão: depois de uma falha,
// falham de imediato até passar o intervalo de nova discagem.
type AMQPPublisher struct {
	url    string
	queue  string
	logger zerolog.Logger

	dialTimeout    time.Duration
	redialInterval time.Duration
	publishTimeout time.Duration

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	lastFailed time.Time
}

func NewAMQPPublisher(url, queue string, logger zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:            url,
		queue:          queue,
		logger:         logger,
		dialTimeout:    defaultDialTimeout,
		redialInterval: defaultRedialInterval,
		publishTimeout: defaultPublishTimeout,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Body:         body,
	}

	ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	// uma nova tentativa após reconectar, caso a conexão tenha caído
	for attempt := 0; attempt < 2; attempt++ {
		ch, err := p.channel()
		if err != nil {
			return err
		}
		err = ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
		if err == nil {
			return nil
		}
		p.reset()
		if !errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("amqp: publicar %s: %w", ev.Type, err)
		}
		p.logger.Warn().Err(err).Msg("amqp: conexão fechada, reconectando")
	}
	return fmt.Errorf("amqp: publicar %s: %w", ev.Type, amqp.ErrClosed)
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if !p.lastFailed.IsZero() && time.Since(p.lastFailed) < p.redialInterval {
		return nil, ErrBrokerUnavailable
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		p.lastFailed = time.Now()
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: abrir canal: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: declarar fila %s: %w", p.queue, err)
	}

	p.conn, p.ch = conn, ch
	p.lastFailed = time.Time{}
	p.logger.Info().Str("queue", p.queue).Msg("amqp: conectado")
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
