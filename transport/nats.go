// Package transport connects the hive to the NATS broker. Callbacks only
// decode and hand off to a Sink; they never touch engine state.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/telemetry"
)

var (
	// ErrConnect is returned when the broker cannot be reached at startup.
	ErrConnect = errors.New("broker connect failed")

	// ErrConnectionLost is returned once reconnect attempts are exhausted.
	ErrConnectionLost = errors.New("broker connection lost")
)

// Sink receives decoded traffic. Submit methods must not block; they
// report false when the message was dropped.
type Sink interface {
	SubmitDeposit(ev ingress.DepositEvent) bool
	SubmitCommand(cmd ingress.Command) bool
	RecordDecodeError()
}

// Dial connects with the configured reconnect policy. A failed first
// connect is not retried.
func Dial(cfg config.TransportConfig, name string, opts ...nats.Option) (*nats.Conn, error) {
	all := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(seconds(cfg.ReconnectWait)),
		nats.Timeout(seconds(cfg.ConnectTimeout)),
	}
	all = append(all, opts...)

	nc, err := nats.Connect(cfg.URL, all...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, cfg.URL, err)
	}
	return nc, nil
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return time.Second
	}
	return time.Duration(s * float64(time.Second))
}

// Subscriber feeds deposits and control commands from the broker into a Sink.
type Subscriber struct {
	nc       *nats.Conn
	decoder  ingress.Decoder
	subjects ingress.Subjects
	sink     Sink
	metrics  *telemetry.Metrics
	limiter  *rate.Limiter

	closed    chan struct{}
	closeOnce sync.Once
}

// NewSubscriber connects and subscribes to the deposit and control
// subjects. Payloads without an RSSI field assume defaultRSSI.
func NewSubscriber(cfg config.TransportConfig, defaultRSSI int, sink Sink, m *telemetry.Metrics) (*Subscriber, error) {
	if m == nil {
		m = telemetry.NewMetrics(nil)
	}
	s := &Subscriber{
		decoder:  ingress.Decoder{DefaultRSSI: defaultRSSI},
		subjects: ingress.SubjectsFrom(cfg),
		sink:     sink,
		metrics:  m,
		// Malformed traffic tends to arrive in bursts from one bad sender
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		closed:  make(chan struct{}),
	}

	nc, err := Dial(cfg, "slimehive-queen",
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("broker disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.metrics.Reconnects.Inc()
			slog.Info("broker reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			s.closeOnce.Do(func() { close(s.closed) })
		}),
	)
	if err != nil {
		return nil, err
	}
	s.nc = nc

	subs := []struct {
		subject string
		handler nats.MsgHandler
	}{
		{cfg.DepositSubject, s.handleDeposit},
		{cfg.ModeSubject, s.handleControl},
		{cfg.SwarmSubject, s.handleControl},
		{cfg.ResetSubject, s.handleControl},
	}
	for _, sub := range subs {
		if sub.subject == "" {
			continue
		}
		if _, err := nc.Subscribe(sub.subject, sub.handler); err != nil {
			nc.Close()
			return nil, fmt.Errorf("subscribe %s: %w", sub.subject, err)
		}
	}
	// Make sure the server has the subscriptions before anyone publishes
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("flush subscriptions: %w", err)
	}

	slog.Info("broker connected", "url", nc.ConnectedUrl(), "deposit_subject", cfg.DepositSubject)
	return s, nil
}

// Run blocks until ctx is done or the connection is closed for good.
func (s *Subscriber) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		s.Close()
		return nil
	case <-s.closed:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: reconnect attempts exhausted", ErrConnectionLost)
	}
}

// Close drops the connection.
func (s *Subscriber) Close() {
	s.nc.Close()
}

func (s *Subscriber) handleDeposit(msg *nats.Msg) {
	m, err := s.decoder.Decode(msg.Data)
	if err != nil {
		s.reject(msg, err)
		return
	}
	s.sink.SubmitDeposit(m.Event())
}

func (s *Subscriber) handleControl(msg *nats.Msg) {
	cmd, err := s.subjects.Parse(msg.Subject, msg.Data)
	if err != nil {
		s.reject(msg, err)
		return
	}
	s.sink.SubmitCommand(cmd)
}

// reject counts a payload that could not be decoded and logs it, at most
// a few times per second.
func (s *Subscriber) reject(msg *nats.Msg, err error) {
	s.metrics.DecodeErrors.WithLabelValues(rejectReason(err)).Inc()
	s.sink.RecordDecodeError()
	if s.limiter.Allow() {
		slog.Warn("dropping payload", "subject", msg.Subject, "payload", string(msg.Data), "error", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ingress.ErrFieldCount):
		return "field_count"
	case errors.Is(err, ingress.ErrUnknownCommand):
		return "unknown_command"
	}
	return "malformed"
}

// Publisher sends deposits and control messages, used by replay and tests.
type Publisher struct {
	nc  *nats.Conn
	cfg config.TransportConfig
}

// NewPublisher connects a publishing client.
func NewPublisher(cfg config.TransportConfig) (*Publisher, error) {
	nc, err := Dial(cfg, "slimehive-publisher")
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, cfg: cfg}, nil
}

// PublishDeposit sends one deposit in the richest layout the event fills.
func (p *Publisher) PublishDeposit(ev ingress.DepositEvent) error {
	return p.Publish(p.cfg.DepositSubject, ingress.Encode(ev))
}

// Publish sends raw bytes on subject.
func (p *Publisher) Publish(subject string, data []byte) error {
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and disconnects.
func (p *Publisher) Close() error {
	defer p.nc.Close()
	if err := p.nc.FlushTimeout(seconds(p.cfg.ConnectTimeout)); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
