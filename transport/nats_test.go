package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pthm-cable/slimehive/config"
	"github.com/pthm-cable/slimehive/ingress"
	"github.com/pthm-cable/slimehive/telemetry"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func testTransportConfig(url string) config.TransportConfig {
	cfg := config.Default().Transport
	cfg.URL = url
	cfg.MaxReconnects = 0
	cfg.ReconnectWait = 0.05
	cfg.ConnectTimeout = 1
	return cfg
}

// fakeSink records what the subscriber hands off.
type fakeSink struct {
	mu           sync.Mutex
	deposits     []ingress.DepositEvent
	commands     []ingress.Command
	decodeErrors int
}

func (s *fakeSink) SubmitDeposit(ev ingress.DepositEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deposits = append(s.deposits, ev)
	return true
}

func (s *fakeSink) SubmitCommand(cmd ingress.Command) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return true
}

func (s *fakeSink) RecordDecodeError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodeErrors++
}

func (s *fakeSink) counts() (deposits, commands, decodeErrors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deposits), len(s.commands), s.decodeErrors
}

func TestConnectFailureIsFatal(t *testing.T) {
	cfg := testTransportConfig("nats://127.0.0.1:1")
	_, err := NewSubscriber(cfg, -50, &fakeSink{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnect))
}

func TestSubscriberDeliversDeposits(t *testing.T) {
	server := startTestNATSServer(t)
	cfg := testTransportConfig(server.ClientURL())

	sink := &fakeSink{}
	metrics := telemetry.NewMetrics(nil)
	sub, err := NewSubscriber(cfg, -50, sink, metrics)
	require.NoError(t, err)
	defer sub.Close()

	pub, err := NewPublisher(cfg)
	require.NoError(t, err)

	require.NoError(t, pub.PublishDeposit(ingress.DepositEvent{AgentID: "A1", X: 5, Y: 5, Intensity: 50, RSSI: -40}))
	require.NoError(t, pub.PublishDeposit(ingress.DepositEvent{AnchorID: "QUEEN", AgentID: "A2", X: 7, Y: 8, Intensity: 2.5, RSSI: -70}))
	require.NoError(t, pub.Publish(cfg.DepositSubject, []byte("12,13,4")))
	require.NoError(t, pub.Publish(cfg.DepositSubject, []byte("not,a,valid,deposit,at,all,really")))
	require.NoError(t, pub.Publish(cfg.DepositSubject, []byte("A1,x,5,50,-40")))
	require.NoError(t, pub.Close())

	require.Eventually(t, func() bool {
		d, _, e := sink.counts()
		return d == 3 && e == 2
	}, 5*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, ingress.DepositEvent{AgentID: "A1", X: 5, Y: 5, Intensity: 50, RSSI: -40}, sink.deposits[0])
	assert.Equal(t, "QUEEN", sink.deposits[1].AnchorID)
	assert.Equal(t, ingress.DepositEvent{AgentID: ingress.LegacyAgentID, X: 12, Y: 13, Intensity: 4, RSSI: -50}, sink.deposits[2])

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("field_count")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("malformed")))
}

func TestSubscriberDeliversCommands(t *testing.T) {
	server := startTestNATSServer(t)
	cfg := testTransportConfig(server.ClientURL())

	sink := &fakeSink{}
	sub, err := NewSubscriber(cfg, -50, sink, nil)
	require.NoError(t, err)
	defer sub.Close()

	pub, err := NewPublisher(cfg)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(cfg.ModeSubject, []byte("forage,avoid")))
	require.NoError(t, pub.Publish(cfg.SwarmSubject, []byte("12")))
	require.NoError(t, pub.Publish(cfg.SwarmSubject, []byte("many")))
	require.NoError(t, pub.Publish(cfg.ResetSubject, []byte("")))
	require.NoError(t, pub.Close())

	require.Eventually(t, func() bool {
		_, c, e := sink.counts()
		return c == 3 && e == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Each subject has its own subscription, so order across subjects is not fixed
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.ElementsMatch(t, []ingress.Command{
		ingress.SetMode("FORAGE,AVOID"),
		ingress.SetSwarmCount(12),
		ingress.Reset(),
	}, sink.commands)
}

func TestRunStopsOnCancel(t *testing.T) {
	server := startTestNATSServer(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sub, err := NewSubscriber(testTransportConfig(server.ClientURL()), -50, &fakeSink{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsLostConnection(t *testing.T) {
	server := startTestNATSServer(t)

	sub, err := NewSubscriber(testTransportConfig(server.ClientURL()), -50, &fakeSink{}, nil)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan error, 1)
	go func() { done <- sub.Run(context.Background()) }()

	// With no reconnects allowed the client closes as soon as the server goes
	server.Shutdown()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrConnectionLost), "got %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not notice the lost connection")
	}
}
