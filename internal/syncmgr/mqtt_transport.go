package syncmgr

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTConfig configures the cross-rank transport. Every rank in a run
// connects to the same broker and exchanges barrier/reduction/event
// traffic over topics namespaced by RunID, so unrelated runs sharing a
// broker do not cross-talk.
type MQTTConfig struct {
	Broker   string
	Username string
	Password string
	RunID    string
	Rank     int
	NumRanks int
}

// MQTTTransport implements Transport over an MQTT broker: each rank
// publishes to every other rank's inbox topic and subscribes to its
// own. The broker connection is managed by an autopaho connection
// manager.
type MQTTTransport struct {
	cfg    MQTTConfig
	logger *slog.Logger

	mu      sync.Mutex
	cm      *autopaho.ConnectionManager
	handler func(fromRank int, msg []byte)

	barrierMu    sync.Mutex
	barrierGen   int
	barrierSeen  map[int]bool
	barrierDone  chan struct{}
}

// NewMQTTTransport returns a transport that is not yet connected; call
// Start before use.
func NewMQTTTransport(cfg MQTTConfig, logger *slog.Logger) *MQTTTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTTransport{cfg: cfg, logger: logger}
}

func (t *MQTTTransport) Rank() int     { return t.cfg.Rank }
func (t *MQTTTransport) NumRanks() int { return t.cfg.NumRanks }

func (t *MQTTTransport) SetHandler(handler func(int, []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *MQTTTransport) inboxTopic(rank int) string {
	return fmt.Sprintf("corevortex/%s/rank/%d/inbox", t.cfg.RunID, rank)
}

func (t *MQTTTransport) barrierTopic() string {
	return fmt.Sprintf("corevortex/%s/barrier", t.cfg.RunID)
}

// Start connects to the broker, subscribes to this rank's inbox and
// the shared barrier topic, and blocks until the connection is
// established or ctx expires.
func (t *MQTTTransport) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(t.cfg.Broker)
	if err != nil {
		return fmt.Errorf("sync transport: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:       []*url.URL{brokerURL},
		KeepAlive:        30,
		ConnectUsername:  t.cfg.Username,
		ConnectPassword:  []byte(t.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			t.logger.Info("sync transport connected", "broker", t.cfg.Broker, "rank", t.cfg.Rank)
			subCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: t.inboxTopic(t.cfg.Rank), QoS: 1},
					{Topic: t.barrierTopic(), QoS: 1},
				},
			}); err != nil {
				t.logger.Error("sync transport subscribe failed", "error", err)
			}
		},
		OnConnectError: func(err error) {
			t.logger.Warn("sync transport connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: fmt.Sprintf("corevortex-%s-rank%d", t.cfg.RunID, t.cfg.Rank),
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("sync transport: connect: %w", err)
	}
	cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
		t.onMessage(pr.Packet.Topic, pr.Packet.Payload)
		return true, nil
	})

	t.mu.Lock()
	t.cm = cm
	t.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return cm.AwaitConnection(connCtx)
}

func (t *MQTTTransport) onMessage(topic string, payload []byte) {
	if topic == t.barrierTopic() {
		t.onBarrierMessage(payload)
		return
	}
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		// The publishing rank is embedded as the first token of the
		// payload by Send; strip it back off before delivering.
		fromRank, body := splitRankPrefix(payload)
		h(fromRank, body)
	}
}

// Send publishes msg to destRank's inbox, prefixed with this rank's
// number so the receiver's handler can attribute the message without
// a second round trip.
func (t *MQTTTransport) Send(ctx context.Context, destRank int, msg []byte) error {
	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("sync transport: not connected")
	}
	payload := joinRankPrefix(t.cfg.Rank, msg)
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   t.inboxTopic(destRank),
		Payload: payload,
		QoS:     1,
	})
	return err
}

// Barrier publishes this rank's arrival and blocks until every rank
// (by NumRanks) has arrived at the same generation, then advances the
// generation for the next call.
func (t *MQTTTransport) Barrier(ctx context.Context) error {
	t.barrierMu.Lock()
	gen := t.barrierGen
	t.barrierSeen = map[int]bool{t.cfg.Rank: true}
	done := make(chan struct{})
	t.barrierDone = done
	t.barrierMu.Unlock()

	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("sync transport: not connected")
	}
	payload := []byte(fmt.Sprintf("%d:%d", gen, t.cfg.Rank))
	if _, err := cm.Publish(ctx, &paho.Publish{Topic: t.barrierTopic(), Payload: payload, QoS: 1}); err != nil {
		return fmt.Errorf("sync transport: barrier publish: %w", err)
	}

	select {
	case <-done:
		t.barrierMu.Lock()
		t.barrierGen++
		t.barrierMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MQTTTransport) onBarrierMessage(payload []byte) {
	var gen, rank int
	if _, err := fmt.Sscanf(string(payload), "%d:%d", &gen, &rank); err != nil {
		return
	}
	t.barrierMu.Lock()
	defer t.barrierMu.Unlock()
	if gen != t.barrierGen || t.barrierSeen == nil {
		return
	}
	t.barrierSeen[rank] = true
	if len(t.barrierSeen) >= t.cfg.NumRanks && t.barrierDone != nil {
		close(t.barrierDone)
		t.barrierDone = nil
	}
}

func joinRankPrefix(rank int, msg []byte) []byte {
	prefix := []byte(strconv.Itoa(rank) + ":")
	return append(prefix, msg...)
}

func splitRankPrefix(payload []byte) (int, []byte) {
	for i, b := range payload {
		if b == ':' {
			rank, err := strconv.Atoi(string(payload[:i]))
			if err != nil {
				return 0, payload
			}
			return rank, payload[i+1:]
		}
	}
	return 0, payload
}

// Stop disconnects from the broker.
func (t *MQTTTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	cm := t.cm
	t.mu.Unlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}
