package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-mesher/internal/logging"
	"github.com/nats-io/nats.go"
)

// DefaultInvalidationSubject тема NATS для инвалидаций мешей и атласа
const DefaultInvalidationSubject = "mesher.invalidate"

var errAlreadySubscribed = errors.New("nats invalidator: подписка уже оформлена")

// InvalidatorConfig настройки NATS invalidator
type InvalidatorConfig struct {
	NATSURL string
	Subject string

	MaxReconnects int
	ReconnectWait time.Duration

	// DedupeWindow в течение этого окна повтор того же ключа не передаётся обработчику
	DedupeWindow time.Duration
}

func (c *InvalidatorConfig) applyDefaults() {
	if c.Subject == "" {
		c.Subject = DefaultInvalidationSubject
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = 2 * time.Second
	}
}

// InvalidationMessage сообщение об инвалидации, передаётся в JSON
type InvalidationMessage struct {
	Key       string    `json:"key"`
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// InvalidatorStats счётчики invalidator
type InvalidatorStats struct {
	Published int64 `json:"published"`
	Received  int64 `json:"received"`
	Ignored   int64 `json:"ignored"` // свои сообщения и повторы
	Failed    int64 `json:"failed"`
}

// NATSInvalidator рассылает ключи инвалидаций между узлами сервиса.
// Входящие сообщения своего узла и повторы в окне дедупликации отбрасываются.
type NATSInvalidator struct {
	conn   *nats.Conn
	cfg    InvalidatorConfig
	nodeID string

	mu      sync.Mutex
	sub     *nats.Subscription
	handler InvalidationHandler

	dedupe *dedupeWindow

	published atomic.Int64
	received  atomic.Int64
	ignored   atomic.Int64
	failed    atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewNATSInvalidator подключается к NATS.
// nodeID отличает узлы друг от друга; по нему отбрасываются собственные сообщения.
func NewNATSInvalidator(cfg InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	cfg.applyDefaults()

	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("voxel-mesher-"+nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn("🔌 NATS: соединение потеряно: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("🔌 NATS: переподключено к %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS %s: %w", cfg.NATSURL, err)
	}

	n := newNATSInvalidator(conn, cfg, nodeID)
	n.wg.Add(1)
	go n.sweepLoop()

	logging.Info("📨 NATS invalidator: %s, тема %s, узел %s", cfg.NATSURL, cfg.Subject, nodeID)
	return n, nil
}

func newNATSInvalidator(conn *nats.Conn, cfg InvalidatorConfig, nodeID string) *NATSInvalidator {
	cfg.applyDefaults()
	return &NATSInvalidator{
		conn:   conn,
		cfg:    cfg,
		nodeID: nodeID,
		dedupe: newDedupeWindow(cfg.DedupeWindow),
		done:   make(chan struct{}),
	}
}

// PublishInvalidation рассылает ключ всем узлам
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(InvalidationMessage{Key: key, NodeID: n.nodeID, Timestamp: time.Now()})
	if err != nil {
		n.failed.Add(1)
		return err
	}
	if err := n.conn.Publish(n.cfg.Subject, data); err != nil {
		n.failed.Add(1)
		return fmt.Errorf("публикация инвалидации %s: %w", key, err)
	}

	n.published.Add(1)
	logging.Debug("📨 Инвалидация отправлена: %s", key)
	return nil
}

// SubscribeInvalidations передаёт handler ключи, пришедшие от других узлов.
// Подписка живёт до отмены ctx или Close. Повторная подписка запрещена.
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub != nil {
		return errAlreadySubscribed
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.cfg.Subject, n.onMessage)
	if err != nil {
		return fmt.Errorf("подписка на %s: %w", n.cfg.Subject, err)
	}
	n.sub = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.done:
		}
		n.unsubscribe()
	}()

	return nil
}

// Stats возвращает текущие счётчики
func (n *NATSInvalidator) Stats() InvalidatorStats {
	return InvalidatorStats{
		Published: n.published.Load(),
		Received:  n.received.Load(),
		Ignored:   n.ignored.Load(),
		Failed:    n.failed.Load(),
	}
}

// Close снимает подписку и закрывает соединение
func (n *NATSInvalidator) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		n.unsubscribe()
		if n.conn != nil {
			n.conn.Close()
		}
	})
	return nil
}

func (n *NATSInvalidator) onMessage(msg *nats.Msg) {
	n.received.Add(1)

	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil || m.Key == "" {
		n.failed.Add(1)
		logging.Warn("📨 Некорректное сообщение инвалидации (%d байт)", len(msg.Data))
		return
	}

	if m.NodeID == n.nodeID || !n.dedupe.admit(m.Key, time.Now()) {
		n.ignored.Add(1)
		return
	}

	n.mu.Lock()
	handler := n.handler
	n.mu.Unlock()
	if handler == nil {
		return
	}

	if err := handler(m.Key); err != nil {
		n.failed.Add(1)
		logging.Error("Обработка инвалидации %s от %s: %v", m.Key, m.NodeID, err)
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub == nil {
		return
	}
	if err := n.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		logging.Warn("Отписка от %s: %v", n.cfg.Subject, err)
	}
	n.sub = nil
}

func (n *NATSInvalidator) sweepLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.cfg.DedupeWindow)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			n.dedupe.sweep(now)
		case <-n.done:
			return
		}
	}
}

// dedupeWindow помнит время последнего допуска каждого ключа
type dedupeWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
}

func newDedupeWindow(window time.Duration) *dedupeWindow {
	return &dedupeWindow{window: window, seen: make(map[string]time.Time)}
}

// admit возвращает false, если ключ уже допускался менее window назад
func (d *dedupeWindow) admit(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now
	return true
}

// sweep удаляет записи старше окна
func (d *dedupeWindow) sweep(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, key)
		}
	}
}
