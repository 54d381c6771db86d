// Package subscription multiplexes live market-data streams. Each
// (exchange, channel, symbol) key owns at most one transport shared by every
// subscriber of that key, reconnects with backoff and degrades to synthetic
// demo data when the venue cannot be reached.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"marketfeed/config"
	"marketfeed/internal/metrics"
	"marketfeed/internal/normalizer"
	"marketfeed/internal/symbols"
	"marketfeed/logger"
	"marketfeed/models"
)

const (
	DefaultConnectTimeout       = 8 * time.Second
	DefaultDemoInterval         = 3 * time.Second
	DefaultReconnectBaseDelay   = time.Second
	DefaultMaxReconnectAttempts = 3
)

var (
	errConnectTimeout = errors.New("connect timed out")
	errNoRoute        = errors.New("no stream route")
	errExhausted      = errors.New("reconnect attempts exhausted")
)

// State is a key's position in the connection lifecycle.
type State int

const (
	StateUnsubscribed State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateDemo
	StateClosed
)

var stateNames = [...]string{"unsubscribed", "connecting", "connected", "reconnecting", "demo", "closed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Options tunes the manager. Unset durations and depth take the package
// defaults, a negative MaxReconnectAttempts takes DefaultMaxReconnectAttempts
// and a zero PingInterval disables keepalives.
type Options struct {
	ConnectTimeout       time.Duration
	DemoInterval         time.Duration
	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int
	PingInterval         time.Duration
	OrderbookDepth       int
	// Endpoints maps a venue to its websocket base URL.
	Endpoints map[models.Exchange]string
}

// OptionsFromConfig builds Options from the feed and exchange sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ConnectTimeout:       cfg.Feed.ConnectTimeout,
		DemoInterval:         cfg.Feed.DemoInterval,
		ReconnectBaseDelay:   cfg.Feed.ReconnectBaseDelay,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		PingInterval:         cfg.Feed.PingInterval,
		OrderbookDepth:       cfg.Feed.OrderbookDepth,
		Endpoints: map[models.Exchange]string{
			models.ExchangeBinance:  cfg.Exchange.Binance.WebsocketURL,
			models.ExchangeCoinbase: cfg.Exchange.Coinbase.WebsocketURL,
			models.ExchangeOKX:      cfg.Exchange.Okx.WebsocketURL,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.DemoInterval <= 0 {
		o.DemoInterval = DefaultDemoInterval
	}
	if o.ReconnectBaseDelay <= 0 {
		o.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.OrderbookDepth <= 0 {
		o.OrderbookDepth = normalizer.DefaultDepth
	}
	return o
}

// KeyStats is a point-in-time view of one key.
type KeyStats struct {
	Key         string          `json:"key"`
	Exchange    models.Exchange `json:"exchange"`
	Channel     models.Channel  `json:"channel"`
	Symbol      string          `json:"symbol"`
	State       string          `json:"state"`
	Subscribers int             `json:"subscribers"`
	Attempts    int             `json:"attempts"`
	Since       time.Time       `json:"since"`
}

type subscriber struct {
	id          string
	onTicker    func(models.TickerRecord)
	onOrderbook func(models.OrderbookRecord)
}

// subscription is the per-key state. Every field except the immutable
// identity is guarded by Manager.mu.
type subscription struct {
	key      string
	exchange models.Exchange
	channel  models.Channel
	symbol   string
	wire     string

	subscribers []*subscriber
	state       State
	since       time.Time
	transport   Transport
	attempts    int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Entry
}

// Manager owns every live key. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool

	dialer  Dialer
	norm    *normalizer.Normalizer
	opts    Options
	backoff *backoff.Backoff
	wait    func(ctx context.Context, delay time.Duration) bool
	log     *logger.Log
}

func NewManager(dialer Dialer, opts Options) *Manager {
	opts = opts.withDefaults()
	maxDelay := opts.ReconnectBaseDelay
	for i := 0; i < opts.MaxReconnectAttempts; i++ {
		maxDelay *= 2
	}
	return &Manager{
		subs:   make(map[string]*subscription),
		dialer: dialer,
		norm:   normalizer.New(opts.OrderbookDepth),
		opts:   opts,
		backoff: &backoff.Backoff{
			Min:    opts.ReconnectBaseDelay,
			Max:    maxDelay,
			Factor: 2,
		},
		wait: waitFor,
		log:  logger.GetLogger(),
	}
}

// Key returns the registry key for a subscription.
func Key(exchange models.Exchange, channel models.Channel, symbol string) string {
	return fmt.Sprintf("%s_%s_%s", exchange, channel, symbol)
}

// SubscribeTicker registers cb for ticker pushes of symbol on exchange. The
// returned function removes cb and may be called any number of times.
func (m *Manager) SubscribeTicker(symbol string, exchange models.Exchange, cb func(models.TickerRecord)) func() {
	if cb == nil {
		return func() {}
	}
	return m.subscribe(exchange, models.ChannelTicker, symbol, &subscriber{id: uuid.NewString(), onTicker: cb})
}

// SubscribeOrderbook registers cb for orderbook pushes of symbol on exchange.
func (m *Manager) SubscribeOrderbook(symbol string, exchange models.Exchange, cb func(models.OrderbookRecord)) func() {
	if cb == nil {
		return func() {}
	}
	return m.subscribe(exchange, models.ChannelOrderbook, symbol, &subscriber{id: uuid.NewString(), onOrderbook: cb})
}

func (m *Manager) subscribe(exchange models.Exchange, channel models.Channel, symbol string, sub *subscriber) func() {
	canonical := symbols.ToCanonical(string(exchange), symbol)
	key := Key(exchange, channel, canonical)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.WithComponent("subscription").WithField("key", key).Warn("subscribe after close ignored")
		return func() {}
	}
	s, ok := m.subs[key]
	if !ok {
		s = m.newSubscription(key, exchange, channel, canonical)
		m.subs[key] = s
		m.updateGaugeLocked(exchange, channel)
		go m.run(s)
	}
	s.subscribers = append(s.subscribers, sub)
	count := len(s.subscribers)
	m.mu.Unlock()

	if !ok {
		metrics.RecordFeedEvent(string(exchange), string(channel), metrics.EventSubscribe)
	}
	s.log.WithFields(logger.Fields{"subscriber": sub.id, "subscribers": count}).Debug("subscriber added")

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(s, sub.id) })
	}
}

func (m *Manager) newSubscription(key string, exchange models.Exchange, channel models.Channel, symbol string) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		key:      key,
		exchange: exchange,
		channel:  channel,
		symbol:   symbol,
		wire:     symbols.FormatFor(string(exchange), symbol),
		state:    StateConnecting,
		since:    time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		log: m.log.WithComponent("subscription").WithFields(logger.Fields{
			"key":      key,
			"exchange": string(exchange),
			"channel":  string(channel),
		}),
	}
}

func (m *Manager) unsubscribe(s *subscription, id string) {
	m.mu.Lock()
	if m.subs[s.key] != s {
		m.mu.Unlock()
		return
	}
	for i, sub := range s.subscribers {
		if sub.id == id {
			s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
			break
		}
	}
	if len(s.subscribers) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.subs, s.key)
	t := m.teardownLocked(s)
	m.mu.Unlock()

	closeTransport(t)
	s.log.Info("last subscriber left; feed closed")
}

// teardownLocked marks s closed and returns the transport for the caller to
// release outside the lock.
func (m *Manager) teardownLocked(s *subscription) Transport {
	s.setStateLocked(StateClosed)
	s.subscribers = nil
	s.cancel()
	t := s.transport
	s.transport = nil
	m.updateGaugeLocked(s.exchange, s.channel)
	metrics.RecordFeedEvent(string(s.exchange), string(s.channel), metrics.EventTeardown)
	return t
}

func (m *Manager) updateGaugeLocked(exchange models.Exchange, channel models.Channel) {
	n := 0
	for _, s := range m.subs {
		if s.exchange == exchange && s.channel == channel {
			n++
		}
	}
	metrics.SetActiveSubscriptions(string(exchange), string(channel), n)
}

func (s *subscription) setStateLocked(state State) {
	if s.state != state {
		s.state = state
		s.since = time.Now()
	}
}

// Stats lists every live key ordered by key.
func (m *Manager) Stats() []KeyStats {
	m.mu.Lock()
	out := make([]KeyStats, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, KeyStats{
			Key:         s.key,
			Exchange:    s.exchange,
			Channel:     s.channel,
			Symbol:      s.symbol,
			State:       s.state.String(),
			Subscribers: len(s.subscribers),
			Attempts:    s.attempts,
			Since:       s.since,
		})
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Close tears down every key and waits for their goroutines until ctx ends.
// Later subscribe calls are ignored.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pending := make([]*subscription, 0, len(m.subs))
	transports := make([]Transport, 0, len(m.subs))
	for key, s := range m.subs {
		delete(m.subs, key)
		transports = append(transports, m.teardownLocked(s))
		pending = append(pending, s)
	}
	m.mu.Unlock()

	for _, t := range transports {
		closeTransport(t)
	}
	for _, s := range pending {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.log.WithComponent("subscription").WithField("keys", len(pending)).Info("subscription manager closed")
	return nil
}

// run drives one key from first connect until teardown.
func (m *Manager) run(s *subscription) {
	defer close(s.done)

	conn, err := m.connect(s)
	for {
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.WithError(err).Warn("live feed unavailable; switching to demo data")
			m.runDemo(s)
			return
		}
		if !m.attach(s, conn) {
			closeConn(conn)
			return
		}
		s.log.Info("live feed connected")
		metrics.RecordFeedEvent(string(s.exchange), string(s.channel), metrics.EventConnected)

		err = m.readLoop(s, conn)
		if s.ctx.Err() != nil {
			return
		}
		m.detach(s)
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			s.log.Info("venue closed feed normally; switching to demo data")
			m.runDemo(s)
			return
		}
		s.log.WithError(err).Warn("live feed dropped")
		conn, err = m.reconnect(s)
	}
}

// connect dials the venue and sends its handshake. The attempt is capped by
// ConnectTimeout; a dial that completes after the cap is closed and discarded.
func (m *Manager) connect(s *subscription) (Conn, error) {
	rt, ok := routes[s.exchange]
	if !ok {
		return nil, fmt.Errorf("%w for %s", errNoRoute, s.exchange)
	}
	base := m.opts.Endpoints[s.exchange]
	if base == "" {
		return nil, fmt.Errorf("%w: %s has no websocket endpoint", errNoRoute, s.exchange)
	}
	url := rt.url(base, s.wire, s.channel)

	ctx, cancel := context.WithTimeout(s.ctx, m.opts.ConnectTimeout)
	defer cancel()

	type result struct {
		conn Conn
		err  error
	}
	results := make(chan result, 1)
	go func() {
		conn, err := m.dialer.DialContext(ctx, url)
		if err == nil && rt.subscribe != nil {
			if err = conn.WriteJSON(rt.subscribe(s.wire, s.channel)); err != nil {
				_ = conn.Close()
				conn = nil
			}
		}
		results <- result{conn: conn, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, r.err)
		}
		return r.conn, nil
	case <-ctx.Done():
		go func() {
			if r := <-results; r.conn != nil {
				closeConn(r.conn)
			}
		}()
		if s.ctx.Err() != nil {
			return nil, s.ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", errConnectTimeout, m.opts.ConnectTimeout)
	}
}

// attach installs conn as the key's transport unless the key was torn down
// while dialing.
func (m *Manager) attach(s *subscription, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	stop := startPingLoop(s.ctx, conn, m.opts.PingInterval, routes[s.exchange].ping, s.log)
	s.transport = &liveTransport{conn: conn, stopPing: stop}
	s.attempts = 0
	s.setStateLocked(StateConnected)
	return true
}

func (m *Manager) detach(s *subscription) {
	m.mu.Lock()
	t := s.transport
	s.transport = nil
	m.mu.Unlock()
	closeTransport(t)
}

func (m *Manager) reconnect(s *subscription) (Conn, error) {
	for {
		m.mu.Lock()
		if err := s.ctx.Err(); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		attempt := s.attempts
		if attempt >= m.opts.MaxReconnectAttempts {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w after %d attempts", errExhausted, attempt)
		}
		s.attempts++
		s.setStateLocked(StateReconnecting)
		m.mu.Unlock()

		delay := m.backoff.ForAttempt(float64(attempt))
		fields := logger.Fields{"exchange": string(s.exchange), "channel": string(s.channel)}
		metrics.RecordFeedEvent(string(s.exchange), string(s.channel), metrics.EventReconnect)
		metrics.EmitMetric(m.log, "subscription", "reconnect", 1, "counter", fields)
		s.log.WithFields(logger.Fields{"attempt": attempt + 1, "delay": delay.String()}).Info("reconnecting")

		if m.wait(s.ctx, delay) {
			return nil, s.ctx.Err()
		}
		conn, err := m.connect(s)
		if err == nil {
			return conn, nil
		}
		s.log.WithError(err).Warn("reconnect attempt failed")
	}
}

func (m *Manager) readLoop(s *subscription, conn Conn) error {
	stream := string(s.exchange) + "_" + string(s.channel)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.RecordStreamMessage(stream, len(msg))
		m.handleFrame(s, msg)
	}
}

func (m *Manager) handleFrame(s *subscription, msg []byte) {
	switch s.channel {
	case models.ChannelTicker:
		rec, err := m.norm.Ticker(s.exchange, s.symbol, msg)
		if err != nil {
			m.dropFrame(s, err)
			return
		}
		m.deliverTicker(s, rec, "live")
	case models.ChannelOrderbook:
		rec, err := m.norm.Orderbook(s.exchange, s.symbol, msg)
		if err != nil {
			m.dropFrame(s, err)
			return
		}
		m.deliverOrderbook(s, rec, "live")
	}
}

func (m *Manager) dropFrame(s *subscription, err error) {
	switch {
	case errors.Is(err, normalizer.ErrIgnored):
		return
	case errors.Is(err, normalizer.ErrUnsupported):
		metrics.EmitDropMetric(m.log, metrics.DropUnsupported, string(s.exchange), string(s.channel), s.symbol)
	default:
		metrics.EmitDropMetric(m.log, metrics.DropMalformed, string(s.exchange), string(s.channel), s.symbol)
	}
	s.log.WithError(err).Debug("dropped frame")
}

// runDemo feeds synthetic records until the key is torn down. The first push
// happens immediately.
func (m *Manager) runDemo(s *subscription) {
	ticker := time.NewTicker(m.opts.DemoInterval)
	defer ticker.Stop()

	m.mu.Lock()
	if s.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	s.transport = &demoTransport{ticker: ticker}
	s.setStateLocked(StateDemo)
	m.mu.Unlock()

	metrics.RecordFeedEvent(string(s.exchange), string(s.channel), metrics.EventDemoFallback)
	metrics.EmitMetric(m.log, "subscription", "demo_fallback", 1, "counter", logger.Fields{
		"exchange": string(s.exchange),
		"channel":  string(s.channel),
	})

	feed := newDemoFeed(s.exchange, s.symbol, m.opts.OrderbookDepth)
	m.pushDemo(s, feed)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			m.pushDemo(s, feed)
		}
	}
}

func (m *Manager) pushDemo(s *subscription, feed *demoFeed) {
	now := time.Now()
	logger.RecordStreamMessage("demo_"+string(s.channel), 0)
	switch s.channel {
	case models.ChannelTicker:
		m.deliverTicker(s, feed.ticker(now), "demo")
	case models.ChannelOrderbook:
		m.deliverOrderbook(s, feed.orderbook(now), "demo")
	}
}

// snapshot copies the current subscribers. It returns nil once the key is
// gone so late frames are discarded.
func (m *Manager) snapshot(s *subscription) []*subscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs[s.key] != s || len(s.subscribers) == 0 {
		return nil
	}
	return append([]*subscriber(nil), s.subscribers...)
}

func (m *Manager) deliverTicker(s *subscription, rec models.TickerRecord, source string) {
	subs := m.snapshot(s)
	if len(subs) == 0 {
		return
	}
	metrics.RecordFrame(string(s.exchange), string(s.channel), source)
	for _, sub := range subs {
		if sub.onTicker != nil {
			s.invoke(func() { sub.onTicker(rec) })
		}
	}
}

func (m *Manager) deliverOrderbook(s *subscription, rec models.OrderbookRecord, source string) {
	subs := m.snapshot(s)
	if len(subs) == 0 {
		return
	}
	metrics.RecordFrame(string(s.exchange), string(s.channel), source)
	for _, sub := range subs {
		if sub.onOrderbook != nil {
			s.invoke(func() { sub.onOrderbook(rec) })
		}
	}
}

// invoke runs one callback; a panicking subscriber does not stop the feed.
func (s *subscription) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("subscriber callback panicked")
		}
	}()
	fn()
}
