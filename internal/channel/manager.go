package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/verisync/verisync/internal/config"
	"github.com/verisync/verisync/internal/session"
)

// Manager owns the single shared push connection. Connect is idempotent and
// only the first dial can reject a caller; every later drop is recovered by a
// fixed-delay reconnect loop that retries until Disconnect. On each
// (re)connection the OnConnected hook fires so the registry can replay its
// subscribe frames. Disconnect ends the lifecycle; a later Connect starts a
// fresh one.
type Manager struct {
	cfg    config.ChannelConfig
	url    string
	token  string
	dialer Dialer
	log    zerolog.Logger

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (control frames, pings)
	conn    Conn
	running bool
	done    chan struct{}

	onConnected func()
	onTeardown  func()
	onStatus    func(connected bool, err error)
	handler     func(data []byte)
}

func NewManager(cfg config.ChannelConfig, url, token string, dialer Dialer, log zerolog.Logger) *Manager {
	if dialer == nil {
		dialer = WebsocketDialer{}
	}
	return &Manager{
		cfg:    cfg,
		url:    url,
		token:  token,
		dialer: dialer,
		log:    log.With().Str("component", "channel").Logger(),
		done:   make(chan struct{}),
	}
}

// OnConnected registers the hook fired after every successful (re)connection.
// Must be set before Connect.
func (m *Manager) OnConnected(fn func()) { m.onConnected = fn }

// OnTeardown registers the hook fired by Disconnect. Must be set before
// Connect.
func (m *Manager) OnTeardown(fn func()) { m.onTeardown = fn }

// OnStatusChange registers an informational hook for connection state
// changes. Later connection errors are surfaced only here, never as session
// failures.
func (m *Manager) OnStatusChange(fn func(connected bool, err error)) { m.onStatus = fn }

// SetHandler registers the consumer of raw push frames. Must be set before
// Connect.
func (m *Manager) SetHandler(fn func(data []byte)) { m.handler = fn }

// Connect establishes the push channel. It returns immediately when the
// manager is already running; a handshake timeout or dial error rejects only
// this call.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.running {
		// Lost the race with a concurrent Connect; keep the winner's conn.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.running = true
	select {
	case <-m.done:
		// Connect after a Disconnect starts a fresh lifecycle.
		m.done = make(chan struct{})
	default:
	}
	m.mu.Unlock()

	m.log.Info().Str("url", m.url).Msg("push channel connected")
	m.notifyStatus(true, nil)
	m.fireConnected()
	go m.readLoop(conn)
	go m.pingLoop(conn)
	return nil
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(dialCtx, m.url, m.header())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, session.ErrConnectionTimeout
		}
		return nil, fmt.Errorf("connect push channel: %w", err)
	}
	return conn, nil
}

func (m *Manager) header() http.Header {
	if m.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+m.token)
	return h
}

// Connected reports whether the channel currently has a live connection.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// SendJSON writes one JSON frame on the shared connection. Only the
// subscription registry issues control frames.
func (m *Manager) SendJSON(v interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return session.ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}

// Disconnect tears the channel down and clears all subscriptions via the
// teardown hook. Pending session outcomes are untouched; their own timeouts
// resolve them.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	conn := m.conn
	m.conn = nil
	close(m.done)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if m.onTeardown != nil {
		m.onTeardown()
	}
	m.log.Info().Msg("push channel disconnected")
	m.notifyStatus(false, nil)
}

func (m *Manager) closed() bool {
	select {
	case <-m.doneCh():
		return true
	default:
		return false
	}
}

// doneCh snapshots the current lifecycle's done channel. Loops spawned
// before a Disconnect observe the channel they were started under.
func (m *Manager) doneCh() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

func (m *Manager) readLoop(conn Conn) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(m.cfg.PongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			current := m.conn == conn
			if current {
				m.conn = nil
			}
			running := m.running
			m.mu.Unlock()
			conn.Close()
			if current && running && !m.closed() {
				m.log.Warn().Err(err).Msg("push channel dropped, reconnecting")
				m.notifyStatus(false, err)
				go m.reconnectLoop()
			}
			return
		}
		if m.handler != nil {
			m.handler(data)
		}
	}
}

// reconnectLoop retries with a fixed delay until it succeeds or the manager
// is disconnected. The oracle transport drops routinely under normal load,
// so attempts are unbounded.
func (m *Manager) reconnectLoop() {
	done := m.doneCh()
	for {
		select {
		case <-done:
			return
		case <-time.After(m.cfg.ReconnectDelay):
		}

		conn, err := m.dial(context.Background())
		if err != nil {
			m.log.Warn().Err(err).Dur("retry_in", m.cfg.ReconnectDelay).Msg("reconnect failed")
			continue
		}

		m.mu.Lock()
		if !m.running {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		m.log.Info().Msg("push channel reconnected")
		m.notifyStatus(true, nil)
		m.fireConnected()
		go m.readLoop(conn)
		go m.pingLoop(conn)
		return
	}
}

// pingLoop keeps the connection alive. It exits when the manager is closed
// or the connection it was started for is no longer current.
func (m *Manager) pingLoop(conn Conn) {
	done := m.doneCh()
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.mu.Lock()
			current := m.conn
			m.mu.Unlock()
			if current != conn {
				return
			}
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) fireConnected() {
	if m.onConnected != nil {
		m.onConnected()
	}
}

func (m *Manager) notifyStatus(connected bool, err error) {
	if m.onStatus != nil {
		m.onStatus(connected, err)
	}
}
