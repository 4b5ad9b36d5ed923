// Package proxy is the client half of the webhook bridge: one logical
// session per (endpoint, tenant, room) that subscribes to a conference's
// event stream and hands events to consumers, listeners or a cache.
package proxy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dialport/hookbridge/internal/domain"
	"github.com/dialport/hookbridge/internal/wire"
)

// DefaultWaitTimeout bounds WaitForEvent when the caller passes no timeout.
const DefaultWaitTimeout = 4 * time.Second

// Status of a session's transport.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// TimeoutError is returned by WaitForEvent when no matching event arrives in
// time. It is the only session failure surfaced to callers; everything else
// lands in the log buffer.
type TimeoutError struct {
	EventType string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for event:%s", e.EventType)
}

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	Close() error
}

// Consumer receives exactly one event and is then forgotten.
// Listener receives every matching event until removed.
//
// Callbacks run outside the session lock but on the single dispatch
// goroutine, so they must not block; they may call back into the session.
type (
	Consumer func(wire.Event)
	Listener func(wire.Event)
)

// Session owns one logical subscription to a conference's webhook stream.
// It survives Disconnect and can be reconnected; the registry never drops it.
type Session struct {
	endpoint   string
	secret     string
	conference domain.RoomName
	tenant     domain.Tenant

	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       Conn
	connecting bool
	connected  bool

	// cache holds the most recent unconsumed event per type; a newer event
	// of an already-cached type overwrites the old one.
	cache     map[string]wire.Event
	consumers map[string]Consumer
	listeners map[string]Listener

	defaultSettings *domain.MeetingSettings
	logs            *logBuffer
}

func newSession(endpoint, secret string, conference domain.RoomName, tenant domain.Tenant) *Session {
	return &Session{
		endpoint:   endpoint,
		secret:     secret,
		conference: conference,
		tenant:     tenant,
		dialer:     websocket.DefaultDialer,
		cache:      make(map[string]wire.Event),
		consumers:  make(map[string]Consumer),
		listeners:  make(map[string]Listener),
		logs:       newLogBuffer(maxLogEntries),
	}
}

// FQN is the fully-qualified conference name this session is bound to.
func (s *Session) FQN() domain.FQN {
	return domain.NewFQN(s.tenant, s.conference)
}

// Connect opens the transport and subscribes to the conference. It is a
// no-op when a connection attempt is already in flight or established.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.connecting || s.connected {
		s.logs.add("already_connected", map[string]any{"conference": string(s.conference)})
		s.mu.Unlock()
		log.Debug().Str("module", "proxy.session").Str("room", string(s.conference)).Msg("connect skipped, already connecting/connected")
		return nil
	}
	s.connecting = true
	s.logs.add("connecting", map[string]any{"conference": string(s.conference), "room": s.FQN().String()})
	s.mu.Unlock()

	target := fmt.Sprintf("%s?secret=%s&tenant=%s&room=%s",
		s.endpoint,
		url.QueryEscape(s.secret),
		url.QueryEscape(string(s.tenant)),
		url.QueryEscape(string(s.conference)),
	)

	conn, _, err := s.dialer.Dial(target, nil)
	if err != nil {
		s.mu.Lock()
		s.connecting = false
		s.logs.add("websocket_error", map[string]any{"conference": string(s.conference), "error": err.Error()})
		s.mu.Unlock()
		log.Error().Err(err).Str("module", "proxy.session").Str("room", string(s.conference)).Msg("dial failed")
		return fmt.Errorf("connect %s: %w", s.FQN(), err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connecting = false
	s.connected = true
	s.logs.add("connected", map[string]any{"conference": string(s.conference)})

	// Subscribe to room events right after the transport opens.
	sub := wire.NewSubscribe(string(s.conference)).Encode()
	if err := s.conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		s.logs.add("subscription_failed", map[string]any{"conference": string(s.conference), "error": err.Error()})
	} else {
		s.logs.add("subscribing", map[string]any{"conference": string(s.conference), "room": string(s.conference)})
	}
	s.mu.Unlock()

	log.Info().Str("module", "proxy.session").Str("room", s.FQN().String()).Msg("session connected")

	go s.readPump(conn)
	return nil
}

// Disconnect closes the transport and resets both state flags. The session
// itself stays usable; Connect may be called again.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.connecting = false
	s.connected = false
	s.logs.add("disconnected", map[string]any{"conference": string(s.conference)})
	log.Info().Str("module", "proxy.session").Str("room", string(s.conference)).Msg("session disconnected")
}

// ConnectionStatus is meant for polling; the session pushes no state events.
func (s *Session) ConnectionStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.connected:
		return StatusConnected
	case s.connecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

func (s *Session) readPump(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(conn, err)
			return
		}
		s.dispatch(data)
	}
}

// handleClose resets the flags whatever the prior state was. Only the
// connection that failed may reset state; a stale pump from a previous
// transport must not touch a newer one.
func (s *Session) handleClose(conn Conn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.conn = nil
	s.connecting = false
	s.connected = false
	s.logs.add("websocket_closed", map[string]any{"conference": string(s.conference), "reason": err.Error()})
	log.Info().Err(err).Str("module", "proxy.session").Str("room", string(s.conference)).Msg("transport closed")
}

// dispatch routes one inbound frame. Called only from the read pump, so
// frames for one session are handled strictly one at a time.
func (s *Session) dispatch(data []byte) {
	switch f := wire.Decode(data).(type) {
	case wire.Opaque:
		s.mu.Lock()
		s.logs.add("malformed_frame", map[string]any{"conference": string(s.conference)})
		s.mu.Unlock()

	case wire.Control:
		s.handleControl(f)

	case wire.Event:
		s.handleEvent(f)
	}
}

// handleControl logs system messages; they never reach event dispatch.
func (s *Session) handleControl(c wire.Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch c.Type {
	case wire.TypeSubscriptionConfirmed:
		room := c.Conference
		if room == "" {
			room = string(s.conference)
		}
		s.logs.add("subscription_confirmed", map[string]any{"conference": string(s.conference), "room": room})
	case wire.TypeSubscriptionError:
		errMsg := c.Error
		if errMsg == "" {
			errMsg = "unknown error"
		}
		s.logs.add("subscription_error", map[string]any{"conference": string(s.conference), "error": errMsg})
	default:
		s.logs.add("system_message", map[string]any{"conference": string(s.conference), "messageType": c.Type})
	}
}

// handleEvent applies the dispatch order the dashboard relies on: a pending
// consumer wins over the cache, and a listener is notified either way.
func (s *Session) handleEvent(ev wire.Event) {
	s.mu.Lock()

	if ev.Type == "" {
		s.logs.add("unknown_event", map[string]any{"conference": string(s.conference)})
		s.mu.Unlock()
		return
	}

	s.logs.add(ev.Type, map[string]any{"conference": string(s.conference), "webhook_data": string(ev.Raw)})

	processed := false
	var consumer Consumer
	if cb, ok := s.consumers[ev.Type]; ok {
		consumer = cb
		delete(s.consumers, ev.Type)
		processed = true
	} else {
		s.cache[ev.Type] = ev
	}

	listener := s.listeners[ev.Type]
	if listener != nil {
		processed = true
	}

	var response []byte
	if !processed && ev.Type == wire.EventSettingsProvisioning {
		response = s.settingsResponseLocked()
		if response != nil && s.conn != nil {
			if err := s.conn.WriteMessage(websocket.TextMessage, response); err != nil {
				s.logs.add("websocket_error", map[string]any{"conference": string(s.conference), "error": err.Error()})
			}
		}
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so they may reenter the session.
	if consumer != nil {
		consumer(ev)
	}
	if listener != nil {
		listener(ev)
	}
}

// settingsResponseLocked builds the provisioning answer: the configured
// defaults, or a trivial placeholder when none were set.
func (s *Session) settingsResponseLocked() []byte {
	if s.defaultSettings != nil {
		b, err := json.Marshal(*s.defaultSettings)
		if err != nil {
			s.logs.add("websocket_error", map[string]any{"conference": string(s.conference), "error": err.Error()})
			return nil
		}
		s.logs.add("settings_provisioning_response", map[string]any{"conference": string(s.conference), "response": "default_settings"})
		return b
	}
	s.logs.add("settings_provisioning_response", map[string]any{"conference": string(s.conference), "response": "placeholder"})
	return []byte(`{"someField":"someValue"}`)
}

// AddConsumer registers a one-shot callback. A cached event of that type is
// delivered immediately and evicted; consuming twice never happens.
func (s *Session) AddConsumer(eventType string, cb Consumer) {
	s.mu.Lock()
	if ev, ok := s.cache[eventType]; ok {
		delete(s.cache, eventType)
		s.mu.Unlock()
		cb(ev)
		return
	}
	s.consumers[eventType] = cb
	s.mu.Unlock()
}

// WaitForEvent blocks until the next event of the given type or until the
// timeout elapses, whichever happens first. Exactly one of the two outcomes
// wins; a late event can never fire a consumer the timeout already removed.
func (s *Session) WaitForEvent(eventType string, timeout time.Duration) (wire.Event, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	ch := make(chan wire.Event, 1)
	s.AddConsumer(eventType, func(ev wire.Event) {
		ch <- ev
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-ch:
		return ev, nil
	case <-timer.C:
	}

	// Remove our consumer so it cannot fire later. Dispatch may have
	// already claimed it; in that case the event is on the channel.
	s.mu.Lock()
	delete(s.consumers, eventType)
	s.logs.add("subscription_error", map[string]any{
		"conference": string(s.conference),
		"error":      fmt.Sprintf("timeout waiting for event:%s", eventType),
	})
	s.mu.Unlock()

	select {
	case ev := <-ch:
		return ev, nil
	default:
		return wire.Event{}, &TimeoutError{EventType: eventType}
	}
}

// AddListener registers a persistent, non-consuming subscription. At most
// one listener per event type; re-registering replaces the previous one.
func (s *Session) AddListener(eventType string, cb Listener) {
	s.mu.Lock()
	s.listeners[eventType] = cb
	s.mu.Unlock()
}

func (s *Session) RemoveListener(eventType string) {
	s.mu.Lock()
	delete(s.listeners, eventType)
	s.mu.Unlock()
}

// ClearCache drops all not-yet-consumed events.
func (s *Session) ClearCache() {
	s.mu.Lock()
	s.logs.add("cache_cleared", map[string]any{"conference": string(s.conference)})
	s.cache = make(map[string]wire.Event)
	s.mu.Unlock()
}

// Logs returns a defensive copy of the rolling log, oldest first.
func (s *Session) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs.snapshot()
}

func (s *Session) ClearLogs() {
	s.mu.Lock()
	s.logs.clear()
	s.mu.Unlock()
}

// SetDefaultMeetingSettings stores the answer for future provisioning
// requests from the remote side.
func (s *Session) SetDefaultMeetingSettings(ms domain.MeetingSettings) {
	s.mu.Lock()
	s.defaultSettings = &ms
	s.mu.Unlock()
	log.Debug().Str("module", "proxy.session").Str("room", string(s.conference)).Msg("default meeting settings set")
}

func (s *Session) DefaultMeetingSettings() *domain.MeetingSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.defaultSettings == nil {
		return nil
	}
	ms := *s.defaultSettings
	return &ms
}
