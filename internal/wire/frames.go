// Package wire defines the JSON frame protocol spoken between the browser
// client, the relay and the remote webhook event source.
package wire

import (
	"encoding/json"
	"time"
)

// Control frame types.
const (
	TypeSubscribe             = "subscribe"
	TypeProxyConnected        = "proxy-connected"
	TypeProxyError            = "proxy-error"
	TypeProxyDisconnected     = "proxy-disconnected"
	TypeSubscriptionConfirmed = "subscription-confirmed"
	TypeSubscriptionError     = "subscription-error"
)

// EventSettingsProvisioning is the unsolicited request from the remote side
// asking the client to supply default meeting settings.
const EventSettingsProvisioning = "SETTINGS_PROVISIONING"

// Frame is one decoded message. Exactly one of the variants below.
type Frame interface{ frame() }

// Control is a system frame, recognized by its "type" field. Control frames
// never reach the event-dispatch path.
type Control struct {
	Type       string `json:"type"`
	Conference string `json:"conference,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       int    `json:"code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// Event is an application webhook event tagged by "eventType". Raw holds the
// original bytes so forwarding never re-encodes the payload. Type may be
// empty when a JSON object carries no eventType at all.
type Event struct {
	Type string
	FQN  string
	Raw  json.RawMessage
}

// Opaque is a frame that is not a JSON object. The relay forwards these
// unconditionally; the client drops them.
type Opaque struct {
	Raw []byte
}

func (Control) frame() {}
func (Event) frame()   {}
func (Opaque) frame()  {}

// Unmarshal decodes the event payload into v.
func (e Event) Unmarshal(v any) error {
	return json.Unmarshal(e.Raw, v)
}

// Decode classifies a raw frame. A "type" field wins over "eventType", as
// the browser client treats any typed message as a system message.
func Decode(data []byte) Frame {
	var env struct {
		Type      string `json:"type"`
		EventType string `json:"eventType"`
		FQN       string `json:"fqn"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Opaque{Raw: data}
	}
	if env.Type != "" {
		var c Control
		if err := json.Unmarshal(data, &c); err != nil {
			return Opaque{Raw: data}
		}
		return c
	}
	return Event{Type: env.EventType, FQN: env.FQN, Raw: data}
}

// Encode marshals a control frame for the socket.
func (c Control) Encode() []byte {
	b, _ := json.Marshal(c)
	return b
}

func NewSubscribe(conference string) Control {
	return Control{Type: TypeSubscribe, Conference: conference}
}

func NewProxyConnected(conference string) Control {
	return Control{Type: TypeProxyConnected, Conference: conference, Timestamp: timestamp()}
}

func NewProxyError(conference, errMsg string) Control {
	return Control{Type: TypeProxyError, Conference: conference, Error: errMsg, Timestamp: timestamp()}
}

func NewProxyDisconnected(conference string, code int, reason string) Control {
	return Control{Type: TypeProxyDisconnected, Conference: conference, Code: code, Reason: reason, Timestamp: timestamp()}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
