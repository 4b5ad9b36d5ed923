package wire

import "encoding/json"

// Shape is a cheap structural inspection of a frame used by the relay's
// forwarding filters. It never copies the payload.
type Shape struct {
	// IsObject is true when the frame is a JSON object.
	IsObject bool

	HasFQN bool
	FQN    string

	HasEventType bool
	EventType    string

	HasType bool
}

// Peek inspects a raw frame without fully decoding it.
func Peek(data []byte) Shape {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Shape{}
	}
	s := Shape{IsObject: true}
	if raw, ok := fields["fqn"]; ok {
		s.HasFQN = true
		_ = json.Unmarshal(raw, &s.FQN)
	}
	if raw, ok := fields["eventType"]; ok {
		s.HasEventType = true
		_ = json.Unmarshal(raw, &s.EventType)
	}
	_, s.HasType = fields["type"]
	return s
}

// LooksLikeSettingsResponse reports whether a browser frame should be treated
// as a settings provisioning response. A JSON object with neither an fqn nor
// an eventType is assumed to be one. This is a heuristic inherited from the
// dashboard protocol, not a firm contract; other unmarked control frames
// would match it too.
func (s Shape) LooksLikeSettingsResponse() bool {
	return s.IsObject && !s.HasFQN && !s.HasEventType
}

// InjectFQN re-encodes a JSON object frame with the routing fqn set, so the
// remote side can attribute the response to a conference.
func InjectFQN(data []byte, fqn string) ([]byte, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["fqn"] = fqn
	return json.Marshal(fields)
}
