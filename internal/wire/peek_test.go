package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Peek(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Shape
	}{
		{
			name: "event with fqn",
			data: `{"eventType":"FOO","fqn":"t/r"}`,
			want: Shape{IsObject: true, HasFQN: true, FQN: "t/r", HasEventType: true, EventType: "FOO"},
		},
		{
			name: "control frame",
			data: `{"type":"subscribe","conference":"r"}`,
			want: Shape{IsObject: true, HasType: true},
		},
		{
			name: "bare object",
			data: `{"lobbyEnabled":true}`,
			want: Shape{IsObject: true},
		},
		{
			name: "not json",
			data: `hello`,
			want: Shape{},
		},
		{
			name: "json array is not an object",
			data: `[1,2,3]`,
			want: Shape{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, Peek([]byte(test.data)))
		})
	}
}

// The settings-response rule is a heuristic: anything object-shaped without
// routing tags matches, including unmarked control frames. These cases pin
// the behavior down without endorsing it as a contract.
func Test_LooksLikeSettingsResponse(t *testing.T) {
	require.True(t, Peek([]byte(`{"lobbyEnabled":true}`)).LooksLikeSettingsResponse())
	require.True(t, Peek([]byte(`{"type":"subscribe"}`)).LooksLikeSettingsResponse(),
		"typed frames without fqn/eventType still match the heuristic")
	require.False(t, Peek([]byte(`{"eventType":"FOO"}`)).LooksLikeSettingsResponse())
	require.False(t, Peek([]byte(`{"fqn":"t/r"}`)).LooksLikeSettingsResponse())
	require.False(t, Peek([]byte(`garbage`)).LooksLikeSettingsResponse())
}

func Test_InjectFQN(t *testing.T) {
	out, err := InjectFQN([]byte(`{"lobbyEnabled":true}`), "tenantA/room1")
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(out, &m))
	require.Equal(t, "tenantA/room1", m["fqn"])
	require.Equal(t, true, m["lobbyEnabled"])

	_, err = InjectFQN([]byte(`garbage`), "tenantA/room1")
	require.Error(t, err)
}
