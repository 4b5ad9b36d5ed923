package token

import (
	"fmt"
	"net/url"
	"strings"
)

// Toggle is a three-state switch for link-level config overrides.
type Toggle string

const (
	ToggleDefault Toggle = "default"
	ToggleOn      Toggle = "on"
	ToggleOff     Toggle = "off"
)

// Override is a raw config.<key>=<value> fragment entry.
type Override struct {
	Key   string
	Value string
}

// LinkOptions tune the generated conference URL fragment.
type LinkOptions struct {
	PrejoinScreen Toggle
	P2P           Toggle
	Audio         Toggle
	Video         Toggle
	Overrides     []Override
}

// ConferenceLink builds the join URL for a room with an optional tenant
// path segment, jwt query and config-override fragment.
func ConferenceLink(domain, tenant, room, jwt string, opts *LinkOptions) string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(domain)
	if tenant != "" {
		b.WriteString("/")
		b.WriteString(tenant)
	}
	b.WriteString("/")
	b.WriteString(room)
	if jwt != "" {
		b.WriteString("?jwt=")
		b.WriteString(jwt)
	}

	if opts == nil {
		return b.String()
	}

	var params []string
	appendToggle := func(t Toggle, key string, onVal, offVal string) {
		switch t {
		case ToggleOn:
			params = append(params, fmt.Sprintf("config.%s=%s", key, onVal))
		case ToggleOff:
			params = append(params, fmt.Sprintf("config.%s=%s", key, offVal))
		}
	}
	appendToggle(opts.PrejoinScreen, "prejoinConfig.enabled", "true", "false")
	appendToggle(opts.P2P, "p2p.enabled", "true", "false")
	// Audio/video toggles invert: "on" means not muted.
	appendToggle(opts.Audio, "startWithAudioMuted", "false", "true")
	appendToggle(opts.Video, "startWithVideoMuted", "false", "true")

	for _, o := range opts.Overrides {
		key, val := strings.TrimSpace(o.Key), strings.TrimSpace(o.Value)
		if key == "" || val == "" {
			continue
		}
		params = append(params, fmt.Sprintf("config.%s=%s", key, url.QueryEscape(val)))
	}

	if len(params) > 0 {
		b.WriteString("#")
		b.WriteString(strings.Join(params, "&"))
	}
	return b.String()
}
