// Package token signs conference JWTs the platform accepts for moderator,
// visitor and feature entitlements.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoKeyID      = errors.New("no keyId provided")
	ErrNoPrivateKey = errors.New("no private key provided")
	// ErrPKCS1Key is returned for "BEGIN RSA PRIVATE KEY" material; the
	// platform hands out PKCS#8 keys and we do not convert on the fly.
	ErrPKCS1Key = errors.New("private key is in PKCS#1 format but PKCS#8 is required; convert with: openssl pkcs8 -topk8 -inform PEM -outform PEM -nocrypt")
)

// Options shape a single signed token.
type Options struct {
	DisplayName string
	// Exp is a duration string like "30m", "1h" or "7d". Invalid or empty
	// values fall back to 24 hours.
	Exp string
	// KeyID is the signing key id, "tenant/keyname"; it also derives the
	// default subject.
	KeyID string
	// PrivateKey is PKCS#8 PEM content (not a path). Escaped newlines from
	// JSON storage are repaired.
	PrivateKey string
	Moderator   bool
	Visitor     bool
	// Room the token is valid for, or "*". Defaults to "*".
	Room string
	// Sub overrides the subject derived from KeyID.
	Sub string
	// Permissions toggles platform features in the token's context.
	Permissions map[string]bool
}

// Token is a signed JWT plus its parts for easy display.
type Token struct {
	JWT     string
	Payload jwt.MapClaims
	Headers map[string]any
}

var expPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// parseExpiration turns "90m"-style strings into an absolute unix time.
func parseExpiration(exp string, now time.Time) int64 {
	m := expPattern.FindStringSubmatch(exp)
	if m == nil {
		return now.Add(24 * time.Hour).Unix()
	}
	n, _ := strconv.Atoi(m[1])
	var d time.Duration
	switch m[2] {
	case "s":
		d = time.Duration(n) * time.Second
	case "m":
		d = time.Duration(n) * time.Minute
	case "h":
		d = time.Duration(n) * time.Hour
	case "d":
		d = time.Duration(n) * 24 * time.Hour
	}
	return now.Add(d).Unix()
}

// stringlyTrueFeatures are encoded as the string "true" rather than a bool,
// a compatibility quirk of older platform deployments.
var stringlyTrueFeatures = map[string]bool{
	"outbound-call": true,
	"transcription": true,
	"recording":     true,
}

// BuildPayload assembles the claims without signing, for preview purposes.
func BuildPayload(o Options) jwt.MapClaims {
	features := map[string]any{}
	for key, enabled := range o.Permissions {
		if !enabled || key == "hidden-from-recorder" {
			continue
		}
		if stringlyTrueFeatures[key] {
			features[key] = "true"
		} else {
			features[key] = true
		}
	}

	user := map[string]any{
		"name":   o.DisplayName,
		"id":     uuid.NewString(),
		"avatar": "https://avatars0.githubusercontent.com/u/3671647",
		"email":  "john.doe@jitsi.org",
	}
	if o.Moderator {
		user["moderator"] = true
	} else if o.Visitor {
		user["role"] = "visitor"
	}
	if o.Permissions["hidden-from-recorder"] {
		user["hidden-from-recorder"] = true
	}

	sub := o.Sub
	if sub == "" {
		if i := strings.Index(o.KeyID, "/"); i >= 0 {
			sub = o.KeyID[:i]
		}
	}

	room := o.Room
	if room == "" {
		room = "*"
	}

	return jwt.MapClaims{
		"aud": "jitsi",
		"iss": "chat",
		"sub": sub,
		"exp": parseExpiration(o.Exp, time.Now()),
		"context": map[string]any{
			"user":     user,
			"group":    uuid.NewString(),
			"features": features,
		},
		"room": room,
	}
}

// Generate signs an RS256 token with the kid header set.
func Generate(o Options) (*Token, error) {
	if o.KeyID == "" {
		return nil, ErrNoKeyID
	}
	if o.PrivateKey == "" {
		return nil, ErrNoPrivateKey
	}

	key, err := parsePrivateKey(o.PrivateKey)
	if err != nil {
		return nil, err
	}

	claims := BuildPayload(o)
	claims["iat"] = time.Now().Unix()

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = o.KeyID

	signed, err := t.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &Token{
		JWT:     signed,
		Payload: claims,
		Headers: t.Header,
	}, nil
}

// GenerateJWT is Generate reduced to the compact signed string.
func GenerateJWT(o Options) (string, error) {
	t, err := Generate(o)
	if err != nil {
		return "", err
	}
	return t.JWT, nil
}

func parsePrivateKey(pem string) (*rsa.PrivateKey, error) {
	// Keys stored in JSON configs commonly arrive with escaped newlines.
	pem = strings.ReplaceAll(pem, `\n`, "\n")

	if strings.Contains(pem, "BEGIN RSA PRIVATE KEY") {
		return nil, ErrPKCS1Key
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}
