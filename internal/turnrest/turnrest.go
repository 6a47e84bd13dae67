// Package turnrest issues coturn-compatible ephemeral TURN credentials
// (draft-uberti-behave-turn-rest).
//
//	username   = <unix_expiry>:<prefix>:<connection_id_or_random>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// The signaling relay hands these to clients from GET /webrtc/ice so the TURN
// shared secret never leaves the server.
package turnrest

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Generator struct {
	secret []byte
	ttl    int64
	prefix string
	now    func() time.Time

	randomID func() (string, error)
}

type GeneratorConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string

	// Now and RandomID are injectable for tests.
	Now      func() time.Time
	RandomID func() (string, error)
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTLSeconds <= 0 {
		return nil, errors.New("TTLSeconds must be > 0")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("UsernamePrefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("UsernamePrefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RandomID == nil {
		cfg.RandomID = randomHexID
	}
	return &Generator{
		secret:   []byte(cfg.SharedSecret),
		ttl:      cfg.TTLSeconds,
		prefix:   cfg.UsernamePrefix,
		now:      cfg.Now,
		randomID: cfg.RandomID,
	}, nil
}

type Credentials struct {
	Username   string
	Credential string
	ExpiryUnix int64
}

// Generate mints credentials bound to connID, which becomes the last colon
// segment of the TURN username (useful for correlating coturn logs with relay
// connections).
func (g *Generator) Generate(connID string) (Credentials, error) {
	if connID == "" {
		return Credentials{}, errors.New("connID is required")
	}
	if strings.Contains(connID, ":") {
		return Credentials{}, errors.New("connID must not contain ':'")
	}
	expiry := g.now().UTC().Unix() + g.ttl
	username := fmt.Sprintf("%d:%s:%s", expiry, g.prefix, connID)

	mac := hmac.New(sha1.New, g.secret)
	_, _ = mac.Write([]byte(username))

	return Credentials{
		Username:   username,
		Credential: base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		ExpiryUnix: expiry,
	}, nil
}

// GenerateRandom mints credentials with a random identifier, for callers that
// have no stable connection identity yet.
func (g *Generator) GenerateRandom() (Credentials, error) {
	id, err := g.randomID()
	if err != nil {
		return Credentials{}, err
	}
	return g.Generate(id)
}

func randomHexID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
