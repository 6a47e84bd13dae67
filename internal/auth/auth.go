// Package auth verifies signaling connection credentials. Credentials are
// presented either in the WebSocket upgrade query string or in the first
// in-band message, depending on what the client can do (browser WebSocket
// APIs cannot set headers).
package auth

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/openmeet/signal-relay/internal/config"
)

type Verifier interface {
	Verify(credential string) error
}

func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingCredentials = errors.New("missing credentials")
)

func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if apiKey := q.Get("apiKey"); apiKey != "" {
			return apiKey, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if token := q.Get("token"); token != "" {
			return token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// WireAuthMessage is the first in-band message on connections that did not
// authenticate via the query string.
type WireAuthMessage struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

func CredentialFromAuthMessage(mode config.AuthMode, msg WireAuthMessage) (string, error) {
	switch mode {
	case config.AuthModeAPIKey:
		if msg.APIKey != "" {
			return msg.APIKey, nil
		}
		return "", ErrMissingCredentials
	case config.AuthModeJWT:
		if msg.Token != "" {
			return msg.Token, nil
		}
		return "", ErrMissingCredentials
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}
