// Package adapters turns platform-native webhook payloads into canonical leads.
package adapters

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"leadsync/models"
)

var (
	ErrBadPayload          = errors.New("bad payload")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrTokenInvalid        = errors.New("token invalid")
)

// AuthResult is the outcome of checking a delivery's authenticity
type AuthResult int

const (
	AuthMissing AuthResult = iota // platform sent no signature
	AuthVerified
	AuthFailed
)

// Adapter parses one platform's webhook deliveries. Parse must not perform I/O.
type Adapter interface {
	Platform() models.Platform
	Parse(raw []byte) ([]models.WebhookLeadData, error)
	Authenticate(raw []byte, headers http.Header, secret string) AuthResult
}

// Registry is the closed set of adapters the router can dispatch to
type Registry struct {
	adapters map[models.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// DefaultRegistry wires every built-in adapter
func DefaultRegistry(linkedIn *LinkedInAdapter) *Registry {
	return NewRegistry(NewGoogleAdsAdapter(), NewMetaAdapter(), linkedIn)
}

func (r *Registry) Lookup(platform models.Platform) (Adapter, error) {
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return a, nil
}

func badPayload(platform models.Platform, reason string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrBadPayload, platform, reason, err)
	}
	return fmt.Errorf("%w: %s %s", ErrBadPayload, platform, reason)
}

// requireObject rejects payloads that are not a JSON object (arrays, scalars, null)
func requireObject(platform models.Platform, raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return badPayload(platform, "expected a json object", nil)
	}
	return nil
}
